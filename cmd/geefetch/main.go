// Package main provides the entry point for the geefetch command.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobrunner/geefetch/internal/app"
	"github.com/jobrunner/geefetch/internal/config"
	"github.com/jobrunner/geefetch/internal/domain"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "geefetch",
	Short: "geefetch - Earth Engine time series downloader",
	Long: `geefetch exports satellite composites from Google Earth Engine for an area
of interest and downloads them locally.

The time range is split into periods. For every period the image collection
is filtered, cloud masked and reduced to one composite, from which spectral
indices, scaled bands and an observation count are exported one at a time
through a staging store (Google Drive or Cloud Storage) and downloaded.

Features:
  - Sentinel-2 and Landsat 8 collections
  - GeoJSON and GeoPackage areas of interest, whole or per feature
  - Retries for failed export tasks and downloads
  - Optional archive upload (local, S3, Azure, GCS, any gocloud bucket)
  - Drop-folder mode with status endpoint and Prometheus metrics`,
	SilenceUsage: true,
	RunE:         runFetch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("geefetch %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

var periodsCmd = &cobra.Command{
	Use:   "periods",
	Short: "Print the periods a run would process",
	RunE:  runPeriods,
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete leftover exports from the staging store",
	RunE:  runClean,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the pipeline for every AOI file dropped into a directory",
	RunE:  runWatch,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()

	// Global flags
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (json, text)")
	flags.String("status-addr", "", "serve /health, /status and /metrics on host:port")

	// Earth Engine flags
	flags.String("ee-credentials", "", "service account JSON key file")
	flags.String("ee-project", "", "cloud project (default: the key's project)")

	// Run flags
	flags.String("aoi", "", "area of interest (.geojson or .gpkg, EPSG:4326)")
	flags.Bool("splited-aoi", false, "export every AOI feature separately")
	flags.String("start", "", "first day (YYYY-MM-DD, YYYYMMDD, YYYY-MM, YYYY or an RFC 3339 instant)")
	flags.String("end", "now", "last day (same formats as --start, or now)")
	flags.String("period-size", "1M", "period length, e.g. 10d, 2w, 1M, 1y")
	flags.String("period-frequency", "", "distance between period starts (default: period size)")
	flags.String("collection", "sentinel2", "image collection (sentinel2, landsat8)")
	flags.StringSlice("indices", nil, "spectral indices to export")
	flags.StringSlice("bands", nil, "bands to export")
	flags.Bool("count-band", false, "export the number of cloud-free observations")
	flags.String("aggr-fn", "median", "composite aggregation (median, mean)")
	flags.Float64("cloud-score-threshold", 0.65, "minimum cloud score+ value of clear pixels")
	flags.Float64("res", 10, "export resolution in meters")
	flags.String("output", "", "download directory")
	flags.Bool("progress", false, "show a progress bar")

	// Watch flags
	watchCmd.Flags().String("dir", "", "drop directory")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("earthengine.credentials", flags.Lookup("ee-credentials"))
	_ = viper.BindPFlag("earthengine.project", flags.Lookup("ee-project"))
	_ = viper.BindPFlag("run.aoi", flags.Lookup("aoi"))
	_ = viper.BindPFlag("run.split_aoi", flags.Lookup("splited-aoi"))
	_ = viper.BindPFlag("run.start", flags.Lookup("start"))
	_ = viper.BindPFlag("run.end", flags.Lookup("end"))
	_ = viper.BindPFlag("run.period_size", flags.Lookup("period-size"))
	_ = viper.BindPFlag("run.period_frequency", flags.Lookup("period-frequency"))
	_ = viper.BindPFlag("run.collection", flags.Lookup("collection"))
	_ = viper.BindPFlag("run.indices", flags.Lookup("indices"))
	_ = viper.BindPFlag("run.bands", flags.Lookup("bands"))
	_ = viper.BindPFlag("run.count_band", flags.Lookup("count-band"))
	_ = viper.BindPFlag("run.aggregation", flags.Lookup("aggr-fn"))
	_ = viper.BindPFlag("run.cloud_score_threshold", flags.Lookup("cloud-score-threshold"))
	_ = viper.BindPFlag("run.resolution", flags.Lookup("res"))
	_ = viper.BindPFlag("run.output", flags.Lookup("output"))
	_ = viper.BindPFlag("report.progress", flags.Lookup("progress"))
	_ = viper.BindPFlag("watch.dir", watchCmd.Flags().Lookup("dir"))

	rootCmd.AddCommand(versionCmd, periodsCmd, cleanCmd, watchCmd)
}

func initConfig() {
	// A .env file is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: reading .env:", err)
	}

	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// loadConfig loads the configuration and applies --status-addr.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	if addr, _ := cmd.Flags().GetString("status-addr"); addr != "" {
		if err := applyStatusAddr(&cfg.Status, addr); err != nil {
			return nil, nil, err
		}
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// newApp initializes the application and starts the status server.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.App, func(), error) {
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing application: %w", err)
	}
	application.StartStatusServer()

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Status.ShutdownTimeout)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}
	return application, shutdown, nil
}

func runFetch(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateRun(true); err != nil {
		return err
	}

	logger.Info("starting geefetch",
		"version", version,
		"aoi", cfg.Run.AOI,
		"collection", cfg.Run.Collection,
		"staging", cfg.Staging.Type,
	)

	ctx, cancel := signalContext()
	defer cancel()

	application, shutdown, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	report, err := application.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("run interrupted")
		}
		return err
	}

	logger.Info("done",
		"exports", len(report.Exports),
		"output", report.OutputDir,
		"duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Second),
	)
	return nil
}

func runPeriods(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	gen, err := domain.GenerateIntervals(cfg.Run.Start, cfg.Run.End, cfg.Run.PeriodSize, cfg.Run.PeriodFrequency, time.Now)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for interval := range gen.All() {
		fmt.Fprintf(out, "%s\t%s\n", interval.StartDate(), interval.EndDate())
	}
	return nil
}

func runClean(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	application, shutdown, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	deleted, err := application.Clean(ctx)
	logger.Info("staging store cleaned", "deleted", deleted)
	return err
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	application, shutdown, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	logger.Info("watching for AOI files", "dir", cfg.Watch.Dir, "output", cfg.Run.Output)
	return application.Watch(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
