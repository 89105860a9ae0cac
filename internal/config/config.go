// Package config provides configuration management using Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jobrunner/geefetch/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	EarthEngine EarthEngineConfig `mapstructure:"earthengine"`
	Run         RunConfig         `mapstructure:"run"`
	Task        TaskConfig        `mapstructure:"task"`
	Download    DownloadConfig    `mapstructure:"download"`
	Staging     StagingConfig     `mapstructure:"staging"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	Watch       WatchConfig       `mapstructure:"watch"`
	Status      StatusConfig      `mapstructure:"status"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Report      ReportConfig      `mapstructure:"report"`
}

// EarthEngineConfig holds the service account and project settings.
type EarthEngineConfig struct {
	Credentials string `mapstructure:"credentials"` // Service account JSON key
	Project     string `mapstructure:"project"`     // Defaults to the key's project
	BaseURL     string `mapstructure:"base_url"`
}

// RunConfig holds the parameters of one pipeline run.
type RunConfig struct {
	AOI                 string   `mapstructure:"aoi"`
	SplitAOI            bool     `mapstructure:"split_aoi"`
	Start               string   `mapstructure:"start"`
	End                 string   `mapstructure:"end"`
	PeriodSize          string   `mapstructure:"period_size"`
	PeriodFrequency     string   `mapstructure:"period_frequency"`
	Collection          string   `mapstructure:"collection"`
	Indices             []string `mapstructure:"indices"`
	Bands               []string `mapstructure:"bands"`
	CountBand           bool     `mapstructure:"count_band"`
	Aggregation         string   `mapstructure:"aggregation"`
	CloudScoreThreshold float64  `mapstructure:"cloud_score_threshold"`
	Resolution          float64  `mapstructure:"resolution"`
	Output              string   `mapstructure:"output"`
}

// TaskConfig holds export task polling and retry settings.
type TaskConfig struct {
	UpdateInterval time.Duration `mapstructure:"update_interval"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	MaxRetry       int           `mapstructure:"max_retry"`
	MaxRetryDelay  time.Duration `mapstructure:"max_retry_delay"`
}

// DownloadConfig holds download retry settings.
type DownloadConfig struct {
	MaxRetry      int           `mapstructure:"max_retry"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay"`
}

// StagingConfig holds the store exports are written to.
type StagingConfig struct {
	Type         string        `mapstructure:"type"` // drive, gcs
	Folder       string        `mapstructure:"folder"`
	Bucket       string        `mapstructure:"bucket"`
	DriveBaseURL string        `mapstructure:"drive_base_url"`
	EmptyTrash   bool          `mapstructure:"empty_trash"`
	SweepTimeout time.Duration `mapstructure:"sweep_timeout"`
}

// ArchiveConfig holds the optional store downloads are copied to.
type ArchiveConfig struct {
	Type      string      `mapstructure:"type"` // empty, s3, azure, gcs, blob, local
	Folder    string      `mapstructure:"folder"`
	LocalPath string      `mapstructure:"local_path"`
	S3        S3Config    `mapstructure:"s3"`
	Azure     AzureConfig `mapstructure:"azure"`
	GCS       GCSConfig   `mapstructure:"gcs"`
	Blob      BlobConfig  `mapstructure:"blob"`
}

// Enabled returns true if an archive store is configured.
func (c *ArchiveConfig) Enabled() bool {
	return c.Type != ""
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// GCSConfig holds Google Cloud Storage configuration. The Earth Engine
// service account is used for authentication.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// BlobConfig holds a gocloud bucket URL such as file:///srv/rasters or mem://.
type BlobConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// WatchConfig holds drop-folder settings.
type WatchConfig struct {
	Dir      string        `mapstructure:"dir"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// StatusConfig holds the status HTTP server configuration.
type StatusConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// ReportConfig controls the files written next to the downloads.
type ReportConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Progress bool `mapstructure:"progress"` // Interactive progress bar
}

// Defaults sets the default configuration values.
func Defaults() {
	// Earth Engine defaults
	viper.SetDefault("earthengine.credentials", "")
	viper.SetDefault("earthengine.project", "")
	viper.SetDefault("earthengine.base_url", "https://earthengine.googleapis.com")

	// Run defaults
	viper.SetDefault("run.aoi", "")
	viper.SetDefault("run.start", "")
	viper.SetDefault("run.period_frequency", "")
	viper.SetDefault("run.indices", []string{})
	viper.SetDefault("run.bands", []string{})
	viper.SetDefault("run.output", "")
	viper.SetDefault("run.split_aoi", false)
	viper.SetDefault("run.end", "now")
	viper.SetDefault("run.period_size", "1M")
	viper.SetDefault("run.collection", "sentinel2")
	viper.SetDefault("run.aggregation", "median")
	viper.SetDefault("run.cloud_score_threshold", 0.65)
	viper.SetDefault("run.resolution", 10.0)
	viper.SetDefault("run.count_band", false)

	// Task defaults
	viper.SetDefault("task.update_interval", 10*time.Second)
	viper.SetDefault("task.retry_delay", 30*time.Second)
	viper.SetDefault("task.max_retry", 10)
	viper.SetDefault("task.max_retry_delay", 10*time.Minute)

	// Download defaults
	viper.SetDefault("download.max_retry", 5)
	viper.SetDefault("download.retry_delay", 2*time.Second)
	viper.SetDefault("download.max_retry_delay", time.Minute)

	// Staging defaults
	viper.SetDefault("staging.type", "drive")
	viper.SetDefault("staging.folder", "GEE")
	viper.SetDefault("staging.bucket", "")
	viper.SetDefault("staging.drive_base_url", "https://www.googleapis.com")
	viper.SetDefault("staging.empty_trash", true)
	viper.SetDefault("staging.sweep_timeout", 5*time.Minute)

	// Archive defaults
	viper.SetDefault("archive.type", "")
	viper.SetDefault("archive.folder", "geefetch")

	// Watch defaults
	viper.SetDefault("watch.dir", "")
	viper.SetDefault("watch.debounce", 2*time.Second)

	// Status server defaults
	viper.SetDefault("status.enabled", false)
	viper.SetDefault("status.host", "127.0.0.1")
	viper.SetDefault("status.port", 9090)
	viper.SetDefault("status.read_timeout", 10*time.Second)
	viper.SetDefault("status.write_timeout", 10*time.Second)
	viper.SetDefault("status.shutdown_timeout", 10*time.Second)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.namespace", "geefetch")
	viper.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Report defaults
	viper.SetDefault("report.enabled", true)
	viper.SetDefault("report.progress", false)
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// Environment variable binding
	viper.SetEnvPrefix("GEEFETCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/geefetch")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Run.Indices = splitList(cfg.Run.Indices)
	cfg.Run.Bands = splitList(cfg.Run.Bands)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// splitList accepts both list values and comma separated strings, as
// environment variables can only carry the latter.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func configError(field, message string) error {
	return &domain.ConfigError{Field: field, Message: message}
}

// Validate validates the settings shared by every command.
func (c *Config) Validate() error {
	if c.Status.Enabled && (c.Status.Port < 1 || c.Status.Port > 65535) {
		return configError("status.port", fmt.Sprintf("invalid port: %d", c.Status.Port))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return configError("logging.format", "must be json or text")
	}

	if c.Task.MaxRetry < 0 {
		return configError("task.max_retry", "must not be negative")
	}
	if c.Download.MaxRetry < 0 {
		return configError("download.max_retry", "must not be negative")
	}

	switch c.Staging.Type {
	case "drive":
	case "gcs":
		if c.Staging.Bucket == "" {
			return configError("staging.bucket", "is required for gcs staging")
		}
	default:
		return configError("staging.type", "unknown staging type: "+c.Staging.Type)
	}
	if c.Staging.Folder == "" {
		return configError("staging.folder", "is required")
	}

	switch c.Archive.Type {
	case "":
	case "local":
		if c.Archive.LocalPath == "" {
			return configError("archive.local_path", "is required")
		}
	case "s3":
		if c.Archive.S3.Bucket == "" {
			return configError("archive.s3.bucket", "is required")
		}
		if c.Archive.S3.Region == "" {
			return configError("archive.s3.region", "is required")
		}
	case "azure":
		if c.Archive.Azure.Container == "" {
			return configError("archive.azure.container", "is required")
		}
		if c.Archive.Azure.AccountName == "" && c.Archive.Azure.ConnectionString == "" {
			return configError("archive.azure", "account name or connection string is required")
		}
	case "gcs":
		if c.Archive.GCS.Bucket == "" {
			return configError("archive.gcs.bucket", "is required")
		}
	case "blob":
		if c.Archive.Blob.URL == "" {
			return configError("archive.blob.url", "is required")
		}
	default:
		return configError("archive.type", "unknown archive type: "+c.Archive.Type)
	}

	return nil
}

// ValidateRemote checks the settings needed to talk to Earth Engine and the staging store.
func (c *Config) ValidateRemote() error {
	if c.EarthEngine.Credentials == "" {
		return configError("earthengine.credentials", "is required")
	}
	return nil
}

// ValidateRun checks the settings needed to start a run. The AOI is not
// required in watch mode, where it comes from the dropped file.
func (c *Config) ValidateRun(requireAOI bool) error {
	if err := c.ValidateRemote(); err != nil {
		return err
	}
	if requireAOI && c.Run.AOI == "" {
		return configError("run.aoi", "is required")
	}
	if c.Run.Output == "" {
		return configError("run.output", "is required")
	}
	if c.Run.Start == "" {
		return configError("run.start", "is required")
	}
	if c.Run.PeriodSize == "" {
		return configError("run.period_size", "is required")
	}
	if c.Run.Resolution <= 0 {
		return configError("run.resolution", "must be positive")
	}
	if c.Run.CloudScoreThreshold < 0 || c.Run.CloudScoreThreshold > 1 {
		return configError("run.cloud_score_threshold", "must be between 0 and 1")
	}
	return nil
}

// Address returns the status server address string.
func (c *StatusConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
