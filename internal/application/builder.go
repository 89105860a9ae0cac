package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/output"
)

// BuilderConfig holds what every job of a run has in common.
type BuilderConfig struct {
	Collection          *domain.Collection
	Products            []domain.Product
	Aggregation         domain.Aggregation
	CloudScoreThreshold float64
	Resolution          float64
	SplitAOI            bool
	StagingFolder       string
}

// JobBuilder composes the export jobs of one period.
type JobBuilder struct {
	imagery output.ImageryBackend
	logger  *slog.Logger
	config  BuilderConfig
}

// NewJobBuilder creates a new job builder.
func NewJobBuilder(imagery output.ImageryBackend, logger *slog.Logger, cfg BuilderConfig) *JobBuilder {
	return &JobBuilder{
		imagery: imagery,
		logger:  logger,
		config:  cfg,
	}
}

// Build returns the jobs of one period, partitions in order and products in
// request order within each partition. It returns domain.ErrNoImages when
// the collection has no image for the period.
func (b *JobBuilder) Build(ctx context.Context, aoi *domain.AOI, interval domain.Interval) ([]domain.ExportJob, error) {
	collection, err := b.imagery.ImageCollection(ctx, domain.CollectionFilter{
		Collection:          b.config.Collection,
		Interval:            interval,
		Bounds:              aoi.Bounds(),
		CloudScoreThreshold: b.config.CloudScoreThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("selecting images for %s: %w", interval, err)
	}

	size, err := b.imagery.CollectionSize(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("counting images for %s: %w", interval, err)
	}
	if size == 0 {
		return nil, domain.ErrNoImages
	}

	b.logger.Debug("images selected", "period", interval.String(), "count", size)

	composite, err := b.imagery.Composite(ctx, collection, b.config.Aggregation, aoi)
	if err != nil {
		return nil, fmt.Errorf("building %s composite: %w", b.config.Aggregation, err)
	}

	partitions := aoi.Partitions(b.config.SplitAOI)
	jobs := make([]domain.ExportJob, 0, len(partitions)*len(b.config.Products))

	for _, partition := range partitions {
		for _, product := range b.config.Products {
			image, err := b.imagery.ProductImage(ctx, composite, collection, product, partition.Bounds)
			if err != nil {
				return nil, fmt.Errorf("preparing %s: %w", product.Name, err)
			}

			jobs = append(jobs, domain.ExportJob{
				Name:       domain.JobName(product.Name, interval, partition),
				Product:    product,
				Interval:   interval,
				Partition:  partition,
				Image:      image,
				Resolution: b.config.Resolution,
				Folder:     b.config.StagingFolder,
			})
		}
	}

	return jobs, nil
}
