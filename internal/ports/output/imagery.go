package output

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/jobrunner/geefetch/internal/domain"
)

// ImageryBackend defines the secondary port for the remote imagery service.
// Collection and image values are lazy expressions; only CollectionSize,
// SubmitExport and PollStatus talk to the service.
type ImageryBackend interface {
	// ImageCollection returns the masked collection for one period and area.
	ImageCollection(ctx context.Context, filter domain.CollectionFilter) (domain.CollectionRef, error)

	// CollectionSize returns the number of images in a collection.
	CollectionSize(ctx context.Context, collection domain.CollectionRef) (int, error)

	// Composite reduces a collection and clips it to the AOI.
	Composite(ctx context.Context, collection domain.CollectionRef, aggregation domain.Aggregation, aoi *domain.AOI) (domain.ImageRef, error)

	// ProductImage derives the raster of one product.
	ProductImage(ctx context.Context, composite domain.ImageRef, collection domain.CollectionRef, product domain.Product, bounds orb.Bound) (domain.ImageRef, error)

	// SubmitExport starts an export task.
	SubmitExport(ctx context.Context, job domain.ExportJob) (domain.TaskHandle, error)

	// PollStatus returns the current status of an export task.
	PollStatus(ctx context.Context, handle domain.TaskHandle) (domain.TaskStatus, error)
}

// AOIReader defines the secondary port for loading areas of interest.
type AOIReader interface {
	// ReadAOI loads the features of a vector file in EPSG:4326.
	ReadAOI(ctx context.Context, path string) (*domain.AOI, error)
}

// ReportWriter defines the secondary port for persisting run reports.
type ReportWriter interface {
	// WriteReport stores the report of a finished run.
	WriteReport(ctx context.Context, report *domain.RunReport) error
}

// Progress defines the secondary port for interactive progress display.
type Progress interface {
	// Describe sets the current activity.
	Describe(description string)

	// Advance marks one export as processed.
	Advance()

	// Close finishes the display.
	Close() error
}

// NoOpProgress is a Progress that displays nothing.
type NoOpProgress struct{}

// Describe implements Progress.
func (NoOpProgress) Describe(_ string) {}

// Advance implements Progress.
func (NoOpProgress) Advance() {}

// Close implements Progress.
func (NoOpProgress) Close() error { return nil }
