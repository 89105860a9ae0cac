// Package aoifile selects the AOI reader from the file extension.
package aoifile

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/output"
)

// Extensions lists the AOI file extensions the reader accepts.
var Extensions = []string{".geojson", ".json", ".gpkg"}

// Reader dispatches to the GeoJSON or GeoPackage reader.
type Reader struct {
	geojson    output.AOIReader
	geopackage output.AOIReader
}

// Ensure Reader implements the AOI reader port.
var _ output.AOIReader = (*Reader)(nil)

// NewReader creates a dispatching reader.
func NewReader(geojson, geopackage output.AOIReader) *Reader {
	return &Reader{geojson: geojson, geopackage: geopackage}
}

// Supported reports whether the path has an AOI file extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ReadAOI implements output.AOIReader.
func (r *Reader) ReadAOI(ctx context.Context, path string) (*domain.AOI, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return r.geojson.ReadAOI(ctx, path)
	case ".gpkg":
		return r.geopackage.ReadAOI(ctx, path)
	default:
		return nil, fmt.Errorf("area of interest %s: %w: want one of %s",
			path, domain.ErrUnsupported, strings.Join(Extensions, ", "))
	}
}
