// Package geojson reads areas of interest from GeoJSON files.
package geojson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/output"
)

// Reader implements the AOIReader port for GeoJSON files.
// A file may hold a FeatureCollection, a single Feature or a bare Geometry.
type Reader struct{}

// Ensure Reader implements the AOI reader port.
var _ output.AOIReader = (*Reader)(nil)

// NewReader creates a new GeoJSON reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadAOI implements output.AOIReader.
func (r *Reader) ReadAOI(_ context.Context, path string) (*domain.AOI, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided AOI file
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("area of interest %s: %w", path, domain.ErrMissingFile)
		}
		return nil, err
	}

	features, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return &domain.AOI{
		Name:     domain.NameFromPath(path),
		Source:   path,
		Features: features,
	}, nil
}

// probe holds the members needed to pick a decoder.
type probe struct {
	Type string `json:"type"`
	CRS  *struct {
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
}

// Decode parses GeoJSON into AOI features in document order.
// Features without geometry are dropped.
func Decode(data []byte) ([]domain.AOIFeature, error) {
	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing geojson: %w: %v", domain.ErrInvalidInput, err)
	}
	if err := checkCRS(p); err != nil {
		return nil, err
	}

	switch p.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("parsing feature collection: %w: %v", domain.ErrInvalidInput, err)
		}
		features := make([]domain.AOIFeature, 0, len(fc.Features))
		for _, f := range fc.Features {
			if f.Geometry == nil {
				continue
			}
			features = append(features, domain.AOIFeature{Geometry: f.Geometry, Properties: f.Properties})
		}
		return features, nil

	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("parsing feature: %w: %v", domain.ErrInvalidInput, err)
		}
		if f.Geometry == nil {
			return nil, nil
		}
		return []domain.AOIFeature{{Geometry: f.Geometry, Properties: f.Properties}}, nil

	case "":
		return nil, fmt.Errorf("geojson object has no type: %w", domain.ErrInvalidInput)

	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("parsing geometry: %w: %v", domain.ErrInvalidInput, err)
		}
		return []domain.AOIFeature{{Geometry: g.Geometry(), Properties: map[string]any{}}}, nil
	}
}

// checkCRS rejects the legacy crs member unless it names WGS 84.
func checkCRS(p probe) error {
	if p.CRS == nil {
		return nil
	}
	name := strings.ToUpper(p.CRS.Properties.Name)
	if name == "" || strings.HasSuffix(name, "CRS84") || strings.HasSuffix(name, ":4326") {
		return nil
	}
	return fmt.Errorf("crs %s: %w", p.CRS.Properties.Name, domain.ErrUnsupportedProjection)
}
