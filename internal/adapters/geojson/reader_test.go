package geojson

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/jobrunner/geefetch/internal/domain"
)

const twoFields = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"plot_id": "a"},
     "geometry": {"type": "Polygon", "coordinates": [[[10,50],[11,50],[11,51],[10,51],[10,50]]]}},
    {"type": "Feature", "properties": {"plot_id": "b"}, "geometry": null},
    {"type": "Feature", "properties": {"plot_id": "c"},
     "geometry": {"type": "Point", "coordinates": [12.5, 52]}}
  ]
}`

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantTypes []string
		wantErr   error
	}{
		{
			name:      "feature collection skips null geometry",
			input:     twoFields,
			wantTypes: []string{"Polygon", "Point"},
		},
		{
			name:      "single feature",
			input:     `{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,2]}}`,
			wantTypes: []string{"Point"},
		},
		{
			name:      "bare geometry",
			input:     `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]]]}`,
			wantTypes: []string{"MultiPolygon"},
		},
		{
			name:      "crs84 accepted",
			input:     `{"type":"Point","coordinates":[1,2],"crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:OGC:1.3:CRS84"}}}`,
			wantTypes: []string{"Point"},
		},
		{
			name:    "projected crs",
			input:   `{"type":"Point","coordinates":[1,2],"crs":{"type":"name","properties":{"name":"EPSG:25832"}}}`,
			wantErr: domain.ErrUnsupportedProjection,
		},
		{
			name:    "missing type",
			input:   `{"coordinates":[1,2]}`,
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "not json",
			input:   `field.shp`,
			wantErr: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(got) != len(tt.wantTypes) {
				t.Fatalf("len(Decode()) = %d, want %d", len(got), len(tt.wantTypes))
			}
			for i, f := range got {
				if f.Geometry.GeoJSONType() != tt.wantTypes[i] {
					t.Errorf("feature %d type = %s, want %s", i, f.Geometry.GeoJSONType(), tt.wantTypes[i])
				}
			}
		})
	}
}

func TestReadAOI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "farm.geojson")
	if err := os.WriteFile(path, []byte(twoFields), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	aoi, err := NewReader().ReadAOI(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadAOI() error = %v", err)
	}
	if aoi.Name != "farm" || aoi.Source != path {
		t.Errorf("AOI = %q from %q", aoi.Name, aoi.Source)
	}
	if aoi.Features[0].Properties["plot_id"] != "a" {
		t.Errorf("properties = %v", aoi.Features[0].Properties)
	}

	want := orb.Bound{Min: orb.Point{10, 50}, Max: orb.Point{12.5, 52}}
	if got := aoi.Bounds(); !got.Equal(want) {
		t.Errorf("Bounds() = %v, want %v", got, want)
	}

	_, err = NewReader().ReadAOI(context.Background(), filepath.Join(dir, "missing.geojson"))
	if !errors.Is(err, domain.ErrMissingFile) {
		t.Errorf("missing file error = %v, want ErrMissingFile", err)
	}
}
