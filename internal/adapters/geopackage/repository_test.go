package geopackage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/jobrunner/geefetch/internal/domain"
)

// encodeGeometry builds a GeoPackage geometry blob without envelope.
func encodeGeometry(t *testing.T, geom orb.Geometry, srs int32, envelope byte) []byte {
	t.Helper()

	body, err := wkb.Marshal(geom, binary.LittleEndian)
	if err != nil {
		t.Fatalf("wkb.Marshal() error = %v", err)
	}

	header := []byte{'G', 'P', 0, 0x01 | envelope<<1, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(header[4:], uint32(srs))
	if envelope == 1 {
		header = append(header, make([]byte, 32)...)
	}
	return append(header, body...)
}

// createGeoPackage writes a minimal GeoPackage with one feature table.
func createGeoPackage(t *testing.T, srs int32, blobs ...[]byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fields.gpkg")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	stmts := []string{
		`CREATE TABLE gpkg_contents (table_name TEXT PRIMARY KEY, data_type TEXT NOT NULL)`,
		`CREATE TABLE gpkg_geometry_columns (table_name TEXT, column_name TEXT, geometry_type_name TEXT, srs_id INTEGER)`,
		`CREATE TABLE fields (fid INTEGER PRIMARY KEY, geom BLOB, name TEXT, area REAL)`,
		`INSERT INTO gpkg_contents VALUES ('fields', 'features')`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	if _, err := db.Exec(`INSERT INTO gpkg_geometry_columns VALUES ('fields', 'geom', 'POLYGON', ?)`, srs); err != nil {
		t.Fatalf("insert geometry column: %v", err)
	}
	for i, blob := range blobs {
		if _, err := db.Exec(`INSERT INTO fields (geom, name, area) VALUES (?, ?, ?)`, blob, []byte("field"), float64(i)+0.5); err != nil {
			t.Fatalf("insert feature: %v", err)
		}
	}

	return path
}

func square(x, y float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}}
}

func TestReadAOI(t *testing.T) {
	path := createGeoPackage(t, wgs84,
		encodeGeometry(t, square(10, 50), wgs84, 0),
		encodeGeometry(t, square(12, 51), wgs84, 1),
	)

	aoi, err := NewReader("").ReadAOI(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadAOI() error = %v", err)
	}

	if aoi.Name != "fields" {
		t.Errorf("Name = %q, want fields", aoi.Name)
	}
	if len(aoi.Features) != 2 {
		t.Fatalf("len(Features) = %d, want 2", len(aoi.Features))
	}

	want := orb.Bound{Min: orb.Point{10, 50}, Max: orb.Point{13, 52}}
	if got := aoi.Bounds(); !got.Equal(want) {
		t.Errorf("Bounds() = %v, want %v", got, want)
	}

	props := aoi.Features[1].Properties
	if props["name"] != "field" {
		t.Errorf("name property = %v, want field", props["name"])
	}
	if props["area"] != 1.5 {
		t.Errorf("area property = %v, want 1.5", props["area"])
	}
	if _, ok := props["geom"]; ok {
		t.Error("geometry column must not be a property")
	}
}

func TestReadAOI_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewReader("").ReadAOI(context.Background(), filepath.Join(t.TempDir(), "none.gpkg"))
		if !errors.Is(err, domain.ErrMissingFile) {
			t.Errorf("error = %v, want ErrMissingFile", err)
		}
	})

	t.Run("projected layer", func(t *testing.T) {
		path := createGeoPackage(t, 25832, encodeGeometry(t, square(0, 0), 25832, 0))
		_, err := NewReader("").ReadAOI(context.Background(), path)
		if !errors.Is(err, domain.ErrUnsupportedProjection) {
			t.Errorf("error = %v, want ErrUnsupportedProjection", err)
		}
	})

	t.Run("unknown layer", func(t *testing.T) {
		path := createGeoPackage(t, wgs84, encodeGeometry(t, square(0, 0), wgs84, 0))
		_, err := NewReader("roads").ReadAOI(context.Background(), path)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestDecodeGeometry(t *testing.T) {
	point := orb.Point{7.5, 51.2}

	tests := []struct {
		name    string
		blob    []byte
		want    orb.Geometry
		wantErr error
	}{
		{"no envelope", encodeGeometry(t, point, wgs84, 0), point, nil},
		{"xy envelope", encodeGeometry(t, point, wgs84, 1), point, nil},
		{"undefined srs", encodeGeometry(t, point, 0, 0), point, nil},
		{"empty flag", []byte{'G', 'P', 0, 0x11, 0xE6, 0x10, 0, 0}, nil, nil},
		{"bad magic", []byte("XX\x00\x01\x00\x00\x00\x00"), nil, domain.ErrInvalidInput},
		{"too short", []byte("GP"), nil, domain.ErrInvalidInput},
		{"bad envelope", []byte{'G', 'P', 0, 0x0B, 0, 0, 0, 0}, nil, domain.ErrInvalidInput},
		{"projected", encodeGeometry(t, point, 3857, 0), nil, domain.ErrUnsupportedProjection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeGeometry(tt.blob)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("DecodeGeometry() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeGeometry() error = %v", err)
			}
			if tt.want == nil {
				if got != nil {
					t.Errorf("DecodeGeometry() = %v, want nil", got)
				}
				return
			}
			if !orb.Equal(got, tt.want) {
				t.Errorf("DecodeGeometry() = %v, want %v", got, tt.want)
			}
		})
	}
}
