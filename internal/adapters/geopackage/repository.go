// Package geopackage reads areas of interest from OGC GeoPackage files.
package geopackage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/output"
)

// wgs84 is the only spatial reference accepted for AOIs.
const wgs84 = 4326

// Reader implements the AOIReader port for GeoPackage files.
type Reader struct {
	layer string // Feature table to read; the first one when empty
}

// Ensure Reader implements the AOI reader port.
var _ output.AOIReader = (*Reader)(nil)

// NewReader creates a new GeoPackage reader.
func NewReader(layer string) *Reader {
	return &Reader{layer: layer}
}

// layer describes a feature table registered in gpkg_contents.
type layer struct {
	Name           string
	GeometryColumn string
	GeometryType   string
	SRID           int
}

// ReadAOI implements output.AOIReader.
func (r *Reader) ReadAOI(ctx context.Context, path string) (*domain.AOI, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("area of interest %s: %w", path, domain.ErrMissingFile)
		}
		return nil, err
	}

	db, err := openDB(ctx, path)
	if err != nil {
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}
	defer func() { _ = db.Close() }()

	l, err := r.readLayer(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if l.SRID != wgs84 {
		return nil, fmt.Errorf("layer %s uses EPSG:%d, want EPSG:%d: %w", l.Name, l.SRID, wgs84, domain.ErrUnsupportedProjection)
	}

	features, err := readFeatures(ctx, db, l)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return &domain.AOI{
		Name:     domain.NameFromPath(path),
		Source:   path,
		Features: features,
	}, nil
}

// openDB opens the GeoPackage read-only.
func openDB(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// readLayer reads the feature table to load from gpkg_contents.
func (r *Reader) readLayer(ctx context.Context, db *sql.DB) (layer, error) {
	query := `
		SELECT
			c.table_name,
			g.column_name,
			g.geometry_type_name,
			g.srs_id
		FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON c.table_name = g.table_name
		WHERE c.data_type = 'features'
		ORDER BY c.table_name
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return layer{}, fmt.Errorf("reading layers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var layers []layer
	for rows.Next() {
		var l layer
		if err := rows.Scan(&l.Name, &l.GeometryColumn, &l.GeometryType, &l.SRID); err != nil {
			return layer{}, fmt.Errorf("scanning layer: %w", err)
		}
		layers = append(layers, l)
	}
	if err := rows.Err(); err != nil {
		return layer{}, err
	}

	if len(layers) == 0 {
		return layer{}, domain.ErrEmptyAOI
	}
	if r.layer == "" {
		return layers[0], nil
	}
	for _, l := range layers {
		if l.Name == r.layer {
			return l, nil
		}
	}
	return layer{}, fmt.Errorf("layer %q: %w", r.layer, domain.ErrNotFound)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// readFeatures loads every row of the layer in table order.
func readFeatures(ctx context.Context, db *sql.DB, l layer) ([]domain.AOIFeature, error) {
	query := "SELECT * FROM " + quoteIdent(l.Name) + " ORDER BY rowid" //#nosec G202 -- table name from gpkg_contents, quoted

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying features: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var features []domain.AOIFeature
	for rows.Next() {
		f, err := scanFeature(rows, columns, l.GeometryColumn)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", len(features), err)
		}
		if f.Geometry == nil {
			continue
		}
		features = append(features, f)
	}

	return features, rows.Err()
}

// scanFeature scans a row into a feature. Non-geometry columns become properties.
func scanFeature(rows *sql.Rows, columns []string, geomColumn string) (domain.AOIFeature, error) {
	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return domain.AOIFeature{}, err
	}

	feature := domain.AOIFeature{Properties: make(map[string]any)}
	for i, col := range columns {
		if col == geomColumn {
			blob, ok := values[i].([]byte)
			if !ok || blob == nil {
				continue
			}
			geom, err := DecodeGeometry(blob)
			if err != nil {
				return domain.AOIFeature{}, err
			}
			feature.Geometry = geom
			continue
		}

		switch v := values[i].(type) {
		case nil:
		case []byte:
			feature.Properties[col] = string(v)
		default:
			feature.Properties[col] = v
		}
	}

	return feature, nil
}

// envelopeSizes maps the envelope indicator of the header flags to its byte length.
var envelopeSizes = map[byte]int{0: 0, 1: 32, 2: 48, 3: 48, 4: 64}

// DecodeGeometry decodes a GeoPackage binary geometry: the GP header
// followed by standard WKB. An empty geometry decodes to nil.
func DecodeGeometry(blob []byte) (orb.Geometry, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, fmt.Errorf("geometry blob: missing GP header: %w", domain.ErrInvalidInput)
	}

	flags := blob[3]
	envelope, ok := envelopeSizes[(flags>>1)&0x07]
	if !ok {
		return nil, fmt.Errorf("geometry blob: invalid envelope indicator: %w", domain.ErrInvalidInput)
	}
	if flags&0x10 != 0 {
		return nil, nil
	}

	var order binary.ByteOrder = binary.BigEndian
	if flags&0x01 != 0 {
		order = binary.LittleEndian
	}
	if srs := int32(order.Uint32(blob[4:8])); srs > 0 && srs != wgs84 {
		return nil, fmt.Errorf("geometry uses EPSG:%d: %w", srs, domain.ErrUnsupportedProjection)
	}

	offset := 8 + envelope
	if len(blob) < offset {
		return nil, fmt.Errorf("geometry blob: truncated header: %w", domain.ErrInvalidInput)
	}

	geom, err := wkb.Unmarshal(blob[offset:])
	if err != nil {
		return nil, fmt.Errorf("decoding wkb: %w", err)
	}
	return geom, nil
}
