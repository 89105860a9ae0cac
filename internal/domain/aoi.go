package domain

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
)

// AOIFeature is one geometry of an area of interest, in EPSG:4326.
type AOIFeature struct {
	Geometry   orb.Geometry
	Properties map[string]any
}

// AOI is an area of interest made of one or more features.
type AOI struct {
	Name     string
	Source   string
	Features []AOIFeature
}

// Validate checks that the AOI has at least one supported geometry.
func (a *AOI) Validate() error {
	if a == nil || len(a.Features) == 0 {
		return ErrEmptyAOI
	}
	for i, f := range a.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon, orb.Point:
		case nil:
			return fmt.Errorf("feature %d: %w", i, ErrEmptyAOI)
		default:
			return fmt.Errorf("feature %d: %w: %s", i, ErrUnsupportedGeometry, f.Geometry.GeoJSONType())
		}
	}
	return nil
}

// Bounds returns the total bounding box of every feature.
func (a *AOI) Bounds() orb.Bound {
	var bound orb.Bound
	for i, f := range a.Features {
		if i == 0 {
			bound = f.Geometry.Bound()
			continue
		}
		bound = bound.Union(f.Geometry.Bound())
	}
	return bound
}

// Partition is the region covered by one export of a product.
// Index is -1 when the whole AOI is exported at once.
type Partition struct {
	Index  int
	Bounds orb.Bound
}

// Whole reports whether the partition covers the total AOI bounds.
func (p Partition) Whole() bool {
	return p.Index < 0
}

// Suffix returns the job name suffix for the partition.
func (p Partition) Suffix() string {
	if p.Whole() {
		return ""
	}
	return fmt.Sprintf("_%d", p.Index)
}

// Partitions returns either one partition for the total bounds or, when
// split is set, one partition per feature in declaration order.
func (a *AOI) Partitions(split bool) []Partition {
	if !split {
		return []Partition{{Index: -1, Bounds: a.Bounds()}}
	}

	partitions := make([]Partition, len(a.Features))
	for i, f := range a.Features {
		partitions[i] = Partition{Index: i, Bounds: f.Geometry.Bound()}
	}
	return partitions
}

// NameFromPath derives an AOI name from its file path: the file name
// without extension.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	if path == "" {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
