package domain

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Aggregation is the reducer used to build a period composite.
type Aggregation string

// Supported aggregations.
const (
	AggregationMedian Aggregation = "median"
	AggregationMean   Aggregation = "mean"
)

// ParseAggregation validates an aggregation function name.
func ParseAggregation(name string) (Aggregation, error) {
	switch Aggregation(strings.ToLower(strings.TrimSpace(name))) {
	case AggregationMedian:
		return AggregationMedian, nil
	case AggregationMean:
		return AggregationMean, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAggregation, name)
	}
}

// ProductKind distinguishes the three kinds of exported rasters.
type ProductKind int

// Product kinds, in export order.
const (
	ProductIndex ProductKind = iota
	ProductBand
	ProductCount
)

// String returns the string representation of the kind.
func (k ProductKind) String() string {
	switch k {
	case ProductIndex:
		return "index"
	case ProductBand:
		return "band"
	case ProductCount:
		return "count"
	default:
		return "unknown"
	}
}

// CountProduct is the name of the per-pixel observation count raster.
const CountProduct = "COUNT"

// Product is one raster exported per period and partition.
type Product struct {
	Kind ProductKind
	Name string
}

// Formula is the band math applied by a spectral index.
type Formula int

// Index formulas.
const (
	// FormulaNormalizedDifference computes (a - b) / (a + b).
	FormulaNormalizedDifference Formula = iota
	// FormulaMagnitude computes sqrt(a*a + b*b).
	FormulaMagnitude
)

// IndexDefinition describes a spectral index evaluated remotely.
type IndexDefinition struct {
	Name     string
	Output   string    // Output band name
	Formula  Formula   // Band math
	Bands    [2]string // Operand bands, after resampling
	Resample []string  // Bands resampled to 10 m first; operand name gets a _10m suffix
}

// ResampledName returns the name of a band after resampling to the given scale.
func ResampledName(band string, scale int) string {
	return fmt.Sprintf("%s_%dm", band, scale)
}

// BandDefinition describes an exportable band and its scale factor.
// A zero Scale exports the raw values.
type BandDefinition struct {
	Name  string
	Scale float64
}

// CloudMask selects how a collection masks clouds.
type CloudMask int

// Cloud masking strategies.
const (
	// MaskCloudScore links Cloud Score+ and keeps pixels at or above the threshold.
	MaskCloudScore CloudMask = iota
	// MaskQABits drops pixels with the cloud shadow (bit 3) or cloud (bit 5) QA flags.
	MaskQABits
)

// Collection describes a supported image collection.
type Collection struct {
	Name            string
	AssetID         string
	CloudMask       CloudMask
	CloudScoreAsset string  // Linked collection for MaskCloudScore
	CloudScoreBand  string  // Linked band for MaskCloudScore
	QABand          string  // QA band for MaskQABits
	Reflectance     float64 // Divisor applied to every image after masking, 0 for none
	CountBand       string  // Band counted by the COUNT product
	Bands           map[string]BandDefinition
	Indices         map[string]IndexDefinition
}

func scaled(scale float64, names ...string) map[string]BandDefinition {
	bands := make(map[string]BandDefinition, len(names))
	for _, n := range names {
		bands[n] = BandDefinition{Name: n, Scale: scale}
	}
	return bands
}

func mergeBands(groups ...map[string]BandDefinition) map[string]BandDefinition {
	merged := make(map[string]BandDefinition)
	for _, g := range groups {
		for k, v := range g {
			merged[k] = v
		}
	}
	return merged
}

// Sentinel2 is the harmonized Sentinel-2 surface reflectance collection.
var Sentinel2 = &Collection{
	Name:            "sentinel2",
	AssetID:         "COPERNICUS/S2_SR_HARMONIZED",
	CloudMask:       MaskCloudScore,
	CloudScoreAsset: "GOOGLE/CLOUD_SCORE_PLUS/V1/S2_HARMONIZED",
	CloudScoreBand:  "cs_cdf",
	CountBand:       "B2",
	Bands: mergeBands(
		scaled(0.0001, "B1", "B2", "B3", "B4", "B5", "B6", "B7", "B8", "B8A", "B9", "B11", "B12"),
		scaled(0.001, "WVP", "AOT"),
		scaled(0, "SCL", "TCI_R", "TCI_G", "TCI_B", "MSK_CLDPRB", "MSK_SNWPRB", "QA10", "QA20", "QA60"),
	),
	Indices: map[string]IndexDefinition{
		"NDVI": {
			Name: "NDVI", Output: "NDVI",
			Bands: [2]string{"B8", "B4"},
		},
		"NDWIv": {
			Name: "NDWIv", Output: "NDWIv",
			Bands:    [2]string{"B8", "B11_10m"},
			Resample: []string{"B11"},
		},
		"NDWIw": {
			Name: "NDWIw", Output: "NDWIw",
			Bands: [2]string{"B3", "B8"},
		},
		"Redness": {
			Name: "Redness", Output: "RI",
			Bands:    [2]string{"B5_10m", "B3"},
			Resample: []string{"B5"},
		},
		"NBR": {
			Name: "NBR", Output: "NBR",
			Bands:    [2]string{"B8", "B12_10m"},
			Resample: []string{"B12"},
		},
		"Brightness": {
			Name: "Brightness", Output: "BI",
			Formula: FormulaMagnitude,
			Bands:   [2]string{"B4", "B8"},
		},
	},
}

// Landsat8 is the Landsat 8 surface reflectance collection.
var Landsat8 = &Collection{
	Name:        "landsat8",
	AssetID:     "LANDSAT/LC08/C01/T1_SR",
	CloudMask:   MaskQABits,
	QABand:      "pixel_qa",
	Reflectance: 10000,
	CountBand:   "B2",
	Bands: mergeBands(
		scaled(0, "B1", "B2", "B3", "B4", "B5", "B6", "B7", "B10", "B11"),
	),
	Indices: map[string]IndexDefinition{},
}

var collections = map[string]*Collection{
	Sentinel2.Name: Sentinel2,
	Landsat8.Name:  Landsat8,
}

// LookupCollection returns the collection registered under name.
func LookupCollection(name string) (*Collection, error) {
	c, ok := collections[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownCollection, name,
			strings.Join(CollectionNames(), ", "))
	}
	return c, nil
}

// CollectionNames returns the registered collection names, sorted.
func CollectionNames() []string {
	names := make([]string, 0, len(collections))
	for n := range collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Index returns the definition of a spectral index.
func (c *Collection) Index(name string) (IndexDefinition, bool) {
	def, ok := c.Indices[name]
	return def, ok
}

// Band returns the definition of an exportable band.
func (c *Collection) Band(name string) (BandDefinition, bool) {
	def, ok := c.Bands[name]
	return def, ok
}

// ResolveProducts validates the requested products and returns them in
// export order: indices as requested, then bands as requested, then COUNT.
// Blank and repeated names are ignored.
func (c *Collection) ResolveProducts(indices, bands []string, count bool) ([]Product, error) {
	var products []Product
	seen := make(map[string]bool)

	add := func(kind ProductKind, name string) {
		key := kind.String() + ":" + name
		if seen[key] {
			return
		}
		seen[key] = true
		products = append(products, Product{Kind: kind, Name: name})
	}

	for _, raw := range indices {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, ok := c.Index(name); !ok {
			return nil, fmt.Errorf("%w: index %q is not available for %s", ErrUnknownProduct, name, c.Name)
		}
		add(ProductIndex, name)
	}

	for _, raw := range bands {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, ok := c.Band(name); !ok {
			return nil, fmt.Errorf("%w: band %q is not available for %s", ErrUnknownProduct, name, c.Name)
		}
		add(ProductBand, name)
	}

	if count {
		add(ProductCount, CountProduct)
	}

	if len(products) == 0 {
		return nil, ErrNoProducts
	}

	return slices.Clip(products), nil
}
