package domain

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseAggregation(t *testing.T) {
	tests := []struct {
		input   string
		want    Aggregation
		wantErr bool
	}{
		{"median", AggregationMedian, false},
		{"MEAN", AggregationMean, false},
		{" median ", AggregationMedian, false},
		{"max", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAggregation(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedAggregation) {
					t.Errorf("ParseAggregation(%q) error = %v, want ErrUnsupportedAggregation", tt.input, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseAggregation(%q) = %v, %v, want %v", tt.input, got, err, tt.want)
			}
		})
	}
}

func TestLookupCollection(t *testing.T) {
	c, err := LookupCollection("Sentinel2")
	if err != nil {
		t.Fatalf("LookupCollection() error = %v", err)
	}
	if c.AssetID != "COPERNICUS/S2_SR_HARMONIZED" {
		t.Errorf("AssetID = %v", c.AssetID)
	}

	if _, err := LookupCollection("modis"); !errors.Is(err, ErrUnknownCollection) {
		t.Errorf("LookupCollection(modis) error = %v, want ErrUnknownCollection", err)
	}

	if got := CollectionNames(); !reflect.DeepEqual(got, []string{"landsat8", "sentinel2"}) {
		t.Errorf("CollectionNames() = %v", got)
	}
}

func TestResolveProducts(t *testing.T) {
	tests := []struct {
		name    string
		c       *Collection
		indices []string
		bands   []string
		count   bool
		want    []Product
		wantErr error
	}{
		{
			name:    "indices then bands then count",
			c:       Sentinel2,
			indices: []string{"NDVI", "NBR"},
			bands:   []string{"B4", "SCL"},
			count:   true,
			want: []Product{
				{ProductIndex, "NDVI"},
				{ProductIndex, "NBR"},
				{ProductBand, "B4"},
				{ProductBand, "SCL"},
				{ProductCount, CountProduct},
			},
		},
		{
			name:    "blanks and duplicates ignored",
			c:       Sentinel2,
			indices: []string{"NDVI", " ", "NDVI"},
			want:    []Product{{ProductIndex, "NDVI"}},
		},
		{
			name:  "count only",
			c:     Landsat8,
			count: true,
			want:  []Product{{ProductCount, CountProduct}},
		},
		{
			name:    "unknown index",
			c:       Sentinel2,
			indices: []string{"EVI"},
			wantErr: ErrUnknownProduct,
		},
		{
			name:    "index not offered by collection",
			c:       Landsat8,
			indices: []string{"NDVI"},
			wantErr: ErrUnknownProduct,
		},
		{
			name:    "unknown band",
			c:       Sentinel2,
			bands:   []string{"B13"},
			wantErr: ErrUnknownProduct,
		},
		{
			name:    "nothing requested",
			c:       Sentinel2,
			wantErr: ErrNoProducts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.c.ResolveProducts(tt.indices, tt.bands, tt.count)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ResolveProducts() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveProducts() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ResolveProducts() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSentinel2Catalogue(t *testing.T) {
	scales := map[string]float64{
		"B8A":  0.0001,
		"B12":  0.0001,
		"WVP":  0.001,
		"AOT":  0.001,
		"SCL":  0,
		"QA60": 0,
	}
	for band, want := range scales {
		def, ok := Sentinel2.Band(band)
		if !ok {
			t.Errorf("band %s missing", band)
			continue
		}
		if def.Scale != want {
			t.Errorf("band %s scale = %v, want %v", band, def.Scale, want)
		}
	}

	redness, ok := Sentinel2.Index("Redness")
	if !ok {
		t.Fatal("Redness index missing")
	}
	if redness.Output != "RI" || redness.Bands[0] != ResampledName("B5", 10) {
		t.Errorf("Redness = %+v", redness)
	}

	for name, def := range Sentinel2.Indices {
		if def.Name != name {
			t.Errorf("index %s has name %s", name, def.Name)
		}
	}
}
