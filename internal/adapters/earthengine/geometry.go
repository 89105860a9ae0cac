package earthengine

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/jobrunner/geefetch/internal/domain"
)

func loadCollection(id string) Value {
	return Invoke("ImageCollection.load", map[string]Value{"id": Constant(id)})
}

func filterCollection(collection, filter Value) Value {
	return Invoke("Collection.filter", map[string]Value{
		"collection": collection,
		"filter":     filter,
	})
}

func mapCollection(collection Value, param string, body Value) Value {
	return Invoke("Collection.map", map[string]Value{
		"collection":    collection,
		"baseAlgorithm": Lambda([]string{param}, body),
	})
}

// dateRange covers every instant of the interval. The end is exclusive on
// the server, so it is moved one microsecond past the last instant.
func dateRange(interval domain.Interval) Value {
	return Invoke("DateRange", map[string]Value{
		"start": Constant(interval.Start.UnixMilli()),
		"end":   Constant(interval.End.Add(time.Microsecond).UnixMilli()),
	})
}

func bboxGeometry(b orb.Bound) Value {
	return Invoke("GeometryConstructors.BBox", map[string]Value{
		"west":  Constant(b.Min.X()),
		"south": Constant(b.Min.Y()),
		"east":  Constant(b.Max.X()),
		"north": Constant(b.Max.Y()),
	})
}

func geometry(g orb.Geometry) (Value, error) {
	switch g := g.(type) {
	case orb.Point:
		return Invoke("GeometryConstructors.Point", map[string]Value{"coordinates": Constant(g)}), nil
	case orb.Polygon:
		return Invoke("GeometryConstructors.Polygon", map[string]Value{"coordinates": Constant(g)}), nil
	case orb.MultiPolygon:
		return Invoke("GeometryConstructors.MultiPolygon", map[string]Value{"coordinates": Constant(g)}), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", domain.ErrUnsupportedGeometry, g)
	}
}

func featureCollection(aoi *domain.AOI) (Value, error) {
	features := make([]Value, 0, len(aoi.Features))
	for i, f := range aoi.Features {
		geom, err := geometry(f.Geometry)
		if err != nil {
			return Value{}, fmt.Errorf("feature %d: %w", i, err)
		}
		properties := f.Properties
		if properties == nil {
			properties = map[string]any{}
		}
		features = append(features, Invoke("Feature", map[string]Value{
			"geometry": geom,
			"metadata": Constant(properties),
		}))
	}
	return Invoke("Collection", map[string]Value{"features": Array(features...)}), nil
}
