package cypher

import (
	"math"
	"strings"

	"github.com/orneryd/grafito/pkg/storage"
)

// Spatial functions: point() and distance(). Cartesian points (SRID 7203)
// measure Euclidean distance; geographic points (SRID 4326, x=longitude,
// y=latitude) measure great-circle meters via the haversine formula.

const earthRadiusMeters = 6378137.0

func callSpatial(name string, args []any) (any, bool, error) {
	switch strings.ToLower(name) {
	case "point":
		v, err := pointConstructor(args)
		return v, true, err
	case "distance", "point.distance":
		v, err := pointDistance(args)
		return v, true, err
	}
	return nil, false, nil
}

func pointConstructor(args []any) (any, error) {
	if len(args) != 1 {
		return nil, execErrorf("point() expects 1 argument")
	}
	if args[0] == nil {
		return nil, nil
	}
	m, ok := args[0].(map[string]any)
	if !ok {
		return nil, execErrorf("point() expects a map, got %s", valueTypeName(args[0]))
	}
	getNum := func(key string) (float64, bool) {
		v, ok := m[key]
		if !ok {
			return 0, false
		}
		f, ok := numeric(v)
		return f, ok
	}
	if lon, ok := getNum("longitude"); ok {
		lat, ok := getNum("latitude")
		if !ok {
			return nil, execErrorf("point() with longitude requires latitude")
		}
		return storage.Point{X: lon, Y: lat, SRID: storage.SRIDGeographic}, nil
	}
	x, xok := getNum("x")
	y, yok := getNum("y")
	if !xok || !yok {
		return nil, execErrorf("point() requires x/y or longitude/latitude")
	}
	srid := storage.SRIDCartesian
	if s, ok := getNum("srid"); ok {
		srid = int(s)
	}
	return storage.Point{X: x, Y: y, SRID: srid}, nil
}

func pointDistance(args []any) (any, error) {
	if len(args) != 2 {
		return nil, execErrorf("distance() expects 2 arguments")
	}
	if args[0] == nil || args[1] == nil {
		return nil, nil
	}
	a, aok := args[0].(storage.Point)
	b, bok := args[1].(storage.Point)
	if !aok || !bok {
		return nil, execErrorf("distance() expects two points")
	}
	if a.SRID != b.SRID {
		return nil, execErrorf("distance() requires points in the same coordinate system")
	}
	if a.SRID == storage.SRIDGeographic {
		return haversine(a.Y, a.X, b.Y, b.X), nil
	}
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy), nil
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := math.Pi / 180
	phi1 := lat1 * toRad
	phi2 := lat2 * toRad
	dPhi := (lat2 - lat1) * toRad
	dLambda := (lon2 - lon1) * toRad
	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
