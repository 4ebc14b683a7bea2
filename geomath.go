package streetsim

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	earthRadius = 6370.986884258304
	pi180       = math.Pi / 180.0
)

// degreesToRadians r = deg * pi / 180
func degreesToRadians(d float64) float64 {
	return d * pi180
}

// azimuth returns the bearing of the segment src->dst in radians, measured
// as atan2(delta_lat, delta_lon). Points are orb.Point{lon, lat}.
func azimuth(src, dst orb.Point) float64 {
	return math.Atan2(dst.Lat()-src.Lat(), dst.Lon()-src.Lon())
}

// greatCircleDistance returns the distance between two geo-points (kilometers)
func greatCircleDistance(p, q orb.Point) float64 {
	lat1 := degreesToRadians(p.Lat())
	lon1 := degreesToRadians(p.Lon())
	lat2 := degreesToRadians(q.Lat())
	lon2 := degreesToRadians(q.Lon())
	diffLat := lat2 - lat1
	diffLon := lon2 - lon1
	a := math.Pow(math.Sin(diffLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(diffLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return c * earthRadius
}
