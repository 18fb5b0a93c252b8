// Package geo holds great-circle helpers for location samples.
package geo

import "math"

const earthRadiusKm = 6371.0

// Point is a position in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// HaversineKm returns the great-circle distance between two positions in kilometers.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// DistanceMeters returns the distance between two points in meters.
func DistanceMeters(a, b Point) float64 {
	return HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng) * 1000
}

// PathKm sums the leg distances of an ordered path.
func PathKm(points []Point) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += HaversineKm(points[i-1].Lat, points[i-1].Lng, points[i].Lat, points[i].Lng)
	}
	return total
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
