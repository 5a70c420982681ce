// Package distance records GPS locations and the distance travelled while
// the participant is walking.
package distance

import (
	"context"
	"math"
	"time"
)

// earthRadius is the mean earth radius in meters.
const earthRadius = 6371008.8

// Location is one position fix. Negative accuracy, course or speed means
// the value is unknown.
type Location struct {
	SystemUptime       float64
	Time               time.Time
	Latitude           float64
	Longitude          float64
	Altitude           float64
	HorizontalAccuracy float64
	VerticalAccuracy   float64
	Course             float64
	Speed              float64
	Floor              *int
}

// LocationSource delivers position fixes until stopped.
type LocationSource interface {
	Start(ctx context.Context, sink func(Location)) error
	Stop() error
}

// Pedometer counts steps between Start and Stop.
type Pedometer interface {
	Start(ctx context.Context) error
	Stop() (steps int, err error)
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Haversine returns the great circle distance between a and b in meters.
func Haversine(a, b Location) float64 {
	lat1, lat2 := radians(a.Latitude), radians(b.Latitude)
	dLat := lat2 - lat1
	dLon := radians(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Bearing returns the initial bearing from a to b in degrees clockwise from
// true north, in [0, 360).
func Bearing(a, b Location) float64 {
	lat1, lat2 := radians(a.Latitude), radians(b.Latitude)
	dLon := radians(b.Longitude - a.Longitude)
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return math.Mod(degrees(math.Atan2(y, x))+360, 360)
}
