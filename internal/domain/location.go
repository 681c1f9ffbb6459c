package domain

import "time"

// Location is a courier's last reported position.
type Location struct {
	Lat        float64
	Lng        float64
	RecordedAt time.Time
}

// ValidCoordinates reports whether lat/lng are inside WGS84 ranges.
func ValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// NearbyCourier is a courier found by a radius search.
type NearbyCourier struct {
	CourierID  int64
	Location   Location
	DistanceKm float64
}

// Offer is a read-only snapshot of a live offer round.
type Offer struct {
	OrderID     int64
	Outstanding []int64
	Tried       []int64
	Remaining   int
	OfferedAt   time.Time
	ExpiresAt   time.Time
}
