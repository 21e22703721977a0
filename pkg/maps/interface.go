package maps

import "context"

// MapsProvider supplies route estimates for trip planning.
type MapsProvider interface {
	GetDirections(ctx context.Context, request *DirectionsRequest) (*DirectionsResponse, error)
	CalculateDistance(ctx context.Context, request *DistanceRequest) (*DistanceResponse, error)
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type DirectionsRequest struct {
	Origin      Location `json:"origin"`
	Destination Location `json:"destination"`
	Mode        string   `json:"mode"`            // driving, walking, bicycling, transit
	Avoid       []string `json:"avoid,omitempty"` // tolls, highways, ferries
}

type DirectionsResponse struct {
	Routes []Route `json:"routes"`
}

type Route struct {
	Summary  string   `json:"summary"`
	Distance Distance `json:"distance"`
	Duration Duration `json:"duration"`
	Polyline string   `json:"overview_polyline"`
}

type Distance struct {
	Text  string  `json:"text"`
	Value float64 `json:"value"` // in meters
}

type Duration struct {
	Text  string `json:"text"`
	Value int    `json:"value"` // in seconds
}

type DistanceRequest struct {
	Origins      []Location `json:"origins"`
	Destinations []Location `json:"destinations"`
	Mode         string     `json:"mode"`
	Units        string     `json:"units"` // metric, imperial
}

type DistanceResponse struct {
	Rows []DistanceRow `json:"rows"`
}

type DistanceRow struct {
	Elements []DistanceElement `json:"elements"`
}

type DistanceElement struct {
	Distance Distance `json:"distance"`
	Duration Duration `json:"duration"`
	Status   string   `json:"status"`
}
