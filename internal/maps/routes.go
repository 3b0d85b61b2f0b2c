// README: Road-distance and ETA estimates via Google Maps, with haversine fallback.
package maps

import (
	"context"
	"fmt"

	gmaps "googlemaps.github.io/maps"

	"towline/internal/geo"
	"towline/internal/types"
)

// Estimate is a routed distance/time answer for one leg.
type Estimate struct {
	DistanceMiles float64
	Minutes       int
}

// Estimator answers "how far and how long by road". Stateless services use it
// for quotes and ETA pushes.
type Estimator interface {
	Route(ctx context.Context, origin, destination types.Point) (Estimate, error)
}

// HaversineEstimator approximates road travel with great-circle distance and
// a flat average speed. Always available; no external calls.
type HaversineEstimator struct {
	AvgSpeedMph float64
}

func (e HaversineEstimator) Route(_ context.Context, origin, destination types.Point) (Estimate, error) {
	d := geo.DistanceMiles(origin, destination)
	speed := e.AvgSpeedMph
	if speed <= 0 {
		speed = geo.DefaultAvgSpeedMph
	}
	return Estimate{DistanceMiles: d, Minutes: geo.ETAMinutes(d, speed)}, nil
}

// RouteService queries the Google Maps Directions API and falls back to
// haversine when the API errors or finds no route.
type RouteService struct {
	client   *gmaps.Client
	fallback HaversineEstimator
}

func NewRouteService(apiKey string, avgSpeedMph float64) (*RouteService, error) {
	client, err := gmaps.NewClient(gmaps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return &RouteService{client: client, fallback: HaversineEstimator{AvgSpeedMph: avgSpeedMph}}, nil
}

func (s *RouteService) Route(ctx context.Context, origin, destination types.Point) (Estimate, error) {
	r := &gmaps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lng),
		Destination: fmt.Sprintf("%f,%f", destination.Lat, destination.Lng),
		Mode:        gmaps.TravelModeDriving,
	}
	routes, _, err := s.client.Directions(ctx, r)
	if err != nil || len(routes) == 0 || len(routes[0].Legs) == 0 {
		return s.fallback.Route(ctx, origin, destination)
	}
	leg := routes[0].Legs[0]
	miles := float64(leg.Distance.Meters) / 1609.344
	minutes := int(leg.Duration.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return Estimate{DistanceMiles: miles, Minutes: minutes}, nil
}
