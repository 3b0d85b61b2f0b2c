// README: Common identifier and coordinate value objects used across modules.
package types

// ID identifies customers, drivers, jobs, and offers.
type ID string

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
