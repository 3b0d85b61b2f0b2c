// README: Driver snapshot used for matching, plus the ranked candidate view.
package driver

import (
	"errors"
	"time"

	"towline/internal/types"
)

var ErrNotFound = errors.New("driver not found")

// Driver is the matching-side snapshot. Account management lives elsewhere;
// this module only reads and updates the fields dispatch cares about.
type Driver struct {
	ID           types.ID
	Name         string
	Online       bool
	Approved     bool
	Active       bool
	Rating       float64
	TotalTows    int
	Capabilities []types.ID
	PayeeRef     string
	Location     *types.Point
	LocationAt   *time.Time
}

// CanHandle reports whether the driver's rig can tow the given vehicle type.
func (d *Driver) CanHandle(vehicleTypeID types.ID) bool {
	for _, c := range d.Capabilities {
		if c == vehicleTypeID {
			return true
		}
	}
	return false
}

// Candidate is one ranked locator result.
type Candidate struct {
	DriverID      types.ID    `json:"driver_id"`
	DistanceMiles float64     `json:"distance_miles"`
	Rating        float64     `json:"rating"`
	TotalTows     int         `json:"total_tows"`
	Location      types.Point `json:"location"`
}
