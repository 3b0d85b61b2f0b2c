// README: Driver locator: availability, location ingestion, and ranked candidate search.
package driver

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"towline/internal/geo"
	"towline/internal/stream"
	"towline/internal/types"
)

type Locator struct {
	store  Store
	index  GeoIndex
	events *stream.Producer
	logger *slog.Logger
}

func NewLocator(store Store, index GeoIndex, events *stream.Producer, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{store: store, index: index, events: events, logger: logger}
}

// UpdateLocation ingests a position ping: GEO index, snapshot row, and the
// analytics stream. The snapshot is eventually consistent by design.
func (l *Locator) UpdateLocation(ctx context.Context, id types.ID, p types.Point) error {
	if err := geo.Validate(p); err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := l.index.Add(ctx, id, p); err != nil {
		return err
	}
	if err := l.store.UpdateLocation(ctx, id, p, now); err != nil {
		return err
	}
	if err := l.events.EmitLocation(stream.LocationEvent{DriverID: id, Lat: p.Lat, Lng: p.Lng, OccurredAt: now}); err != nil {
		l.logger.Warn("location event emit failed", "driver", id, "error", err)
	}
	return nil
}

// SetAvailability flips the online flag and keeps the GEO index in sync:
// offline drivers must never come back from a nearby search.
func (l *Locator) SetAvailability(ctx context.Context, id types.ID, online bool) error {
	if err := l.store.SetAvailability(ctx, id, online); err != nil {
		return err
	}
	if !online {
		return l.index.Remove(ctx, id)
	}
	d, err := l.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.Location != nil {
		return l.index.Add(ctx, id, *d.Location)
	}
	return nil
}

func (l *Locator) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return l.store.Get(ctx, id)
}

// FindCandidates returns at most limit eligible drivers around pickup,
// ranked by distance, then rating, then experience. An empty slice is a
// normal "no drivers available" answer, not an error.
func (l *Locator) FindCandidates(ctx context.Context, pickup types.Point, vehicleTypeID types.ID, radiusMiles float64, limit int) ([]Candidate, error) {
	if err := geo.Validate(pickup); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	// Over-fetch so predicate filtering still fills the limit.
	hits, err := l.index.Nearby(ctx, pickup, radiusMiles, limit*3)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]types.ID, len(hits))
	for i, h := range hits {
		ids[i] = h.DriverID
	}
	drivers, err := l.store.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		d, ok := drivers[h.DriverID]
		if !ok || !d.Online || !d.Approved || !d.Active || d.Location == nil {
			continue
		}
		if !d.CanHandle(vehicleTypeID) {
			continue
		}
		if h.DistanceMiles > radiusMiles {
			continue
		}
		candidates = append(candidates, Candidate{
			DriverID:      d.ID,
			DistanceMiles: h.DistanceMiles,
			Rating:        d.Rating,
			TotalTows:     d.TotalTows,
			Location:      h.Location,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].DistanceMiles != candidates[j].DistanceMiles {
			return candidates[i].DistanceMiles < candidates[j].DistanceMiles
		}
		if candidates[i].Rating != candidates[j].Rating {
			return candidates[i].Rating > candidates[j].Rating
		}
		return candidates[i].TotalTows > candidates[j].TotalTows
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}
