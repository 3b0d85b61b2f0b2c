package driver

import (
	"context"
	"sync"
	"testing"
	"time"

	"towline/internal/geo"
	"towline/internal/types"
)

type memDriverStore struct {
	mu      sync.Mutex
	drivers map[types.ID]*Driver
}

func newMemDriverStore(drivers ...*Driver) *memDriverStore {
	m := &memDriverStore{drivers: make(map[types.ID]*Driver)}
	for _, d := range drivers {
		cp := *d
		m.drivers[d.ID] = &cp
	}
	return m
}

func (m *memDriverStore) Get(_ context.Context, id types.ID) (*Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDriverStore) GetMany(_ context.Context, ids []types.ID) (map[types.ID]*Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[types.ID]*Driver)
	for _, id := range ids {
		if d, ok := m.drivers[id]; ok {
			cp := *d
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *memDriverStore) SetAvailability(_ context.Context, id types.ID, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.Online = online
	return nil
}

func (m *memDriverStore) UpdateLocation(_ context.Context, id types.ID, p types.Point, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.Location = &p
	d.LocationAt = &at
	return nil
}

func (m *memDriverStore) PayeeRef(_ context.Context, id types.ID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return "", ErrNotFound
	}
	return d.PayeeRef, nil
}

// memGeo ranks by haversine distance, like the Redis GEO index does.
type memGeo struct {
	mu        sync.Mutex
	positions map[types.ID]types.Point
}

func newMemGeo() *memGeo {
	return &memGeo{positions: make(map[types.ID]types.Point)}
}

func (g *memGeo) Add(_ context.Context, id types.ID, p types.Point) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions[id] = p
	return nil
}

func (g *memGeo) Remove(_ context.Context, id types.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.positions, id)
	return nil
}

func (g *memGeo) Nearby(_ context.Context, center types.Point, radiusMiles float64, limit int) ([]GeoHit, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var hits []GeoHit
	for id, p := range g.positions {
		d := geo.DistanceMiles(p, center)
		if d <= radiusMiles {
			hits = append(hits, GeoHit{DriverID: id, DistanceMiles: d, Location: p})
		}
	}
	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].DistanceMiles < hits[i].DistanceMiles {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

var pickup = types.Point{Lat: 40.7128, Lng: -74.0060}

// nearPoint offsets the pickup by roughly miles/69 degrees of latitude.
func nearPoint(miles float64) types.Point {
	return types.Point{Lat: pickup.Lat + miles/69.0, Lng: pickup.Lng}
}

func eligibleDriver(id types.ID) *Driver {
	return &Driver{
		ID:           id,
		Online:       true,
		Approved:     true,
		Active:       true,
		Rating:       4.5,
		TotalTows:    100,
		Capabilities: []types.ID{"sedan", "suv"},
	}
}

func setup(t *testing.T, drivers []*Driver, positions map[types.ID]types.Point) *Locator {
	t.Helper()
	store := newMemDriverStore(drivers...)
	index := newMemGeo()
	for id, p := range positions {
		_ = index.Add(context.Background(), id, p)
		cp := p
		if d, ok := store.drivers[id]; ok {
			d.Location = &cp
		}
	}
	return NewLocator(store, index, nil, nil)
}

func TestFindCandidates_PredicateFiltering(t *testing.T) {
	offline := eligibleDriver("offline")
	offline.Online = false
	unapproved := eligibleDriver("unapproved")
	unapproved.Approved = false
	inactive := eligibleDriver("inactive")
	inactive.Active = false
	wrongRig := eligibleDriver("wrong-rig")
	wrongRig.Capabilities = []types.ID{"motorcycle"}
	good := eligibleDriver("good")

	positions := map[types.ID]types.Point{
		"offline": nearPoint(1), "unapproved": nearPoint(1), "inactive": nearPoint(1),
		"wrong-rig": nearPoint(1), "good": nearPoint(2), "far": nearPoint(50),
	}
	loc := setup(t, []*Driver{offline, unapproved, inactive, wrongRig, good, eligibleDriver("far")}, positions)

	got, err := loc.FindCandidates(context.Background(), pickup, "sedan", 15, 20)
	if err != nil {
		t.Fatalf("FindCandidates() error = %v", err)
	}
	if len(got) != 1 || got[0].DriverID != "good" {
		t.Fatalf("candidates = %+v, want only 'good'", got)
	}
}

func TestFindCandidates_Ranking(t *testing.T) {
	near := eligibleDriver("near")
	farHighRated := eligibleDriver("far-high-rated")
	farHighRated.Rating = 5.0

	sameA := eligibleDriver("same-dist-low-rating")
	sameA.Rating = 3.0
	sameA.TotalTows = 999
	sameB := eligibleDriver("same-dist-high-rating")
	sameB.Rating = 4.9
	sameB.TotalTows = 10

	positions := map[types.ID]types.Point{
		"near": nearPoint(1), "far-high-rated": nearPoint(8),
		"same-dist-low-rating": nearPoint(4), "same-dist-high-rating": nearPoint(4),
	}
	loc := setup(t, []*Driver{near, farHighRated, sameA, sameB}, positions)

	got, err := loc.FindCandidates(context.Background(), pickup, "sedan", 15, 20)
	if err != nil {
		t.Fatalf("FindCandidates() error = %v", err)
	}
	wantOrder := []types.ID{"near", "same-dist-high-rating", "same-dist-low-rating", "far-high-rated"}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d candidates, want %d", len(got), len(wantOrder))
	}
	for i, want := range wantOrder {
		if got[i].DriverID != want {
			t.Errorf("rank %d = %s, want %s", i, got[i].DriverID, want)
		}
	}
}

func TestFindCandidates_LimitAndEmpty(t *testing.T) {
	var drivers []*Driver
	positions := make(map[types.ID]types.Point)
	for _, id := range []types.ID{"a", "b", "c", "d", "e"} {
		drivers = append(drivers, eligibleDriver(id))
		positions[id] = nearPoint(float64(len(positions) + 1))
	}
	loc := setup(t, drivers, positions)

	got, err := loc.FindCandidates(context.Background(), pickup, "sedan", 15, 3)
	if err != nil {
		t.Fatalf("FindCandidates() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("candidates = %d, want 3 (limit)", len(got))
	}

	empty, err := loc.FindCandidates(context.Background(), types.Point{Lat: 0, Lng: 0}, "sedan", 15, 3)
	if err != nil {
		t.Fatalf("FindCandidates() on empty area error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("candidates = %d, want 0 for empty area", len(empty))
	}
}

func TestSetAvailability_SyncsGeoIndex(t *testing.T) {
	d := eligibleDriver("drv-1")
	store := newMemDriverStore(d)
	index := newMemGeo()
	loc := NewLocator(store, index, nil, nil)
	ctx := context.Background()

	if err := loc.UpdateLocation(ctx, "drv-1", nearPoint(1)); err != nil {
		t.Fatalf("UpdateLocation() error = %v", err)
	}
	if err := loc.SetAvailability(ctx, "drv-1", false); err != nil {
		t.Fatalf("SetAvailability(false) error = %v", err)
	}
	hits, _ := index.Nearby(ctx, pickup, 15, 10)
	if len(hits) != 0 {
		t.Fatal("offline driver still present in geo index")
	}

	if err := loc.SetAvailability(ctx, "drv-1", true); err != nil {
		t.Fatalf("SetAvailability(true) error = %v", err)
	}
	hits, _ = index.Nearby(ctx, pickup, 15, 10)
	if len(hits) != 1 {
		t.Fatal("online driver with known location missing from geo index")
	}
}

func TestUpdateLocation_RejectsBadCoordinates(t *testing.T) {
	loc := setup(t, []*Driver{eligibleDriver("drv-1")}, nil)
	err := loc.UpdateLocation(context.Background(), "drv-1", types.Point{Lat: 120, Lng: 0})
	if err != geo.ErrInvalidCoordinate {
		t.Fatalf("error = %v, want ErrInvalidCoordinate", err)
	}
}
