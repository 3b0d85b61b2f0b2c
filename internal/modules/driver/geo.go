// README: Redis GEO index of online driver positions.
package driver

import (
	"context"

	"github.com/redis/go-redis/v9"

	"towline/internal/types"
)

const driverGeoKey = "dispatch:drivers"

// GeoHit is one GEO search result with its distance from the query center.
type GeoHit struct {
	DriverID      types.ID
	DistanceMiles float64
	Location      types.Point
}

// GeoIndex is the nearest-driver query surface. The Redis implementation is
// canonical; tests swap in an in-memory one.
type GeoIndex interface {
	Add(ctx context.Context, id types.ID, p types.Point) error
	Remove(ctx context.Context, id types.ID) error
	Nearby(ctx context.Context, center types.Point, radiusMiles float64, limit int) ([]GeoHit, error)
}

type RedisGeo struct {
	rdb *redis.Client
}

func NewRedisGeo(rdb *redis.Client) *RedisGeo {
	return &RedisGeo{rdb: rdb}
}

func (g *RedisGeo) Add(ctx context.Context, id types.ID, p types.Point) error {
	return g.rdb.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (g *RedisGeo) Remove(ctx context.Context, id types.ID) error {
	return g.rdb.ZRem(ctx, driverGeoKey, string(id)).Err()
}

func (g *RedisGeo) Nearby(ctx context.Context, center types.Point, radiusMiles float64, limit int) ([]GeoHit, error) {
	results, err := g.rdb.GeoSearchLocation(ctx, driverGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusMiles,
			RadiusUnit: "mi",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	hits := make([]GeoHit, len(results))
	for i, r := range results {
		hits[i] = GeoHit{
			DriverID:      types.ID(r.Name),
			DistanceMiles: r.Dist,
			Location:      types.Point{Lat: r.Latitude, Lng: r.Longitude},
		}
	}
	return hits, nil
}
