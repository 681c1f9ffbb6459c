package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/israelreshef/delivery-app-sub000/internal/domain"
)

const geoKey = "courier_locations"

// RedisCache keeps positions in a GEO set plus one expiring key per courier.
// The GEO set does not expire, so stale members are filtered by the per-courier key.
type RedisCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewRedisCache creates a RedisCache.
func NewRedisCache(rdb redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type storedLocation struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	RecordedAt time.Time `json:"recorded_at"`
}

func locationKey(courierID int64) string {
	return fmt.Sprintf("courier:%d:location", courierID)
}

// Set records a position.
func (c *RedisCache) Set(ctx context.Context, courierID int64, loc domain.Location) error {
	raw, err := json.Marshal(storedLocation{Lat: loc.Lat, Lng: loc.Lng, RecordedAt: loc.RecordedAt.UTC()})
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}
	pipe := c.rdb.TxPipeline()
	pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      strconv.FormatInt(courierID, 10),
		Longitude: loc.Lng,
		Latitude:  loc.Lat,
	})
	pipe.Set(ctx, locationKey(courierID), raw, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store location of courier %d: %w", courierID, err)
	}
	return nil
}

// Get returns the last position or nil.
func (c *RedisCache) Get(ctx context.Context, courierID int64) (*domain.Location, error) {
	raw, err := c.rdb.Get(ctx, locationKey(courierID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get location of courier %d: %w", courierID, err)
	}
	var s storedLocation
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode location of courier %d: %w", courierID, err)
	}
	return &domain.Location{Lat: s.Lat, Lng: s.Lng, RecordedAt: s.RecordedAt}, nil
}

// Nearby returns couriers within radiusKm, nearest first.
func (c *RedisCache) Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]domain.NearbyCourier, error) {
	q := &redis.GeoRadiusQuery{
		Radius:   radiusKm,
		Unit:     "km",
		WithDist: true,
		Sort:     "ASC",
	}
	if limit > 0 {
		q.Count = limit
	}
	hits, err := c.rdb.GeoRadius(ctx, geoKey, lng, lat, q).Result()
	if err != nil {
		return nil, fmt.Errorf("geo radius: %w", err)
	}

	out := make([]domain.NearbyCourier, 0, len(hits))
	for _, h := range hits {
		id, err := strconv.ParseInt(h.Name, 10, 64)
		if err != nil {
			continue
		}
		loc, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if loc == nil {
			// позиция протухла, убираем из гео-индекса
			c.rdb.ZRem(ctx, geoKey, h.Name)
			continue
		}
		out = append(out, domain.NearbyCourier{CourierID: id, Location: *loc, DistanceKm: h.Dist})
	}
	return out, nil
}

// Remove forgets a courier's position.
func (c *RedisCache) Remove(ctx context.Context, courierID int64) error {
	pipe := c.rdb.TxPipeline()
	pipe.ZRem(ctx, geoKey, strconv.FormatInt(courierID, 10))
	pipe.Del(ctx, locationKey(courierID))
	_, err := pipe.Exec(ctx)
	return err
}

var _ Cache = (*RedisCache)(nil)
