package location

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/geo"
)

// MemoryCache is the single-process Cache used when Redis is not configured.
type MemoryCache struct {
	mu   sync.RWMutex
	ttl  time.Duration
	now  func() time.Time
	locs map[int64]entry
}

type entry struct {
	loc     domain.Location
	expires time.Time
}

// NewMemoryCache creates a MemoryCache. A non-positive ttl keeps entries forever.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, locs: make(map[int64]entry)}
}

func (c *MemoryCache) live(e entry) bool {
	return c.ttl <= 0 || c.now().Before(e.expires)
}

// Set records a position.
func (c *MemoryCache) Set(_ context.Context, courierID int64, loc domain.Location) error {
	c.mu.Lock()
	c.locs[courierID] = entry{loc: loc, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// Get returns the last position or nil.
func (c *MemoryCache) Get(_ context.Context, courierID int64) (*domain.Location, error) {
	c.mu.RLock()
	e, ok := c.locs[courierID]
	c.mu.RUnlock()
	if !ok || !c.live(e) {
		return nil, nil
	}
	loc := e.loc
	return &loc, nil
}

// Nearby returns couriers within radiusKm, nearest first.
func (c *MemoryCache) Nearby(_ context.Context, lat, lng, radiusKm float64, limit int) ([]domain.NearbyCourier, error) {
	c.mu.RLock()
	var out []domain.NearbyCourier
	for id, e := range c.locs {
		if !c.live(e) {
			continue
		}
		d := geo.DistanceKm(lat, lng, e.loc.Lat, e.loc.Lng)
		if d <= radiusKm {
			out = append(out, domain.NearbyCourier{CourierID: id, Location: e.loc, DistanceKm: d})
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm == out[j].DistanceKm {
			return out[i].CourierID < out[j].CourierID
		}
		return out[i].DistanceKm < out[j].DistanceKm
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Remove forgets a courier's position.
func (c *MemoryCache) Remove(_ context.Context, courierID int64) error {
	c.mu.Lock()
	delete(c.locs, courierID)
	c.mu.Unlock()
	return nil
}

var _ Cache = (*MemoryCache)(nil)
