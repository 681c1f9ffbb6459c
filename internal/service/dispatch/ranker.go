package dispatch

import (
	"context"
	"math"
	"sort"

	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/geo"
	"github.com/israelreshef/delivery-app-sub000/internal/location"
)

const (
	weightDistance = 0.45
	weightRating   = 0.35
	weightActivity = 0.20

	defaultRating = 5.0
	// deliveries per activity point; 500 deliveries is full score
	deliveriesPerPoint = 5
)

// ScoreRanker scores couriers by distance to pickup, rating and experience.
type ScoreRanker struct {
	cache       location.Cache
	maxRadiusKm float64
}

// NewScoreRanker creates a ScoreRanker.
func NewScoreRanker(cache location.Cache, maxRadiusKm float64) *ScoreRanker {
	if maxRadiusKm <= 0 {
		maxRadiusKm = 30
	}
	return &ScoreRanker{cache: cache, maxRadiusKm: maxRadiusKm}
}

type scored struct {
	c     domain.Courier
	score float64
}

// Rank implements Ranker. Couriers without a known position are skipped
// unless the pickup itself has no coordinates.
func (r *ScoreRanker) Rank(ctx context.Context, o domain.Order, candidates []domain.Courier) ([]domain.Courier, error) {
	pickup := o.Pickup.Address
	out := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if !c.VehicleType.CanCarry(o.Package.Size) {
			continue
		}

		distScore := 0.0
		if pickup.HasCoordinates() {
			loc, err := r.cache.Get(ctx, c.ID)
			if err != nil {
				return nil, err
			}
			if loc == nil {
				continue
			}
			d := geo.DistanceKm(pickup.Lat, pickup.Lng, loc.Lat, loc.Lng)
			if d > r.maxRadiusKm {
				continue
			}
			distScore = math.Max(0, 100-d/r.maxRadiusKm*100)
		}
		out = append(out, scored{c: c, score: Score(c, distScore)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score == out[j].score {
			return out[i].c.ID < out[j].c.ID
		}
		return out[i].score > out[j].score
	})
	res := make([]domain.Courier, len(out))
	for i, s := range out {
		res[i] = s.c
	}
	return res, nil
}

// Score combines a 0..100 distance score with the courier's rating and activity.
func Score(c domain.Courier, distScore float64) float64 {
	rating := c.Rating
	if rating == 0 {
		rating = defaultRating
	}
	activity := math.Min(100, float64(c.TotalDeliveries)/deliveriesPerPoint)
	return distScore*weightDistance + rating*20*weightRating + activity*weightActivity
}
