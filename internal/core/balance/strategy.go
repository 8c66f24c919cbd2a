package balance

import (
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/brendadeeznuts1111/warden/internal/core"
)

// Strategy names accepted by New.
const (
	StrategyRoundRobin       = "round_robin"
	StrategyWeightedRandom   = "weighted_random"
	StrategyLeastConnections = "least_connections"
	StrategyGeoNearest       = "geo_nearest"
)

// strategy selects one target from the healthy subset. Implementations
// must tolerate the subset changing between calls.
type strategy interface {
	name() string
	pick(healthy []*slot, origin *core.Origin) *slot
}

func strategyFor(name string) (strategy, error) {
	switch name {
	case StrategyRoundRobin, "":
		return &roundRobin{}, nil
	case StrategyWeightedRandom:
		return weightedRandom{}, nil
	case StrategyLeastConnections:
		return leastConnections{}, nil
	case StrategyGeoNearest:
		return &geoNearest{}, nil
	default:
		return nil, fmt.Errorf("unknown balancing strategy %q", name)
	}
}

// roundRobin rotates through the healthy subset in order.
type roundRobin struct {
	cursor atomic.Uint64
}

func (r *roundRobin) name() string { return StrategyRoundRobin }

func (r *roundRobin) pick(healthy []*slot, _ *core.Origin) *slot {
	idx := r.cursor.Add(1) - 1
	return healthy[idx%uint64(len(healthy))]
}

// weightedRandom draws proportionally to each target's current weight.
type weightedRandom struct{}

func (weightedRandom) name() string { return StrategyWeightedRandom }

func (weightedRandom) pick(healthy []*slot, _ *core.Origin) *slot {
	total := 0.0
	for _, s := range healthy {
		total += s.currentWeight()
	}
	if total <= 0 {
		return healthy[0]
	}

	draw := rand.Float64() * total
	for _, s := range healthy {
		draw -= s.currentWeight()
		if draw <= 0 {
			return s
		}
	}
	return healthy[len(healthy)-1]
}

// leastConnections picks the target with the fewest dispatches in flight.
type leastConnections struct{}

func (leastConnections) name() string { return StrategyLeastConnections }

func (leastConnections) pick(healthy []*slot, _ *core.Origin) *slot {
	best := healthy[0]
	bestInFlight := best.inflight.Load()
	for _, s := range healthy[1:] {
		if n := s.inflight.Load(); n < bestInFlight {
			best = s
			bestInFlight = n
		}
	}
	return best
}

// geoNearest picks the target closest to the request origin, falling back
// to rotation when the origin is unknown.
type geoNearest struct {
	fallback roundRobin
}

func (g *geoNearest) name() string { return StrategyGeoNearest }

func (g *geoNearest) pick(healthy []*slot, origin *core.Origin) *slot {
	if origin == nil {
		return g.fallback.pick(healthy, nil)
	}

	best := healthy[0]
	bestDist := haversineKm(origin.Latitude, origin.Longitude, best.target.Latitude, best.target.Longitude)
	for _, s := range healthy[1:] {
		dist := haversineKm(origin.Latitude, origin.Longitude, s.target.Latitude, s.target.Longitude)
		if dist < bestDist {
			best = s
			bestDist = dist
		}
	}
	return best
}

// haversineKm is the great-circle distance between two coordinates.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0

	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
