package geo

import (
	"math"
	"time"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0088

// Location is a geocoded point.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Country   string  `json:"country,omitempty"`
	City      string  `json:"city,omitempty"`
	Timezone  string  `json:"timezone,omitempty"`
}

// Distance returns the great-circle distance between a and b in kilometres
// using the haversine formula.
func Distance(a, b Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// EvaluatorConfig tunes the impossible-travel heuristic.
type EvaluatorConfig struct {
	MaxSpeedKmh float64       // default 500
	Epsilon     time.Duration // minimum elapsed time, default 1m
	JitterKm    float64       // distance tolerated at near-zero elapsed time, default 50
}

// Velocity is the outcome of one evaluation.
type Velocity struct {
	DistanceKm   float64
	ElapsedHours float64
	SpeedKmh     float64
	Impossible   bool
}

// Evaluator flags implausible travel between two logins.
type Evaluator struct {
	cfg EvaluatorConfig
}

// NewEvaluator fills defaults for zero fields.
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	if cfg.MaxSpeedKmh <= 0 {
		cfg.MaxSpeedKmh = 500
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = time.Minute
	}
	if cfg.JitterKm < 0 {
		cfg.JitterKm = 0
	} else if cfg.JitterKm == 0 {
		cfg.JitterKm = 50
	}
	return &Evaluator{cfg: cfg}
}

// Evaluate compares the previous login (prev at prevAt) with the current one.
// Elapsed time is clamped to Epsilon. When the real elapsed time is below
// Epsilon any move beyond JitterKm is impossible regardless of speed.
func (e *Evaluator) Evaluate(prev Location, prevAt time.Time, cur Location, now time.Time) Velocity {
	distance := Distance(prev, cur)

	elapsed := now.Sub(prevAt)
	tooClose := elapsed < e.cfg.Epsilon
	if tooClose {
		elapsed = e.cfg.Epsilon
	}
	hours := elapsed.Hours()

	v := Velocity{
		DistanceKm:   distance,
		ElapsedHours: hours,
		SpeedKmh:     distance / hours,
	}
	switch {
	case tooClose && distance > e.cfg.JitterKm:
		v.Impossible = true
	case v.SpeedKmh > e.cfg.MaxSpeedKmh:
		v.Impossible = true
	}
	return v
}
