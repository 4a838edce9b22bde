package game

import (
	"math"
	"time"
)

// growthRate is the k in e^(k*t^2). Tuned so a round passes 2x around 7.6s
// and 10x around 13.8s of flight.
const growthRate = 0.012

// MultiplierAt is the authoritative multiplier curve: a pure, monotonically
// increasing function of flight time. Clients may replicate it for smooth
// animation but every financial decision evaluates this server-side value.
func MultiplierAt(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return MinMultiplier
	}
	t := elapsed.Seconds()
	m := math.Exp(growthRate * t * t)

	// Same two-decimal truncation as the crash point so the flight can
	// land exactly on it.
	m = float64(int64(m*100)) / 100

	if m < MinMultiplier {
		return MinMultiplier
	}
	return m
}

// TimeToReach inverts MultiplierAt: the flight time at which the curve
// first reaches the given multiplier.
func TimeToReach(multiplier float64) time.Duration {
	if multiplier <= MinMultiplier {
		return 0
	}
	t := math.Sqrt(math.Log(multiplier) / growthRate)
	return time.Duration(t * float64(time.Second))
}
