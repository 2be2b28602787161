// Package planner turns analysis results into edit suggestions: beat-synced
// cuts, highlight reels, montages and per-platform output settings. Every
// function here is pure; clips come back unsaved for the caller to place on
// a timeline.
package planner

import "math"

// round rounds half away from zero to the given number of decimals.
func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
