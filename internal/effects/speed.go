package effects

import (
	"fmt"
	"math"
)

// atempo accepts factors in [0.5, 100]; larger changes are chained.
const (
	atempoMin = 0.5
	atempoMax = 100.0
)

// RateChain returns the atempo filters whose product equals speed.
// Speeds within 1% of 1.0 return nil. Speed must be positive.
func RateChain(speed float64) []string {
	if speed <= 0 || math.Abs(speed-1) < identityTolerance {
		return nil
	}

	var chain []string
	remaining := speed
	for remaining < atempoMin {
		chain = append(chain, fmt.Sprintf("atempo=%.1f", atempoMin))
		remaining /= atempoMin
	}
	for remaining > atempoMax {
		chain = append(chain, fmt.Sprintf("atempo=%.1f", atempoMax))
		remaining /= atempoMax
	}
	if math.Abs(remaining-1) > identityTolerance {
		chain = append(chain, fmt.Sprintf("atempo=%.4f", remaining))
	}
	return chain
}

// VideoRetime returns the setpts expression for speed. Timestamps always
// restart at zero so trimmed clips concatenate cleanly.
func VideoRetime(speed float64) string {
	if speed <= 0 || math.Abs(speed-1) < identityTolerance {
		return "setpts=PTS-STARTPTS"
	}
	return fmt.Sprintf("setpts=(PTS-STARTPTS)/%s", trimFloat(speed))
}

// IsIdentity reports whether speed leaves playback rate unchanged.
func IsIdentity(speed float64) bool {
	return math.Abs(speed-1) < identityTolerance
}
