package planner

import (
	"math"

	"github.com/samber/lo"

	"github.com/keagan/cutforge/internal/ffmpeg"
)

// Pace classes by average scene length in seconds.
const (
	PaceVeryFast = "very_fast"
	PaceFast     = "fast"
	PaceModerate = "moderate"
	PaceSlow     = "slow"
	PaceVerySlow = "very_slow"
	PaceUnknown  = "unknown"
)

// Rhythm summarizes the cutting pace of a video.
type Rhythm struct {
	AvgSceneDuration float64 `json:"avg_scene_duration"`
	Pace             string  `json:"pace"`
	SceneCount       int     `json:"scene_count"`
	Variability      float64 `json:"variability"`
	Shortest         float64 `json:"shortest_scene"`
	Longest          float64 `json:"longest_scene"`
}

// AnalyzeRhythm classifies pace from scene durations. Variability is the
// population standard deviation of those durations.
func AnalyzeRhythm(scenes []ffmpeg.Scene) Rhythm {
	if len(scenes) == 0 {
		return Rhythm{Pace: PaceUnknown}
	}
	durations := lo.Map(scenes, func(s ffmpeg.Scene, _ int) float64 { return s.Duration })
	avg := mean(durations)

	var sq float64
	for _, d := range durations {
		sq += (d - avg) * (d - avg)
	}

	return Rhythm{
		AvgSceneDuration: round(avg, 2),
		Pace:             paceFor(avg),
		SceneCount:       len(scenes),
		Variability:      round(math.Sqrt(sq/float64(len(durations))), 2),
		Shortest:         round(lo.Min(durations), 2),
		Longest:          round(lo.Max(durations), 2),
	}
}

func paceFor(avg float64) string {
	switch {
	case avg < 2:
		return PaceVeryFast
	case avg < 4:
		return PaceFast
	case avg < 8:
		return PaceModerate
	case avg < 15:
		return PaceSlow
	default:
		return PaceVerySlow
	}
}
