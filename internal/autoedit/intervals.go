// Package autoedit removes silent stretches from media, preferring the
// external auto-editor tool and falling back to ffmpeg silence detection.
package autoedit

import (
	"math"

	"github.com/keagan/cutforge/internal/ffmpeg"
)

// minKeep is the shortest interval worth keeping, in seconds.
const minKeep = 0.1

// Interval is a span of the source to keep, in seconds.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration of the interval.
func (iv Interval) Duration() float64 { return iv.End - iv.Start }

// KeepIntervals inverts silence detections into the spans to keep. Each kept
// span is widened by padding on both sides, clamped to [0, total].
// Spans of 0.1s or less are dropped. Overlapping or out-of-order detections
// never move the cursor backwards, so the result is ordered, non-overlapping
// and every interval has Start < End.
func KeepIntervals(silences []ffmpeg.SilenceSegment, total, padding float64) []Interval {
	if total <= 0 {
		return nil
	}

	var keep []Interval
	add := func(start, end float64) {
		if n := len(keep); n > 0 {
			start = math.Max(start, keep[n-1].End)
		}
		if end > start+minKeep {
			keep = append(keep, Interval{Start: start, End: end})
		}
	}

	prevEnd := 0.0
	for _, s := range silences {
		add(math.Max(0, prevEnd-padding), math.Min(total, s.Start+padding))
		prevEnd = math.Max(prevEnd, s.End)
	}
	if prevEnd < total {
		add(math.Max(0, prevEnd-padding), total)
	}
	return keep
}

// TotalDuration sums interval lengths.
func TotalDuration(intervals []Interval) float64 {
	var sum float64
	for _, iv := range intervals {
		sum += iv.Duration()
	}
	return sum
}
