package planner

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/keagan/cutforge/internal/clips"
)

// Beat selection defaults
const (
	DefaultSensitivity = 1.0
	DefaultMinClipMs   = 500

	// pieces shorter than this are dropped from beat-synced cuts
	minPieceMs        = 100
	maxBeatTransition = 300
)

// SelectBeats thins beat times (seconds) to cut points in milliseconds. Every
// round(sensitivity)-th beat is considered and a beat is kept only when it
// lands at least minClipMs after the previously kept one.
func SelectBeats(beats []float64, sensitivity float64, minClipMs int64) []int64 {
	step := max(1, int(math.RoundToEven(sensitivity)))
	picked := lo.Filter(beats, func(_ float64, i int) bool { return i%step == 0 })

	var kept []int64
	var prev int64
	for _, b := range picked {
		ms := int64(b * 1000)
		if ms-prev >= minClipMs {
			kept = append(kept, ms)
			prev = ms
		}
	}
	return kept
}

// BeatSyncOptions controls transitions between beat clips.
type BeatSyncOptions struct {
	Transitions    bool
	TransitionType string
}

// DefaultBeatSyncOptions fades between every cut.
func DefaultBeatSyncOptions() BeatSyncOptions {
	return BeatSyncOptions{Transitions: true, TransitionType: "fade"}
}

// BeatSyncClips cuts one source of durationMs at the given beats. Beats past
// the end are ignored and pieces under 100ms are skipped. Clips after the
// first get a transition of a quarter of their length, capped at 300ms.
func BeatSyncClips(durationMs int64, beatsMs []int64, assetID string, opts BeatSyncOptions) []*clips.Clip {
	if opts.TransitionType == "" {
		opts.TransitionType = "fade"
	}

	cuts := append([]int64{0}, lo.Filter(beatsMs, func(b int64, _ int) bool { return b < durationMs })...)
	cuts = append(cuts, durationMs)

	var out []*clips.Clip
	for i := 0; i < len(cuts)-1; i++ {
		start, end := cuts[i], cuts[i+1]
		length := end - start
		if length < minPieceMs {
			continue
		}
		c := &clips.Clip{
			ID:               uuid.NewString(),
			AssetID:          assetID,
			Name:             fmt.Sprintf("Beat %d", i+1),
			Type:             clips.TypeVideo,
			StartMs:          start,
			EndMs:            end,
			TrimStartMs:      start,
			SourceDurationMs: durationMs,
		}
		if opts.Transitions && i > 0 {
			c.TransitionIn = &clips.Transition{
				Type:       opts.TransitionType,
				DurationMs: min(maxBeatTransition, length/4),
			}
		}
		out = append(out, c)
	}
	return out
}
