package planner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/keagan/cutforge/internal/audio"
	"github.com/keagan/cutforge/internal/clips"
	"github.com/keagan/cutforge/internal/ffmpeg"
)

// Composite weights for highlight scoring.
const (
	weightEnergy   = 0.4
	weightOnset    = 0.3
	weightSpectral = 0.2
	weightScenes   = 0.1

	// frames within this many seconds of a cut count toward scene density
	sceneProximity = 1.0
	sceneBump      = 0.5

	// candidates kept per window size, as a multiple of Max
	candidateFactor = 3

	highlightFadeMs = 500

	// cepstral coefficients summarized per highlight
	timbreCoeffs = 5
)

// Highlight reasons
const (
	ReasonHighEnergy     = "high_energy"
	ReasonSpeechActivity = "speech_activity"
	ReasonBrightness     = "audio_brightness"
	ReasonSceneDensity   = "scene_density"
	ReasonVisualInterest = "visual_interest"
)

// HighlightOptions bounds the number and length of highlights.
type HighlightOptions struct {
	Max   int
	MinMs int64
	MaxMs int64
}

// DefaultHighlightOptions returns up to five highlights of 3 to 15 seconds.
func DefaultHighlightOptions() HighlightOptions {
	return HighlightOptions{Max: 5, MinMs: 3000, MaxMs: 15000}
}

// Highlight is one scored interval of the source.
type Highlight struct {
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	StartMs    int64    `json:"start_ms"`
	EndMs      int64    `json:"end_ms"`
	DurationMs int64    `json:"duration_ms"`
	Score      float64  `json:"score"`
	Reasons    []string `json:"reasons"`
	// Timbre holds the mean leading MFCCs over the window.
	Timbre []float64 `json:"mfcc,omitempty"`
	// VisualScore is only set when a visual scorer ran.
	VisualScore *float64 `json:"visual_score,omitempty"`
}

// Duration of the highlight
func (h Highlight) Duration() time.Duration {
	return time.Duration(h.DurationMs) * time.Millisecond
}

func (h Highlight) overlaps(o Highlight) bool {
	return !(h.EndMs <= o.StartMs || h.StartMs >= o.EndMs)
}

// DetectHighlights scores every frame from normalized energy, onset
// strength, spectral centroid and the density of nearby scene cuts, then
// slides windows of the minimum, middle and maximum length over the curve.
// The best non-overlapping windows come back ordered by start time.
func DetectHighlights(f *audio.Features, scenes []ffmpeg.Scene, opts HighlightOptions) []Highlight {
	if f == nil {
		return nil
	}
	defaults := DefaultHighlightOptions()
	if opts.Max <= 0 {
		opts.Max = defaults.Max
	}
	if opts.MinMs <= 0 {
		opts.MinMs = defaults.MinMs
	}
	if opts.MaxMs <= 0 {
		opts.MaxMs = defaults.MaxMs
	}

	n := f.Frames()
	if n == 0 {
		return nil
	}
	rms := audio.Normalize(f.RMS[:n])
	onset := audio.Normalize(f.Onset[:n])
	spectral := audio.Normalize(f.Centroid[:n])

	density := make([]float64, n)
	for _, s := range scenes {
		for i := range density {
			ft := f.FrameTime(i)
			if math.Abs(ft-s.Start) < sceneProximity || math.Abs(ft-s.End) < sceneProximity {
				density[i] += sceneBump
			}
		}
	}
	density = audio.Normalize(density)

	composite := make([]float64, n)
	for i := range composite {
		composite[i] = weightEnergy*rms[i] + weightOnset*onset[i] + weightSpectral*spectral[i] + weightScenes*density[i]
	}

	fps := float64(f.SampleRate) / float64(f.Hop)
	minFrames := int(math.Ceil(float64(opts.MinMs) / 1000 * fps))
	maxFrames := int(float64(opts.MaxMs) / 1000 * fps)

	var candidates []Highlight
	for _, window := range []int{minFrames, (minFrames + maxFrames) / 2, maxFrames} {
		if window <= 0 || window > n {
			continue
		}
		scores := movingAverage(composite, window)
		order := lo.Range(len(scores))
		sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
		if len(order) > opts.Max*candidateFactor {
			order = order[:opts.Max*candidateFactor]
		}

		for _, idx := range order {
			endIdx := min(idx+window, n-1)
			start, end := f.FrameTime(idx), f.FrameTime(endIdx)
			durMs := (end - start) * 1000
			if durMs < float64(opts.MinMs) || durMs > float64(opts.MaxMs) {
				continue
			}
			candidates = append(candidates, Highlight{
				Start:      round(start, 2),
				End:        round(end, 2),
				StartMs:    int64(math.Round(start * 1000)),
				EndMs:      int64(math.Round(end * 1000)),
				DurationMs: int64(math.Round(durMs)),
				Score:      round(scores[idx], 4),
			})
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].Score > candidates[b].Score })
	var selected []Highlight
	for _, c := range candidates {
		if lo.SomeBy(selected, c.overlaps) {
			continue
		}
		selected = append(selected, c)
		if len(selected) == opts.Max {
			break
		}
	}
	sort.Slice(selected, func(a, b int) bool { return selected[a].StartMs < selected[b].StartMs })

	for i := range selected {
		h := &selected[i]
		from := audio.SecondsToFrames(h.Start, f.Hop, f.SampleRate)
		to := min(audio.SecondsToFrames(h.End, f.Hop, f.SampleRate), n)
		h.Reasons = []string{}
		if from >= to {
			continue
		}
		h.Timbre = timbre(f.MFCC, from, to)
		if mean(rms[from:to]) > 0.6 {
			h.Reasons = append(h.Reasons, ReasonHighEnergy)
		}
		if mean(onset[from:to]) > 0.5 {
			h.Reasons = append(h.Reasons, ReasonSpeechActivity)
		}
		if mean(spectral[from:to]) > 0.5 {
			h.Reasons = append(h.Reasons, ReasonBrightness)
		}
		inside := 0
		for _, s := range scenes {
			if s.Start >= h.Start && s.Start <= h.End {
				inside++
			}
		}
		if inside >= 2 {
			h.Reasons = append(h.Reasons, ReasonSceneDensity)
		}
	}
	return selected
}

func timbre(mfcc [][]float64, from, to int) []float64 {
	m := audio.MeanMFCC(mfcc, from, to)
	if len(m) == 0 {
		return nil
	}
	if len(m) > timbreCoeffs {
		m = m[:timbreCoeffs]
	}
	return lo.Map(m, func(v float64, _ int) float64 { return round(v, 2) })
}

// movingAverage is the mean of every full window of size w.
func movingAverage(x []float64, w int) []float64 {
	if w <= 0 || w > len(x) {
		return nil
	}
	out := make([]float64, len(x)-w+1)
	var sum float64
	for i := 0; i < w; i++ {
		sum += x[i]
	}
	out[0] = sum / float64(w)
	for i := w; i < len(x); i++ {
		sum += x[i] - x[i-w]
		out[i-w+1] = sum / float64(w)
	}
	return out
}

// VisualScorer rates how visually interesting a clip is, in [0, 1].
type VisualScorer interface {
	Score(ctx context.Context, clip *clips.Clip) (float64, error)
}

// AnnotateVisual scores each highlight of source with scorer. Ranking and
// order are left alone; highlights scoring above threshold gain the
// visual_interest reason. Failed highlights stay unscored and their errors
// are returned joined.
func AnnotateVisual(ctx context.Context, highlights []Highlight, source string, scorer VisualScorer, threshold float64) error {
	if scorer == nil {
		return nil
	}
	var errs []error
	for i := range highlights {
		h := &highlights[i]
		c := &clips.Clip{
			Type:        clips.TypeVideo,
			Source:      source,
			StartMs:     0,
			EndMs:       h.DurationMs,
			TrimStartMs: h.StartMs,
		}
		score, err := scorer.Score(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, fmt.Errorf("highlight %d: %w", i, err))
			continue
		}
		score = round(score, 4)
		h.VisualScore = &score
		if score > threshold {
			h.Reasons = append(h.Reasons, ReasonVisualInterest)
		}
	}
	return errors.Join(errs...)
}

// HighlightClips places highlights back to back as a reel, fading into
// every clip after the first.
func HighlightClips(highlights []Highlight, assetID string, sourceDurationMs int64) []*clips.Clip {
	var cursor int64
	out := make([]*clips.Clip, 0, len(highlights))
	for i, h := range highlights {
		c := &clips.Clip{
			ID:               uuid.NewString(),
			AssetID:          assetID,
			Name:             fmt.Sprintf("Highlight %d", i+1),
			Type:             clips.TypeVideo,
			StartMs:          cursor,
			EndMs:            cursor + h.DurationMs,
			TrimStartMs:      h.StartMs,
			SourceDurationMs: sourceDurationMs,
			Score:            h.Score,
		}
		c.SetMeta("reasons", h.Reasons)
		if i > 0 {
			c.TransitionIn = &clips.Transition{Type: "fade", DurationMs: highlightFadeMs}
		}
		out = append(out, c)
		cursor += h.DurationMs
	}
	return out
}
