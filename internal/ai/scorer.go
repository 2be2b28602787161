package ai

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/keagan/cutforge/internal/clips"
)

// Scorer rates clips in [0, 1]
type Scorer interface {
	Score(ctx context.Context, clip *clips.Clip) (float64, error)
	Close() error
}

// featuresKey is the clip metadata entry HeuristicScorer reads.
const featuresKey = "features"

// HeuristicScorer uses rule-based heuristics over precomputed ClipFeatures
type HeuristicScorer struct {
	weights Weights
}

// Weights for different heuristic factors
type Weights struct {
	Duration      float64
	ShotChanges   float64
	AudioPeaks    float64
	DialogDensity float64
}

// Heuristic tuning
const (
	idealMinSeconds = 15.0
	idealMaxSeconds = 60.0
	busyCutsPerMin  = 12.0
	loudDynamicsDB  = 20.0
)

// NewHeuristicScorer creates a new heuristic scorer
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{
		weights: Weights{
			Duration:      0.2,
			ShotChanges:   0.3,
			AudioPeaks:    0.3,
			DialogDensity: 0.2,
		},
	}
}

// Score rates the clip from the ClipFeatures stored in its metadata.
func (h *HeuristicScorer) Score(ctx context.Context, clip *clips.Clip) (float64, error) {
	f, ok := clip.Metadata[featuresKey].(ClipFeatures)
	if !ok {
		return 0, fmt.Errorf("clip %s has no features", clip.ID)
	}

	sec := f.Duration.Seconds()
	var duration float64
	switch {
	case sec <= 0:
		duration = 0
	case sec < idealMinSeconds:
		duration = sec / idealMinSeconds
	case sec <= idealMaxSeconds:
		duration = 1
	default:
		duration = math.Max(0, 1-(sec-idealMaxSeconds)/idealMaxSeconds)
	}

	var shots float64
	if sec > 0 {
		shots = math.Min(1, float64(f.SceneChangeCount)/(sec/60)/busyCutsPerMin)
	}
	peaks := math.Max(0, math.Min(1, f.AudioDynamics/loudDynamicsDB))
	dialog := 1 - math.Max(0, math.Min(1, f.SilenceRatio))

	score := h.weights.Duration*duration +
		h.weights.ShotChanges*shots +
		h.weights.AudioPeaks*peaks +
		h.weights.DialogDensity*dialog
	return math.Max(0, math.Min(1, score)), nil
}

// Close is a no-op for heuristic scorer
func (h *HeuristicScorer) Close() error {
	return nil
}

// CompositeScorer combines multiple scorers
type CompositeScorer struct {
	scorers []Scorer
	weights []float64
}

// NewCompositeScorer creates a scorer that combines multiple scorers
func NewCompositeScorer(scorers []Scorer, weights []float64) *CompositeScorer {
	return &CompositeScorer{
		scorers: scorers,
		weights: weights,
	}
}

// Score is the weighted average of the scorers that succeed. It fails only
// when every scorer does.
func (c *CompositeScorer) Score(ctx context.Context, clip *clips.Clip) (float64, error) {
	if len(c.scorers) != len(c.weights) {
		return 0, fmt.Errorf("composite scorer has %d scorers but %d weights", len(c.scorers), len(c.weights))
	}

	var total, weight float64
	var errs []error
	for i, s := range c.scorers {
		v, err := s.Score(ctx, clip)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		total += c.weights[i] * v
		weight += c.weights[i]
	}
	if weight == 0 {
		if len(errs) == 0 {
			return 0, errors.New("composite scorer has no weighted scorers")
		}
		return 0, errors.Join(errs...)
	}
	return total / weight, nil
}

// Close closes all underlying scorers
func (c *CompositeScorer) Close() error {
	var errs []error
	for _, scorer := range c.scorers {
		if err := scorer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
