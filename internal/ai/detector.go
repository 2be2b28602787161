package ai

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/cutforge/internal/clips"
	"github.com/keagan/cutforge/internal/ffmpeg"
)

// DetectorConfig configures clip detection behavior
type DetectorConfig struct {
	MinClipLength      time.Duration
	MaxClipLength      time.Duration
	SceneThreshold     float64
	SilenceThreshold   float64
	MinSilenceDuration float64
	TopN               int
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MinClipLength:      10 * time.Second,
		MaxClipLength:      90 * time.Second,
		SceneThreshold:     0.4,
		SilenceThreshold:   -30.0,
		MinSilenceDuration: 1.0,
		TopN:               10,
	}
}

// Media is the part of the ffmpeg executor the detector needs.
type Media interface {
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
	DetectScenes(ctx context.Context, input string, threshold float64) ([]time.Duration, error)
	DetectSilence(ctx context.Context, input string, noiseThreshold, minDuration float64) ([]ffmpeg.SilenceSegment, error)
	AnalyzeVolume(ctx context.Context, input string) (*ffmpeg.VolumeStats, error)
}

// Detections are whole-file measurements a caller may already hold.
type Detections struct {
	Info     *ffmpeg.MediaInfo
	Scenes   []time.Duration
	Silences []ffmpeg.SilenceSegment
	Volume   *ffmpeg.VolumeStats
}

// ClipDetector suggests standalone clips cut at scene boundaries
type ClipDetector struct {
	logger zerolog.Logger
	media  Media
	scorer Scorer
	config DetectorConfig
}

// NewClipDetector creates a detector with a custom scorer
func NewClipDetector(logger zerolog.Logger, media Media, scorer Scorer, cfg DetectorConfig) *ClipDetector {
	return &ClipDetector{
		logger: logger.With().Str("component", "clip-detector").Logger(),
		media:  media,
		scorer: scorer,
		config: cfg,
	}
}

// NewDefaultClipDetector creates a detector with heuristic scoring
func NewDefaultClipDetector(logger zerolog.Logger, media Media, cfg DetectorConfig) *ClipDetector {
	return NewClipDetector(logger, media, NewHeuristicScorer(), cfg)
}

// Detect runs every detection pass on videoPath and ranks the candidates.
func (d *ClipDetector) Detect(ctx context.Context, videoPath string) ([]*clips.Clip, error) {
	d.logger.Info().Str("video", videoPath).Msg("starting clip detection")

	info, err := d.media.Probe(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("probe failed: %w", err)
	}
	scenes, err := d.media.DetectScenes(ctx, videoPath, d.config.SceneThreshold)
	if err != nil {
		return nil, fmt.Errorf("scene detection failed: %w", err)
	}
	det := Detections{Info: info, Scenes: scenes}
	if info.HasAudio {
		if det.Silences, err = d.media.DetectSilence(ctx, videoPath, d.config.SilenceThreshold, d.config.MinSilenceDuration); err != nil {
			return nil, fmt.Errorf("silence detection failed: %w", err)
		}
		if det.Volume, err = d.media.AnalyzeVolume(ctx, videoPath); err != nil {
			return nil, fmt.Errorf("volume analysis failed: %w", err)
		}
	}
	return d.Rank(ctx, videoPath, det)
}

// Rank builds candidates from existing detections, scores and keeps the top N.
func (d *ClipDetector) Rank(ctx context.Context, videoPath string, det Detections) ([]*clips.Clip, error) {
	if det.Info == nil {
		return nil, fmt.Errorf("no media info for %s", videoPath)
	}
	candidates := d.generateCandidates(det.Scenes, det.Info.Duration)

	scored := make([]*clips.Clip, 0, len(candidates))
	for i, c := range candidates {
		features := segmentFeatures(c, det.Scenes, det.Silences, det.Volume)
		clip := &clips.Clip{
			ID:               fmt.Sprintf("clip_%d", i),
			Name:             fmt.Sprintf("Suggested %d", i+1),
			Type:             clips.TypeVideo,
			Source:           videoPath,
			StartMs:          c.Start.Milliseconds(),
			EndMs:            c.End.Milliseconds(),
			TrimStartMs:      c.Start.Milliseconds(),
			SourceDurationMs: det.Info.Duration.Milliseconds(),
			Metadata:         map[string]any{featuresKey: features},
		}

		score, err := d.scorer.Score(ctx, clip)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			d.logger.Warn().Err(err).Str("clip_id", clip.ID).Msg("scoring failed, using 0")
			score = 0
		}
		clip.Score = score

		d.logger.Debug().
			Str("clip", clip.ID).
			Float64("score", clip.Score).
			Int("scene_changes", features.SceneChangeCount).
			Float64("silence_ratio", features.SilenceRatio).
			Msg("ranked clip")

		scored = append(scored, clip)
	}

	top := d.rankAndFilter(scored)

	d.logger.Info().
		Int("candidates", len(candidates)).
		Int("top_clips", len(top)).
		Msg("clip detection complete")
	return top, nil
}

// Close releases scorer resources
func (d *ClipDetector) Close() error {
	return d.scorer.Close()
}

// candidateSegment represents a potential clip
type candidateSegment struct {
	Start time.Duration
	End   time.Duration
}

// generateCandidates creates candidate clips from scene boundaries
func (d *ClipDetector) generateCandidates(scenes []time.Duration, totalDuration time.Duration) []candidateSegment {
	var candidates []candidateSegment
	lastBoundary := time.Duration(0)

	for _, sceneTime := range scenes {
		if sceneTime <= lastBoundary || sceneTime >= totalDuration {
			continue
		}
		if sceneTime-lastBoundary >= d.config.MinClipLength {
			candidates = append(candidates, candidateSegment{Start: lastBoundary, End: sceneTime})
		}
		lastBoundary = sceneTime
	}

	if totalDuration-lastBoundary >= d.config.MinClipLength {
		candidates = append(candidates, candidateSegment{Start: lastBoundary, End: totalDuration})
	}

	return d.splitLongSegments(candidates)
}

// splitLongSegments cuts anything over MaxClipLength into equal chunks.
func (d *ClipDetector) splitLongSegments(segments []candidateSegment) []candidateSegment {
	out := make([]candidateSegment, 0, len(segments))
	for _, seg := range segments {
		length := seg.End - seg.Start
		if d.config.MaxClipLength <= 0 || length <= d.config.MaxClipLength {
			out = append(out, seg)
			continue
		}
		pieces := int(length/d.config.MaxClipLength) + 1
		chunk := length / time.Duration(pieces)
		for j := 0; j < pieces; j++ {
			start := seg.Start + time.Duration(j)*chunk
			end := start + chunk
			if j == pieces-1 {
				end = seg.End
			}
			out = append(out, candidateSegment{Start: start, End: end})
		}
	}
	return out
}

// rankAndFilter sorts clips by score and returns top N
func (d *ClipDetector) rankAndFilter(list []*clips.Clip) []*clips.Clip {
	sort.SliceStable(list, func(i, j int) bool { return list[i].Score > list[j].Score })
	if d.config.TopN > 0 && len(list) > d.config.TopN {
		return list[:d.config.TopN]
	}
	return list
}
