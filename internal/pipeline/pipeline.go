package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/cutforge/internal/ai"
	"github.com/keagan/cutforge/internal/audio"
	"github.com/keagan/cutforge/internal/clips"
	"github.com/keagan/cutforge/internal/config"
	"github.com/keagan/cutforge/internal/ffmpeg"
	"github.com/keagan/cutforge/internal/planner"
)

// Media is the ffmpeg surface analysis runs on.
type Media interface {
	ai.Media
	audio.Extractor
}

// Pipeline orchestrates analysis of a local media file
type Pipeline struct {
	logger zerolog.Logger
	config Config
	media  Media
	audio  *audio.Analyzer
	models *ai.ModelProvider
}

// New creates a new pipeline instance. models may be nil, which disables
// visual scoring.
func New(logger zerolog.Logger, media Media, models *ai.ModelProvider, appCfg *config.Config) *Pipeline {
	detector := ai.DefaultDetectorConfig()
	return &Pipeline{
		logger: logger.With().Str("component", "pipeline").Logger(),
		config: Config{
			SceneThreshold:  appCfg.Analysis.SceneThreshold,
			VisualThreshold: appCfg.AI.VisualThreshold,
			MinClipLength:   detector.MinClipLength,
			MaxClipLength:   detector.MaxClipLength,
		},
		media:  media,
		audio:  audio.NewAnalyzer(logger, media, appCfg.Analysis.SampleRate, appCfg.Analysis.HopLength),
		models: models,
	}
}

// Analyze runs the full analysis on input. Scratch files go to workDir.
// Sources without audio still get scenes, rhythm and a visual-only hook.
func (p *Pipeline) Analyze(ctx context.Context, input, workDir string, opts AnalyzeOptions) (*Report, error) {
	p.logger.Info().Str("input", input).Msg("starting analysis pipeline")
	if input == "" {
		return nil, fmt.Errorf("input path cannot be empty")
	}

	opts.stage("probe", 0)
	info, err := p.media.Probe(ctx, input)
	if err != nil {
		return nil, err
	}
	p.logger.Info().
		Dur("duration", info.Duration).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Msg("video metadata extracted")

	report := &Report{
		Input:     input,
		Duration:  info.DurationSeconds(),
		Width:     info.Width,
		Height:    info.Height,
		FPS:       info.FPS,
		HasAudio:  info.HasAudio,
		CreatedAt: time.Now(),
	}

	opts.stage("scenes", 0.1)
	cuts, scenes, err := p.scenes(ctx, input, info)
	if err != nil {
		return nil, err
	}
	report.Scenes = scenes
	report.SceneCount = len(scenes)

	var features *audio.Features
	if info.HasAudio {
		opts.stage("audio", 0.4)
		features, err = p.audio.Analyze(ctx, input, workDir)
		if err != nil {
			return nil, fmt.Errorf("audio analysis failed: %w", err)
		}
		summary := features.Summarize()
		report.Audio = &summary
	}

	opts.stage("hooks", 0.6)
	report.Hook = planner.HookScore(features, scenes)
	report.Rhythm = planner.AnalyzeRhythm(scenes)

	if opts.Highlights && features != nil {
		opts.stage("highlights", 0.7)
		report.Highlights = planner.DetectHighlights(features, scenes, opts.HighlightOptions)
		p.annotate(ctx, input, report.Highlights)
	}

	if opts.SuggestClips {
		opts.stage("clips", 0.8)
		report.Suggested, err = p.suggest(ctx, input, info, cuts, opts)
		if err != nil {
			return nil, err
		}
	}

	opts.stage("done", 1)
	p.logger.Info().
		Int("scenes", report.SceneCount).
		Int("hook_score", report.Hook.Score).
		Str("pace", report.Rhythm.Pace).
		Int("highlights", len(report.Highlights)).
		Msg("analysis pipeline complete")
	return report, nil
}

// Features probes input and computes its audio features. A source without
// an audio stream fails with audio.ErrNoAudio.
func (p *Pipeline) Features(ctx context.Context, input, workDir string) (*audio.Features, *ffmpeg.MediaInfo, error) {
	info, err := p.media.Probe(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	if !info.HasAudio {
		return nil, info, fmt.Errorf("%w: %s has no audio stream", audio.ErrNoAudio, input)
	}
	f, err := p.audio.Analyze(ctx, input, workDir)
	if err != nil {
		return nil, info, err
	}
	return f, info, nil
}

// Highlights finds the highlight intervals of input, visually annotated
// when a model provider is configured.
func (p *Pipeline) Highlights(ctx context.Context, input, workDir string, opts planner.HighlightOptions) ([]planner.Highlight, *ffmpeg.MediaInfo, error) {
	f, info, err := p.Features(ctx, input, workDir)
	if err != nil {
		return nil, info, err
	}
	_, scenes, err := p.scenes(ctx, input, info)
	if err != nil {
		return nil, info, err
	}
	hs := planner.DetectHighlights(f, scenes, opts)
	p.annotate(ctx, input, hs)
	return hs, info, nil
}

func (p *Pipeline) scenes(ctx context.Context, input string, info *ffmpeg.MediaInfo) ([]time.Duration, []ffmpeg.Scene, error) {
	if !info.HasVideo {
		return nil, nil, nil
	}
	cuts, err := p.media.DetectScenes(ctx, input, p.config.SceneThreshold)
	if err != nil {
		return nil, nil, fmt.Errorf("scene detection failed: %w", err)
	}
	return cuts, ffmpeg.ScenesFromCuts(cuts, info.Duration), nil
}

// annotate adds visual scores to highlights. Failures only cost the
// annotation.
func (p *Pipeline) annotate(ctx context.Context, input string, hs []planner.Highlight) {
	if p.models == nil || len(hs) == 0 {
		return
	}
	if err := planner.AnnotateVisual(ctx, hs, input, p.models.Scorer(), p.config.VisualThreshold); err != nil {
		p.logger.Warn().Err(err).Msg("visual scoring incomplete")
	}
}

// suggest ranks standalone clip candidates cut at scene boundaries.
func (p *Pipeline) suggest(ctx context.Context, input string, info *ffmpeg.MediaInfo, cuts []time.Duration, opts AnalyzeOptions) ([]*clips.Clip, error) {
	cfg := ai.DefaultDetectorConfig()
	cfg.SceneThreshold = p.config.SceneThreshold
	cfg.MinClipLength = p.config.MinClipLength
	cfg.MaxClipLength = p.config.MaxClipLength
	if opts.MinClipLen > 0 {
		cfg.MinClipLength = opts.MinClipLen
	}
	if opts.MaxClips > 0 {
		cfg.TopN = opts.MaxClips
	}

	det := ai.Detections{Info: info, Scenes: cuts}
	if info.HasAudio {
		var err error
		if det.Silences, err = p.media.DetectSilence(ctx, input, cfg.SilenceThreshold, cfg.MinSilenceDuration); err != nil {
			return nil, fmt.Errorf("silence detection failed: %w", err)
		}
		if det.Volume, err = p.media.AnalyzeVolume(ctx, input); err != nil {
			return nil, fmt.Errorf("volume analysis failed: %w", err)
		}
	}

	detector := ai.NewClipDetector(p.logger, p.media, p.buildScorer(), cfg)
	return detector.Rank(ctx, input, det)
}

// buildScorer weighs heuristics against the shared visual scorer when one
// is available. The shared scorer is owned by the provider, so the
// composite returned here is never closed.
func (p *Pipeline) buildScorer() ai.Scorer {
	heuristic := ai.NewHeuristicScorer()
	if p.models == nil {
		return heuristic
	}
	return ai.NewCompositeScorer(
		[]ai.Scorer{heuristic, p.models.Scorer()},
		[]float64{0.6, 0.4},
	)
}
