package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/keagan/cutforge/internal/ai"
	"github.com/keagan/cutforge/internal/clips"
	"github.com/keagan/cutforge/internal/config"
	"github.com/keagan/cutforge/internal/ffmpeg"
	"github.com/keagan/cutforge/internal/pipeline"
	"github.com/keagan/cutforge/internal/planner"
	"github.com/keagan/cutforge/internal/timeline"
	"github.com/keagan/cutforge/pkg/util"
)

var (
	analyzeHighlights bool
	analyzeSuggest    bool
	analyzeMaxClips   int

	beatSensitivity float64
	beatMinClipMs   int64
	planRender      string

	highlightMax   int
	highlightMinMs int64
	highlightMaxMs int64

	montageStyle       string
	montageTargetMs    int64
	montageTransitions bool

	optimizePlatform string
)

// localPipeline is a pipeline plus the scratch space its commands share.
type localPipeline struct {
	exec   *ffmpeg.Executor
	pipe   *pipeline.Pipeline
	models *ai.ModelProvider
	ws     *util.Workspace
}

func openPipeline(cfg *config.Config) (*localPipeline, error) {
	exec, err := newExecutor(cfg)
	if err != nil {
		return nil, err
	}
	ws, err := util.NewWorkspace(cfg.TempDir, "analysis")
	if err != nil {
		return nil, err
	}
	models := ai.NewModelProvider(log.Logger, cfg.AI, exec, ws.Dir())
	return &localPipeline{
		exec:   exec,
		pipe:   pipeline.New(log.Logger, exec, models, cfg),
		models: models,
		ws:     ws,
	}, nil
}

func (l *localPipeline) Close() {
	if err := l.models.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to release models")
	}
	if err := l.ws.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to remove workspace")
	}
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [input video]",
	Short: "Analyze scenes, audio, hook strength and pacing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		lp, err := openPipeline(cfg)
		if err != nil {
			return err
		}
		defer lp.Close()

		opts := pipeline.AnalyzeOptions{
			Highlights:       analyzeHighlights,
			HighlightOptions: planner.DefaultHighlightOptions(),
			SuggestClips:     analyzeSuggest,
			MaxClips:         analyzeMaxClips,
			OnStage: func(name string, pct float64) {
				log.Debug().Str("stage", name).Float64("pct", pct).Msg("analysis stage")
			},
		}
		report, err := lp.pipe.Analyze(cmd.Context(), args[0], lp.ws.Dir(), opts)
		if err != nil {
			return err
		}

		log.Info().
			Int("scenes", report.SceneCount).
			Int("hook_score", report.Hook.Score).
			Str("pace", report.Rhythm.Pace).
			Msg("analysis complete")
		return printJSON(cmd, report)
	},
}

var beatsCmd = &cobra.Command{
	Use:   "beats [input]",
	Short: "Cut a source on its musical beats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		lp, err := openPipeline(cfg)
		if err != nil {
			return err
		}
		defer lp.Close()

		f, info, err := lp.pipe.Features(cmd.Context(), args[0], lp.ws.Dir())
		if err != nil {
			return err
		}
		beats := planner.SelectBeats(f.BeatTimes, beatSensitivity, beatMinClipMs)
		cl := planner.BeatSyncClips(info.Duration.Milliseconds(), beats, "source", planner.DefaultBeatSyncOptions())
		log.Info().
			Float64("tempo", f.Tempo).
			Int("beats", len(beats)).
			Int("clips", len(cl)).
			Msg("beat sync planned")
		return emitClips(cmd, lp.exec, cl, args[0])
	},
}

var highlightsCmd = &cobra.Command{
	Use:   "highlights [input]",
	Short: "Find the most engaging stretches of a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		opts := planner.DefaultHighlightOptions()
		if highlightMax > 0 {
			opts.Max = highlightMax
		}
		if highlightMinMs > 0 {
			opts.MinMs = highlightMinMs
		}
		if highlightMaxMs > 0 {
			opts.MaxMs = highlightMaxMs
		}
		if opts.MaxMs < opts.MinMs {
			return fmt.Errorf("--max-ms must not be below --min-ms")
		}

		lp, err := openPipeline(cfg)
		if err != nil {
			return err
		}
		defer lp.Close()

		hs, info, err := lp.pipe.Highlights(cmd.Context(), args[0], lp.ws.Dir(), opts)
		if err != nil {
			return err
		}
		log.Info().Int("highlights", len(hs)).Msg("highlights detected")
		return emitClips(cmd, lp.exec, planner.HighlightClips(hs, "source", info.Duration.Milliseconds()), args[0])
	},
}

var montageCmd = &cobra.Command{
	Use:   "montage [files...]",
	Short: "Plan a montage from several videos and images",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		exec, err := newExecutor(cfg)
		if err != nil {
			return err
		}

		assets := make([]planner.Asset, 0, len(args))
		for i, path := range args {
			a := planner.Asset{
				ID:               fmt.Sprintf("asset-%d", i+1),
				Type:             clips.TypeVideo,
				OriginalFilename: filepath.Base(path),
				Source:           path,
			}
			if isImage(path) {
				a.Type = clips.TypeImage
			} else {
				info, err := exec.Probe(cmd.Context(), path)
				if err != nil {
					return err
				}
				a.DurationMs = info.Duration.Milliseconds()
			}
			assets = append(assets, a)
		}

		cl := planner.BuildMontage(assets, montageStyle, montageTargetMs, montageTransitions)
		m := clips.NewManager()
		m.Add(cl...)
		log.Info().
			Str("style", planner.LookupStyle(montageStyle).Name).
			Int("clips", len(cl)).
			Dur("duration", m.TotalDuration()).
			Msg("montage planned")
		return printJSON(cmd, map[string]any{"clips": cl, "total_duration_ms": m.TotalDuration().Milliseconds()})
	},
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize [input]",
	Short: "Suggest resize, trim and speed changes for a platform",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		exec, err := newExecutor(cfg)
		if err != nil {
			return err
		}
		info, err := exec.Probe(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		opt := planner.OptimizeForPlatform(optimizePlatform, info.Duration.Milliseconds(), info.Width, info.Height)
		return printJSON(cmd, opt)
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe [input]",
	Short: "Print stream information for a media file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		exec, err := newExecutor(cfg)
		if err != nil {
			return err
		}
		info, err := exec.Probe(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, info)
	},
}

// emitClips prints the plan, or renders it to planRender when set.
func emitClips(cmd *cobra.Command, exec *ffmpeg.Executor, cl []*clips.Clip, source string) error {
	if planRender == "" {
		return printJSON(cmd, cl)
	}
	m := clips.NewManager()
	m.Add(cl...)
	track, err := m.Track(func(string) (string, bool) { return source, true })
	if err != nil {
		return err
	}
	tl := &timeline.Timeline{Tracks: []timeline.Track{track}}
	return renderPlan(cmd.Context(), exec, tl, planRender)
}

func renderPlan(ctx context.Context, exec *ffmpeg.Executor, tl *timeline.Timeline, output string) error {
	if err := markSilentSources(ctx, exec, tl); err != nil {
		return err
	}
	compiled, err := timeline.Compile(tl, timeline.OutputSpec{}, timeline.Subtitles{}, timeline.Options{Output: output})
	if err != nil {
		return err
	}
	defer compiled.Cleanup()

	if err := renderCompiled(ctx, exec, compiled); err != nil {
		return err
	}
	log.Info().Str("output", output).Dur("duration", compiled.ExpectedDuration).Msg("plan rendered")
	return nil
}

var imageExts = []string{".jpg", ".jpeg", ".png", ".webp", ".bmp"}

func isImage(path string) bool {
	return lo.Contains(imageExts, strings.ToLower(filepath.Ext(path)))
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeHighlights, "highlights", true, "detect highlights")
	analyzeCmd.Flags().BoolVar(&analyzeSuggest, "suggest", false, "rank scene-cut clip candidates")
	analyzeCmd.Flags().IntVar(&analyzeMaxClips, "max-clips", 10, "maximum suggested clips")

	beatsCmd.Flags().Float64Var(&beatSensitivity, "sensitivity", planner.DefaultSensitivity, "cut on every Nth beat")
	beatsCmd.Flags().Int64Var(&beatMinClipMs, "min-clip-ms", planner.DefaultMinClipMs, "minimum gap between cuts")
	beatsCmd.Flags().StringVar(&planRender, "render", "", "render the plan to this file")

	highlightsCmd.Flags().IntVar(&highlightMax, "max", 0, "maximum highlights (default 5)")
	highlightsCmd.Flags().Int64Var(&highlightMinMs, "min-ms", 0, "minimum highlight length (default 3000)")
	highlightsCmd.Flags().Int64Var(&highlightMaxMs, "max-ms", 0, "maximum highlight length (default 15000)")
	highlightsCmd.Flags().StringVar(&planRender, "render", "", "render the reel to this file")

	montageCmd.Flags().StringVar(&montageStyle, "style", "cinematic", "fast_paced, cinematic or slideshow")
	montageCmd.Flags().Int64Var(&montageTargetMs, "target-ms", 0, "total montage length")
	montageCmd.Flags().BoolVar(&montageTransitions, "transitions", true, "fade between clips")

	optimizeCmd.Flags().StringVar(&optimizePlatform, "platform", "tiktok", "tiktok, youtube_shorts, instagram_reels or youtube")
}
