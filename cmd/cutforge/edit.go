package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/keagan/cutforge/internal/autoedit"
	"github.com/keagan/cutforge/internal/config"
	"github.com/keagan/cutforge/internal/ffmpeg"
	"github.com/keagan/cutforge/internal/timeline"
	"github.com/keagan/cutforge/pkg/util"
)

var (
	renderOutput    string
	renderSubtitles string
	renderWidth     int
	renderHeight    int
	renderFPS       float64
	renderCRF       int
	renderPreset    string

	editMargin float64
)

var renderCmd = &cobra.Command{
	Use:   "render [timeline.json]",
	Short: "Render a timeline document to a video file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		ctx := cmd.Context()

		tl, err := timeline.Load(args[0])
		if err != nil {
			return err
		}
		var subs timeline.Subtitles
		if renderSubtitles != "" {
			data, err := os.ReadFile(renderSubtitles)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(data, &subs); err != nil {
				return fmt.Errorf("failed to parse subtitles: %w", err)
			}
		}

		exec, err := newExecutor(cfg)
		if err != nil {
			return err
		}
		if err := markSilentSources(ctx, exec, tl); err != nil {
			return err
		}

		ws, err := util.NewWorkspace(cfg.TempDir, "render")
		if err != nil {
			return err
		}
		defer ws.Close()

		out := timeline.OutputSpec{
			Width:  renderWidth,
			Height: renderHeight,
			FPS:    renderFPS,
			CRF:    renderCRF,
			Preset: renderPreset,
		}
		if out.Preset == "" {
			out.Preset = cfg.FFmpeg.Preset
		}
		compiled, err := timeline.Compile(tl, out, subs, timeline.Options{
			Output:  renderOutput,
			TempDir: ws.Dir(),
			Style:   timeline.StyleFromConfig(cfg.Subtitles),
		})
		if err != nil {
			return err
		}
		defer compiled.Cleanup()
		if compiled.Empty() {
			return fmt.Errorf("timeline has nothing to render")
		}

		log.Info().
			Int("inputs", len(compiled.Inputs)).
			Dur("duration", compiled.ExpectedDuration).
			Str("output", renderOutput).
			Msg("rendering timeline")

		if err := util.EnsureDir(filepath.Dir(renderOutput)); err != nil {
			return err
		}
		if err := renderCompiled(ctx, exec, compiled); err != nil {
			return err
		}
		log.Info().Str("output", renderOutput).Msg("render complete")
		return nil
	},
}

var silenceCmd = &cobra.Command{
	Use:   "silence [input] [output]",
	Short: "Remove silent stretches from a recording",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAutoEdit(cmd, args[0], args[1], false)
	},
}

var jumpcutCmd = &cobra.Command{
	Use:   "jumpcut [input] [output]",
	Short: "Cut pauses aggressively for talking-head footage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAutoEdit(cmd, args[0], args[1], true)
	},
}

func runAutoEdit(cmd *cobra.Command, input, output string, jump bool) error {
	cfg := config.FromContext(cmd.Context())
	exec, err := newExecutor(cfg)
	if err != nil {
		return err
	}
	engine := autoedit.NewEngine(log.Logger, exec, cfg.FFmpeg.AutoEditorPath, cfg.TempDir)

	silence, jumpCut := autoedit.OptionsFromConfig(cfg.AutoEdit)
	opts, run := silence, engine.RemoveSilence
	if jump {
		opts, run = jumpCut, engine.JumpCut
	}
	if cmd.Flags().Changed("margin") {
		opts.Margin = editMargin
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Cutting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetRenderBlankState(true),
	)
	opts.OnProgress = func(fraction float64) {
		_ = bar.Set(int(fraction * 100))
	}

	res, err := run(cmd.Context(), input, output, opts)
	_ = bar.Finish()
	if err != nil {
		return err
	}
	log.Info().
		Str("method", string(res.Method)).
		Int("segments", len(res.Intervals)).
		Float64("kept_seconds", res.Kept).
		Str("output", output).
		Msg("auto edit complete")
	return nil
}

// markSilentSources probes every video source once and flags the clips
// whose source has no audio stream.
func markSilentSources(ctx context.Context, exec *ffmpeg.Executor, tl *timeline.Timeline) error {
	hasAudio := make(map[string]bool)
	for ti := range tl.Tracks {
		track := &tl.Tracks[ti]
		if track.Kind != timeline.TrackVideo {
			continue
		}
		for ci := range track.Clips {
			src := track.Clips[ci].Source
			audio, ok := hasAudio[src]
			if !ok {
				info, err := exec.Probe(ctx, src)
				if err != nil {
					return err
				}
				audio = info.HasAudio
				hasAudio[src] = audio
			}
			track.Clips[ci].NoAudio = !audio
		}
	}
	return nil
}

// renderCompiled runs a compiled timeline behind a terminal progress bar.
func renderCompiled(ctx context.Context, exec *ffmpeg.Executor, compiled *timeline.Command) error {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Rendering"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
	)
	err := exec.Render(ctx, ffmpeg.RenderOptions{
		Args:     compiled.Args(),
		Expected: compiled.ExpectedDuration,
		OnPercent: func(pct float64) {
			_ = bar.Set(int(min(pct, 100)))
		},
	})
	_ = bar.Finish()
	return err
}

func init() {
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "output.mp4", "output file")
	renderCmd.Flags().StringVar(&renderSubtitles, "subtitles", "", "subtitles JSON file")
	renderCmd.Flags().IntVar(&renderWidth, "width", 0, "output width (default 1920)")
	renderCmd.Flags().IntVar(&renderHeight, "height", 0, "output height (default 1080)")
	renderCmd.Flags().Float64Var(&renderFPS, "fps", 0, "output frame rate (default 30)")
	renderCmd.Flags().IntVar(&renderCRF, "crf", 0, "x264 quality (default 23)")
	renderCmd.Flags().StringVar(&renderPreset, "preset", "", "x264 preset")

	silenceCmd.Flags().Float64Var(&editMargin, "margin", 0, "seconds of context kept around speech")
	jumpcutCmd.Flags().Float64Var(&editMargin, "margin", 0, "seconds of context kept around speech")
}
