package autoedit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/keagan/cutforge/internal/config"
	"github.com/keagan/cutforge/internal/ffmpeg"
	"github.com/keagan/cutforge/pkg/util"
)

// Method records which strategy produced the output.
type Method string

const (
	MethodAutoEditor Method = "auto-editor"
	MethodSilence    Method = "ffmpeg_silence"
	MethodCopy       Method = "copy"
)

// Options tune silence detection.
type Options struct {
	// Margin is passed to auto-editor, in seconds.
	Margin float64
	// NoiseDB and MinSilence drive the ffmpeg fallback detector.
	NoiseDB    float64
	MinSilence float64
	// Padding widens every kept interval, in seconds.
	Padding float64
	// OnProgress receives the fraction of fallback segments cut so far.
	OnProgress func(fraction float64)
}

// SilenceDefaults are the thresholds for ordinary silence removal.
func SilenceDefaults() Options {
	return Options{Margin: 0.3, NoiseDB: -30, MinSilence: 0.5, Padding: 0.2}
}

// JumpCutDefaults are tighter thresholds for fast-paced talking-head edits.
func JumpCutDefaults() Options {
	return Options{Margin: 0.1, NoiseDB: -25, MinSilence: 0.3, Padding: 0.05}
}

// OptionsFromConfig reads both threshold sets from configuration.
func OptionsFromConfig(cfg config.AutoEditConfig) (silence, jump Options) {
	silence = Options{Margin: cfg.Margin, NoiseDB: cfg.NoiseDB, MinSilence: cfg.MinSilence, Padding: cfg.Padding}
	jump = Options{Margin: cfg.JumpMargin, NoiseDB: cfg.JumpNoiseDB, MinSilence: cfg.JumpMinSilence, Padding: cfg.JumpPadding}
	return silence, jump
}

// Result describes one silence-removal run.
type Result struct {
	Method    Method                  `json:"method"`
	Silences  []ffmpeg.SilenceSegment `json:"silences,omitempty"`
	Intervals []Interval              `json:"intervals,omitempty"`
	// Kept is the output length in seconds when known.
	Kept float64 `json:"kept,omitempty"`
}

// MediaTool is the subset of the ffmpeg executor the engine drives.
type MediaTool interface {
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
	DetectSilence(ctx context.Context, input string, noiseDB, minDuration float64) ([]ffmpeg.SilenceSegment, error)
	ExtractSegment(ctx context.Context, input string, opts ffmpeg.SegmentOptions) error
	ConcatSegments(ctx context.Context, opts ffmpeg.ConcatOptions) error
	CopyStreams(ctx context.Context, input, output string) error
}

// commandResult is an external process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// Engine removes silence from media files.
type Engine struct {
	logger     zerolog.Logger
	tool       MediaTool
	runner     commandRunner
	autoEditor string
	tempDir    string
	lookPath   func(string) (string, error)
}

// NewEngine creates an engine. autoEditor may be a bare command name or a
// path; when it cannot be resolved the ffmpeg fallback is used directly.
func NewEngine(logger zerolog.Logger, tool MediaTool, autoEditor, tempDir string) *Engine {
	if autoEditor == "" {
		autoEditor = "auto-editor"
	}
	return &Engine{
		logger:     logger.With().Str("component", "autoedit").Logger(),
		tool:       tool,
		runner:     &execRunner{},
		autoEditor: autoEditor,
		tempDir:    tempDir,
		lookPath:   exec.LookPath,
	}
}

// RemoveSilence writes input without its silent stretches to output.
func (e *Engine) RemoveSilence(ctx context.Context, input, output string, opts Options) (*Result, error) {
	return e.process(ctx, input, output, opts)
}

// JumpCut is RemoveSilence with aggressive defaults for zero fields.
func (e *Engine) JumpCut(ctx context.Context, input, output string, opts Options) (*Result, error) {
	d := JumpCutDefaults()
	if opts.Margin <= 0 {
		opts.Margin = d.Margin
	}
	if opts.NoiseDB == 0 {
		opts.NoiseDB = d.NoiseDB
	}
	if opts.MinSilence <= 0 {
		opts.MinSilence = d.MinSilence
	}
	if opts.Padding <= 0 {
		opts.Padding = d.Padding
	}
	return e.process(ctx, input, output, opts)
}

func (e *Engine) process(ctx context.Context, input, output string, opts Options) (*Result, error) {
	if !util.FileExists(input) {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, input)
	}

	err := e.runAutoEditor(ctx, input, output, opts.Margin)
	if err == nil {
		return &Result{Method: MethodAutoEditor}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	e.logger.Warn().Err(err).Msg("auto-editor failed, falling back to ffmpeg")

	return e.fallback(ctx, input, output, opts)
}

func (e *Engine) runAutoEditor(ctx context.Context, input, output string, margin float64) error {
	bin, err := e.lookPath(e.autoEditor)
	if err != nil {
		return fmt.Errorf("auto-editor not found: %w", err)
	}

	args := []string{
		input,
		"--margin", util.FormatSeconds(margin) + "s",
		"--output", output,
		"--no-open",
	}
	e.logger.Info().Str("input", input).Strs("args", args).Msg("running auto-editor")

	res, err := e.runner.Run(ctx, bin, args...)
	if err != nil {
		return fmt.Errorf("auto-editor exited with code %d: %s: %w", res.ExitCode, tail(res.Stderr), err)
	}
	if !util.FileExists(output) {
		return fmt.Errorf("auto-editor produced no output")
	}
	return nil
}

func (e *Engine) fallback(ctx context.Context, input, output string, opts Options) (*Result, error) {
	info, err := e.tool.Probe(ctx, input)
	if err != nil {
		return nil, err
	}
	total := info.DurationSeconds()

	silences, err := e.tool.DetectSilence(ctx, input, opts.NoiseDB, opts.MinSilence)
	if err != nil {
		return nil, err
	}

	if len(silences) == 0 {
		e.logger.Info().Msg("no silence detected, copying input")
		if err := e.tool.CopyStreams(ctx, input, output); err != nil {
			return nil, err
		}
		return &Result{Method: MethodCopy, Kept: total}, nil
	}

	intervals := KeepIntervals(silences, total, opts.Padding)
	if len(intervals) == 0 {
		return nil, fmt.Errorf("%w: input is entirely silent", ErrNothingToKeep)
	}

	ws, err := util.NewWorkspace(e.tempDir, "autoedit")
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	segments := make([]string, 0, len(intervals))
	for i, iv := range intervals {
		seg := ws.Path(fmt.Sprintf("seg_%04d.ts", i))
		if err := e.tool.ExtractSegment(ctx, input, ffmpeg.SegmentOptions{Start: iv.Start, End: iv.End, Output: seg}); err != nil {
			return nil, err
		}
		segments = append(segments, seg)
		if opts.OnProgress != nil {
			opts.OnProgress(float64(i+1) / float64(len(intervals)))
		}
	}

	if err := e.tool.ConcatSegments(ctx, ffmpeg.ConcatOptions{Segments: segments, Output: output}); err != nil {
		return nil, err
	}

	kept := TotalDuration(intervals)
	e.logger.Info().
		Int("silences", len(silences)).
		Int("segments", len(intervals)).
		Float64("kept", kept).
		Float64("total", total).
		Msg("silence removal complete")

	return &Result{Method: MethodSilence, Silences: silences, Intervals: intervals, Kept: kept}, nil
}

var (
	// ErrInputNotFound is returned when the source file is missing.
	ErrInputNotFound = errors.New("input not found")
	// ErrNothingToKeep is returned when every part of the input is silent.
	ErrNothingToKeep = errors.New("nothing to keep")
)

func tail(s string) string {
	const n = 500
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
