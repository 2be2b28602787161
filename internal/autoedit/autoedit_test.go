package autoedit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/cutforge/internal/ffmpeg"
)

// fakeRunner simulates auto-editor invocations.
type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (commandResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

// fakeTool records executor calls and writes placeholder outputs.
type fakeTool struct {
	duration time.Duration
	silences []ffmpeg.SilenceSegment
	segments []ffmpeg.SegmentOptions
	concat   []string
	copied   bool
}

func (f *fakeTool) Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error) {
	return &ffmpeg.MediaInfo{FilePath: path, Duration: f.duration}, nil
}

func (f *fakeTool) DetectSilence(ctx context.Context, input string, noiseDB, minDuration float64) ([]ffmpeg.SilenceSegment, error) {
	return f.silences, nil
}

func (f *fakeTool) ExtractSegment(ctx context.Context, input string, opts ffmpeg.SegmentOptions) error {
	f.segments = append(f.segments, opts)
	return os.WriteFile(opts.Output, []byte("ts"), 0o644)
}

func (f *fakeTool) ConcatSegments(ctx context.Context, opts ffmpeg.ConcatOptions) error {
	f.concat = append([]string(nil), opts.Segments...)
	return os.WriteFile(opts.Output, []byte("mp4"), 0o644)
}

func (f *fakeTool) CopyStreams(ctx context.Context, input, output string) error {
	f.copied = true
	return os.WriteFile(output, []byte("mp4"), 0o644)
}

func newTestEngine(t *testing.T, tool MediaTool, runner commandRunner, haveAutoEditor bool) *Engine {
	t.Helper()
	e := NewEngine(zerolog.Nop(), tool, "", t.TempDir())
	e.runner = runner
	e.lookPath = func(name string) (string, error) {
		if !haveAutoEditor {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + name, nil
	}
	return e
}

func writeInput(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "in.mp4")
	require.NoError(t, os.WriteFile(in, []byte("media"), 0o644))
	return in, filepath.Join(dir, "out.mp4")
}

func TestKeepIntervalsPadsAroundSilence(t *testing.T) {
	got := KeepIntervals([]ffmpeg.SilenceSegment{{Start: 2, End: 3, Duration: 1}}, 10, 0.2)

	require.Len(t, got, 2)
	assert.InDelta(t, 0, got[0].Start, 1e-9)
	assert.InDelta(t, 2.2, got[0].End, 1e-9)
	assert.InDelta(t, 2.8, got[1].Start, 1e-9)
	assert.InDelta(t, 10, got[1].End, 1e-9)
}

func TestKeepIntervalsGuards(t *testing.T) {
	silences := []ffmpeg.SilenceSegment{
		{Start: 0, End: 1},
		{Start: 4, End: 8},
		{Start: 5, End: 6}, // nested inside the previous detection
		{Start: 9.95, End: 10},
	}
	got := KeepIntervals(silences, 10, 0.2)

	// the nested detection would yield [7.8, 5.2] and is rejected
	require.Len(t, got, 3)
	assert.InDelta(t, 0.2, got[0].End, 1e-9)
	assert.InDelta(t, 0.8, got[1].Start, 1e-9)
	assert.InDelta(t, 4.2, got[1].End, 1e-9)
	assert.InDelta(t, 7.8, got[2].Start, 1e-9)
	assert.InDelta(t, 10, got[2].End, 1e-9)
	for i, iv := range got {
		assert.Less(t, iv.Start, iv.End)
		if i > 0 {
			assert.LessOrEqual(t, got[i-1].End, iv.Start)
		}
	}
}

func TestKeepIntervalsEdgeCases(t *testing.T) {
	assert.Nil(t, KeepIntervals(nil, 0, 0.2))
	assert.Equal(t, []Interval{{Start: 0, End: 5}}, KeepIntervals(nil, 5, 0.2))
	assert.Empty(t, KeepIntervals([]ffmpeg.SilenceSegment{{Start: 0, End: 5}}, 5, 0))
	assert.InDelta(t, 9.4, TotalDuration(KeepIntervals([]ffmpeg.SilenceSegment{{Start: 2, End: 3}}, 10, 0.2)), 1e-9)
}

func TestRemoveSilenceUsesAutoEditor(t *testing.T) {
	in, out := writeInput(t)
	var gotArgs []string
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		gotArgs = args
		return commandResult{}, os.WriteFile(out, []byte("mp4"), 0o644)
	}}
	tool := &fakeTool{}

	res, err := newTestEngine(t, tool, runner, true).RemoveSilence(context.Background(), in, out, SilenceDefaults())
	require.NoError(t, err)

	assert.Equal(t, MethodAutoEditor, res.Method)
	assert.Equal(t, []string{in, "--margin", "0.3s", "--output", out, "--no-open"}, gotArgs)
	assert.Empty(t, tool.segments)
}

func TestRemoveSilenceFallsBackWhenAutoEditorFails(t *testing.T) {
	in, out := writeInput(t)
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		return commandResult{ExitCode: 2, Stderr: "boom"}, errors.New("exit status 2")
	}}
	tool := &fakeTool{
		duration: 10 * time.Second,
		silences: []ffmpeg.SilenceSegment{{Start: 2, End: 3, Duration: 1}},
	}

	var fractions []float64
	opts := SilenceDefaults()
	opts.OnProgress = func(f float64) { fractions = append(fractions, f) }

	res, err := newTestEngine(t, tool, runner, true).RemoveSilence(context.Background(), in, out, opts)
	require.NoError(t, err)

	assert.Equal(t, MethodSilence, res.Method)
	require.Len(t, tool.segments, 2)
	assert.Len(t, tool.concat, 2)
	assert.Equal(t, []float64{0.5, 1}, fractions)

	// segment scratch files are gone once the run returns
	for _, seg := range tool.concat {
		_, err := os.Stat(seg)
		assert.True(t, os.IsNotExist(err), "segment %s left behind", seg)
	}
}

func TestRemoveSilenceCopiesWhenNothingIsSilent(t *testing.T) {
	in, out := writeInput(t)
	tool := &fakeTool{duration: 4 * time.Second}

	res, err := newTestEngine(t, tool, &fakeRunner{}, false).RemoveSilence(context.Background(), in, out, SilenceDefaults())
	require.NoError(t, err)

	assert.Equal(t, MethodCopy, res.Method)
	assert.True(t, tool.copied)
	assert.Empty(t, tool.segments)
}

func TestJumpCutDefaultsAndMissingInput(t *testing.T) {
	in, out := writeInput(t)
	var margin string
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		margin = args[2]
		return commandResult{}, os.WriteFile(out, []byte("mp4"), 0o644)
	}}

	e := newTestEngine(t, &fakeTool{}, runner, true)
	_, err := e.JumpCut(context.Background(), in, out, Options{})
	require.NoError(t, err)
	assert.Equal(t, "0.1s", margin)

	_, err = e.JumpCut(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"), out, Options{})
	assert.ErrorIs(t, err, ErrInputNotFound)
}

func TestRemoveSilenceAllSilent(t *testing.T) {
	in, out := writeInput(t)
	tool := &fakeTool{
		duration: 2 * time.Second,
		silences: []ffmpeg.SilenceSegment{{Start: 0, End: 2, Duration: 2}},
	}
	opts := SilenceDefaults()
	opts.Padding = 0

	_, err := newTestEngine(t, tool, &fakeRunner{}, false).RemoveSilence(context.Background(), in, out, opts)
	assert.ErrorIs(t, err, ErrNothingToKeep)
}
