package ffmpeg

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH - install with: brew install ffmpeg")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH - install with: brew install ffmpeg")
	}
}

// generateClip renders a short synthetic clip with a tone into dir.
func generateClip(t *testing.T, dir string, seconds int) string {
	t.Helper()
	out := filepath.Join(dir, "tone.mp4")
	dur := strconv.Itoa(seconds)
	cmd := exec.Command("ffmpeg", "-y",
		"-f", "lavfi", "-i", "sine=frequency=1000:duration="+dur,
		"-f", "lavfi", "-i", "testsrc=duration="+dur+":size=320x240:rate=30",
		"-pix_fmt", "yuv420p", "-shortest", out)
	if err := cmd.Run(); err != nil {
		t.Skipf("could not generate test clip: %v", err)
	}
	return out
}

func TestParseSilenceOutput(t *testing.T) {
	output := strings.Join([]string{
		"[silencedetect @ 0x1] silence_end: 0.5 | silence_duration: 0.5",
		"[silencedetect @ 0x1] silence_start: 2.004",
		"size=N/A time=00:00:03.00 bitrate=N/A speed= 300x",
		"[silencedetect @ 0x1] silence_end: 3.1 | silence_duration: 1.096",
		"[silencedetect @ 0x1] silence_start: 7.5",
		"[silencedetect @ 0x1] silence_end: 8 | silence_duration: 0.5",
	}, "\n")

	segments := parseSilenceOutput(output)
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(segments), segments)
	}
	if segments[0].Start != 2.004 || segments[0].End != 3.1 || segments[0].Duration != 1.096 {
		t.Errorf("first segment = %+v", segments[0])
	}
	if segments[1].Start != 7.5 || segments[1].End != 8 {
		t.Errorf("second segment = %+v", segments[1])
	}
}

func TestParseSceneOutput(t *testing.T) {
	output := "[Parsed_showinfo_1 @ 0x1] n:   0 pts:  12800 pts_time:1.0 duration: 512\n" +
		"[Parsed_showinfo_1 @ 0x1] n:   1 pts:  57600 pts_time:4.5 duration: 512\n" +
		"unrelated line\n"

	scenes := parseSceneOutput(output)
	if len(scenes) != 2 {
		t.Fatalf("got %d scenes, want 2", len(scenes))
	}
	if scenes[1] != 4500*time.Millisecond {
		t.Errorf("second cut = %v, want 4.5s", scenes[1])
	}
}

func TestScenesFromCuts(t *testing.T) {
	cuts := []time.Duration{2 * time.Second, 2 * time.Second, 5 * time.Second, 12 * time.Second}
	scenes := ScenesFromCuts(cuts, 10*time.Second)

	if len(scenes) != 3 {
		t.Fatalf("got %d scenes, want 3: %+v", len(scenes), scenes)
	}
	if scenes[0].Start != 0 || scenes[0].End != 2 {
		t.Errorf("first scene = %+v", scenes[0])
	}
	if scenes[2].Start != 5 || scenes[2].End != 10 || scenes[2].Duration != 5 {
		t.Errorf("last scene = %+v", scenes[2])
	}
	if ScenesFromCuts(cuts, 0) != nil {
		t.Error("zero duration should produce no scenes")
	}
}

func TestProgressStreamKeyValueBlocks(t *testing.T) {
	input := strings.Join([]string{
		"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'in.mp4':",
		"frame=30",
		"fps=29.97",
		"bitrate=1024.0kbits/s",
		"out_time_us=1000000",
		"out_time=00:00:01.000000",
		"speed=2.0x",
		"progress=continue",
		"frame=60",
		"out_time_us=2500000",
		"progress=end",
	}, "\n")

	var lines int
	stream := NewProgressStream(strings.NewReader(input), func(string) { lines++ })

	first, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.Frame != 30 || first.OutTime != time.Second || first.Speed != "2.0x" || first.Done {
		t.Errorf("first event = %+v", first)
	}

	second, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second.OutTime != 2500*time.Millisecond || !second.Done {
		t.Errorf("second event = %+v", second)
	}

	if _, err := stream.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
	if lines != 11 {
		t.Errorf("line callback saw %d lines, want 11", lines)
	}
}

func TestProgressStreamStatsLine(t *testing.T) {
	line := "frame=  120 fps= 30 q=28.0 size=     256kB time=00:01:23.45 bitrate= 512.0kbits/s speed=1.5x"
	stream := NewProgressStream(strings.NewReader(line), nil)

	p, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := time.Minute + 23450*time.Millisecond
	if p.OutTime != want {
		t.Errorf("OutTime = %v, want %v", p.OutTime, want)
	}
	if p.Frame != 120 || p.Speed != "1.5x" {
		t.Errorf("event = %+v", p)
	}
	if got := p.Percent(2 * want); got < 49.99 || got > 50.01 {
		t.Errorf("Percent = %f, want 50", got)
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	tb := newTailBuffer(10)
	tb.WriteLine("aaaaaaaa")
	tb.WriteLine("bbbb")
	if got := tb.String(); got != "aaaa\nbbbb" {
		t.Errorf("tail = %q", got)
	}
}

func TestParseProbeOutput(t *testing.T) {
	raw := []byte(`{
		"format": {"format_name": "mov,mp4", "duration": "5.000000", "bit_rate": "800000"},
		"streams": [
			{"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720, "r_frame_rate": "30/1"},
			{"index": 1, "codec_type": "audio", "codec_name": "aac", "sample_rate": "48000", "channels": 2}
		]
	}`)

	info, err := parseProbeOutput("in.mp4", raw)
	if err != nil {
		t.Fatalf("parseProbeOutput: %v", err)
	}
	if info.Duration != 5*time.Second || info.Width != 1280 || info.FPS != 30 {
		t.Errorf("info = %+v", info)
	}
	if !info.HasAudio || info.Streams[1].SampleRate != 48000 || info.Streams[1].Channels != 2 {
		t.Errorf("audio stream = %+v", info.Streams[1])
	}

	if _, err := parseProbeOutput("bad.mp4", []byte("not json")); !errors.Is(err, ErrProbeFailed) {
		t.Errorf("expected ErrProbeFailed, got %v", err)
	}
}

func TestProbeMissingFile(t *testing.T) {
	skipIfNoFFmpeg(t)

	exec, err := New(zerolog.New(os.Stderr), 1)
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}

	_, err = exec.Probe(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	if !errors.Is(err, ErrProbeFailed) {
		t.Fatalf("expected ErrProbeFailed, got %v", err)
	}
}

func TestRunSurfacesExitError(t *testing.T) {
	skipIfNoFFmpeg(t)

	exec, err := New(zerolog.New(os.Stderr), 1)
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}

	dir := t.TempDir()
	err = exec.Run(context.Background(), RunOptions{
		Args: []string{"-i", filepath.Join(dir, "missing.mp4"), filepath.Join(dir, "out.mp4")},
	})

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if exitErr.Code == 0 || exitErr.Stderr == "" {
		t.Errorf("exit error = %+v", exitErr)
	}
	if len(exitErr.Stderr) > stderrTail {
		t.Errorf("stderr tail is %d bytes, limit %d", len(exitErr.Stderr), stderrTail)
	}
}

func TestProbeAndDetectSilenceOnTone(t *testing.T) {
	skipIfNoFFmpeg(t)

	clip := generateClip(t, t.TempDir(), 2)

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	exec, err := New(logger, 2)
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}

	ctx := context.Background()
	info, err := exec.Probe(ctx, clip)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if info.Width != 320 || info.Height != 240 || !info.HasAudio {
		t.Errorf("unexpected probe result: %+v", info)
	}

	silences, err := exec.DetectSilence(ctx, clip, -30, 0.5)
	if err != nil {
		t.Fatalf("DetectSilence failed: %v", err)
	}
	if len(silences) != 0 {
		t.Errorf("a continuous tone should have no silence, got %+v", silences)
	}
}
