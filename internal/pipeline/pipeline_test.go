package pipeline

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/cutforge/internal/ai"
	"github.com/keagan/cutforge/internal/audio"
	"github.com/keagan/cutforge/internal/config"
	"github.com/keagan/cutforge/internal/ffmpeg"
	"github.com/keagan/cutforge/internal/planner"
)

const rate = 22050

// fakeMedia serves a synthetic click track and fixed scene cuts.
type fakeMedia struct {
	info    *ffmpeg.MediaInfo
	cuts    []time.Duration
	seconds float64
}

func (f *fakeMedia) Probe(context.Context, string) (*ffmpeg.MediaInfo, error) { return f.info, nil }

func (f *fakeMedia) DetectScenes(context.Context, string, float64) ([]time.Duration, error) {
	return f.cuts, nil
}

func (f *fakeMedia) DetectSilence(context.Context, string, float64, float64) ([]ffmpeg.SilenceSegment, error) {
	return nil, nil
}

func (f *fakeMedia) AnalyzeVolume(context.Context, string) (*ffmpeg.VolumeStats, error) {
	return &ffmpeg.VolumeStats{MeanVolume: -20, MaxVolume: -1}, nil
}

func (f *fakeMedia) ExtractAudio(ctx context.Context, input, output string, format ffmpeg.AudioFormat, _ ffmpeg.ProgressFunc) error {
	out, err := os.Create(output)
	if err != nil {
		return err
	}
	defer out.Close()

	n := int(f.seconds * rate)
	data := make([]int, n)
	step := 22 * audio.DefaultHop
	for start := 2048; start < n; start += step {
		for i := 0; i < rate/100 && start+i < n; i++ {
			data[start+i] = int(0.8 * 32767 * math.Sin(2*math.Pi*1000*float64(i)/rate))
		}
	}
	enc := wav.NewEncoder(out, rate, 16, 1, 1)
	buf := &goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: 1, SampleRate: rate}, Data: data, SourceBitDepth: 16}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

func (f *fakeMedia) ExtractFrame(ctx context.Context, input string, ts time.Duration, output string) error {
	out, err := os.Create(output)
	if err != nil {
		return err
	}
	defer out.Close()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})
	return png.Encode(out, img)
}

func newMedia() *fakeMedia {
	return &fakeMedia{
		info: &ffmpeg.MediaInfo{
			Duration: 12 * time.Second,
			Width:    1920,
			Height:   1080,
			FPS:      30,
			HasVideo: true,
			HasAudio: true,
		},
		cuts:    []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second},
		seconds: 12,
	}
}

func TestAnalyze(t *testing.T) {
	media := newMedia()
	p := New(zerolog.Nop(), media, nil, config.Default())

	var stages []string
	report, err := p.Analyze(context.Background(), "/in.mp4", t.TempDir(), AnalyzeOptions{
		Highlights:   true,
		SuggestClips: true,
		MinClipLen:   time.Second,
		OnStage:      func(name string, _ float64) { stages = append(stages, name) },
	})
	require.NoError(t, err)

	assert.Equal(t, 4, report.SceneCount)
	assert.Equal(t, planner.PaceFast, report.Rhythm.Pace)
	require.NotNil(t, report.Audio)
	assert.Greater(t, report.Audio.Tempo, 0.0)
	assert.Len(t, report.Audio.EnergyProfile, 10)
	assert.Equal(t, 3, report.Hook.SceneChangesFirst5s)
	assert.Greater(t, report.Hook.OnsetDensity, 0.0)

	assert.LessOrEqual(t, len(report.Highlights), 5)
	for _, h := range report.Highlights {
		assert.Nil(t, h.VisualScore)
	}

	require.Len(t, report.Suggested, 4)
	for i := 1; i < len(report.Suggested); i++ {
		assert.GreaterOrEqual(t, report.Suggested[i-1].Score, report.Suggested[i].Score)
	}

	assert.Equal(t, "probe", stages[0])
	assert.Equal(t, "done", stages[len(stages)-1])
}

func TestAnalyzeWithVisualScoring(t *testing.T) {
	media := newMedia()
	models := ai.NewModelProvider(zerolog.Nop(), config.AIConfig{}, media, t.TempDir())
	p := New(zerolog.Nop(), media, models, config.Default())

	hs, info, err := p.Highlights(context.Background(), "/in.mp4", t.TempDir(), planner.DefaultHighlightOptions())
	require.NoError(t, err)
	assert.True(t, info.HasAudio)
	require.NotEmpty(t, hs)
	for _, h := range hs {
		require.NotNil(t, h.VisualScore)
		assert.GreaterOrEqual(t, *h.VisualScore, 0.0)
	}
}

func TestAnalyzeSilentVideo(t *testing.T) {
	media := newMedia()
	media.info.HasAudio = false
	p := New(zerolog.Nop(), media, nil, config.Default())

	report, err := p.Analyze(context.Background(), "/in.mp4", t.TempDir(), AnalyzeOptions{Highlights: true})
	require.NoError(t, err)
	assert.Nil(t, report.Audio)
	assert.Empty(t, report.Highlights)
	assert.Zero(t, report.Hook.EnergyFirst5s)

	_, _, err = p.Features(context.Background(), "/in.mp4", t.TempDir())
	assert.ErrorIs(t, err, audio.ErrNoAudio)
}
