package ai

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog"

	"github.com/keagan/cutforge/internal/clips"
)

// FrameExtractor writes the frame of input at timestamp to output.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, input string, timestamp time.Duration, output string) error
}

// analysisWidth bounds the image size the pixel statistics run over.
const analysisWidth = 256

// AestheticScorer uses simple image analysis heuristics
type AestheticScorer struct {
	logger  zerolog.Logger
	frames  FrameExtractor
	tempDir string
}

// NewAestheticScorer creates a lightweight image-based scorer. Keyframes are
// written under tempDir (os.TempDir when empty).
func NewAestheticScorer(logger zerolog.Logger, frames FrameExtractor, tempDir string) *AestheticScorer {
	return &AestheticScorer{
		logger:  logger.With().Str("scorer", "aesthetic").Logger(),
		frames:  frames,
		tempDir: tempDir,
	}
}

// Score analyzes visual aesthetics of clip keyframe
func (a *AestheticScorer) Score(ctx context.Context, clip *clips.Clip) (float64, error) {
	img, err := loadKeyframe(ctx, a.frames, a.tempDir, clip)
	if err != nil {
		a.logger.Warn().Err(err).Str("clip", clip.ID).Msg("keyframe extraction failed")
		return 0, err
	}

	m := measureImage(img)
	score := m.score()

	a.logger.Debug().
		Str("clip", clip.ID).
		Float64("colorfulness", m.colorfulness).
		Float64("contrast", m.contrast).
		Float64("brightness", m.brightness).
		Float64("score", score).
		Msg("aesthetic scoring complete")

	clip.SetMeta("aesthetic_score", score)
	return score, nil
}

// Close is a no-op for aesthetic scorer
func (a *AestheticScorer) Close() error {
	return nil
}

// loadKeyframe extracts and decodes the frame at the clip midpoint.
func loadKeyframe(ctx context.Context, frames FrameExtractor, dir string, clip *clips.Clip) (image.Image, error) {
	if clip.Source == "" {
		return nil, fmt.Errorf("clip %s has no source", clip.ID)
	}
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("keyframe_%s.jpg", uuid.NewString()))
	defer os.Remove(path)

	if err := frames.ExtractFrame(ctx, clip.Source, clip.Midpoint(), path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

type imageMetrics struct {
	colorfulness float64
	contrast     float64
	brightness   float64
}

func (m imageMetrics) score() float64 {
	s := 0.4*m.colorfulness + 0.3*m.contrast + 0.3*m.brightness
	return math.Max(0, math.Min(1, s))
}

// ScoreImage rates a decoded frame the way AestheticScorer does.
func ScoreImage(img image.Image) float64 {
	return measureImage(img).score()
}

// measureImage computes colorfulness, contrast and brightness in one pass.
// Large frames are downscaled first.
func measureImage(img image.Image) imageMetrics {
	if img.Bounds().Dx() > analysisWidth {
		img = resize.Resize(analysisWidth, 0, img, resize.Bilinear)
	}

	bounds := img.Bounds()
	pixels := float64(bounds.Dx() * bounds.Dy())
	if pixels == 0 {
		return imageMetrics{}
	}

	var rSum, gSum, bSum, lumSum, lumSqSum float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			rf, gf, bf := float64(r>>8), float64(g>>8), float64(b>>8)
			rSum += rf
			gSum += gf
			bSum += bf
			lum := 0.299*rf + 0.587*gf + 0.114*bf
			lumSum += lum
			lumSqSum += lum * lum
		}
	}

	rMean, gMean, bMean := rSum/pixels, gSum/pixels, bSum/pixels
	// Higher channel spread = more colorful
	spread := math.Abs(rMean-gMean) + math.Abs(gMean-bMean) + math.Abs(bMean-rMean)

	lumMean := lumSum / pixels
	variance := math.Max(0, lumSqSum/pixels-lumMean*lumMean)

	return imageMetrics{
		colorfulness: math.Min(1, spread/255),
		// typical stddev 0-60
		contrast: math.Min(1, math.Sqrt(variance)/60),
		// moderate exposure around 128 scores best
		brightness: 1 - math.Min(1, math.Abs(lumMean-128)/128),
	}
}
