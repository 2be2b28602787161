package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/keagan/cutforge/internal/clips"
)

const clipImageSize = 224

var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// defaultPrompt is used when no tokenized prompt sits next to the model.
var defaultPrompt = []int64{49406, 550, 13392, 3819, 3504, 49407}

// CLIPScorer rates keyframes by their CLIP similarity to a fixed prompt.
type CLIPScorer struct {
	logger  zerolog.Logger
	frames  FrameExtractor
	tempDir string

	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	prompt  []int64
}

// NewCLIPScorer loads the ONNX model at modelPath. libraryPath points at the
// onnxruntime shared library; empty uses the platform default. A file
// "<model>.prompt.json" holding a JSON array of token ids overrides the
// built-in prompt.
func NewCLIPScorer(logger zerolog.Logger, frames FrameExtractor, modelPath, libraryPath, tempDir string) (*CLIPScorer, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	inputNames := []string{"input_ids", "attention_mask", "pixel_values"}
	outputNames := []string{"logits_per_image"}

	sess, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create CLIP session: %w", err)
	}

	prompt, err := loadPrompt(modelPath + ".prompt.json")
	if err != nil {
		sess.Destroy()
		return nil, err
	}

	logger.Info().
		Str("model", modelPath).
		Int("prompt_tokens", len(prompt)).
		Msg("CLIP model loaded")

	return &CLIPScorer{
		logger:  logger.With().Str("scorer", "clip").Logger(),
		frames:  frames,
		tempDir: tempDir,
		session: sess,
		prompt:  prompt,
	}, nil
}

func loadPrompt(path string) ([]int64, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultPrompt, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("invalid prompt file %s: %w", path, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("prompt file %s is empty", path)
	}
	return ids, nil
}

// Score runs CLIP on the clip's keyframe and squashes the logit with a sigmoid.
func (c *CLIPScorer) Score(ctx context.Context, clip *clips.Clip) (float64, error) {
	img, err := loadKeyframe(ctx, c.frames, c.tempDir, clip)
	if err != nil {
		c.logger.Warn().Err(err).Str("clip", clip.ID).Msg("keyframe extraction failed")
		return 0, err
	}

	pixels, err := ort.NewTensor(ort.NewShape(1, 3, clipImageSize, clipImageSize), pixelValues(img))
	if err != nil {
		return 0, fmt.Errorf("image preprocessing failed: %w", err)
	}
	defer pixels.Destroy()

	mask := make([]int64, len(c.prompt))
	for i := range mask {
		mask[i] = 1
	}
	textShape := ort.NewShape(1, int64(len(c.prompt)))

	ids, err := ort.NewTensor(textShape, c.prompt)
	if err != nil {
		return 0, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer ids.Destroy()

	attn, err := ort.NewTensor(textShape, mask)
	if err != nil {
		return 0, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer attn.Destroy()

	logits, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, fmt.Errorf("failed to create logits_per_image tensor: %w", err)
	}
	defer logits.Destroy()

	c.mu.Lock()
	err = c.session.Run([]ort.ArbitraryTensor{ids, attn, pixels}, []ort.ArbitraryTensor{logits})
	c.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("CLIP inference failed: %w", err)
	}

	data := logits.GetData()
	if len(data) == 0 {
		return 0, errors.New("unexpected logits_per_image tensor")
	}

	logit := float64(data[0])
	score := 1 / (1 + math.Exp(-logit))

	c.logger.Debug().
		Str("clip", clip.ID).
		Float64("logit", logit).
		Float64("score", score).
		Msg("CLIP scoring complete")

	clip.SetMeta("clip_logit", logit)
	clip.SetMeta("clip_score", score)
	return score, nil
}

// pixelValues resizes to 224x224 and lays the channels out planar with
// CLIP normalization.
func pixelValues(img image.Image) []float32 {
	resized := resize.Resize(clipImageSize, clipImageSize, img, resize.Bilinear)
	bounds := resized.Bounds()
	plane := clipImageSize * clipImageSize
	data := make([]float32, 3*plane)

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			rgb := [3]float32{float32(r>>8) / 255, float32(g>>8) / 255, float32(b>>8) / 255}
			for ch := 0; ch < 3; ch++ {
				data[ch*plane+i] = (rgb[ch] - clipMean[ch]) / clipStd[ch]
			}
			i++
		}
	}
	return data
}

// Close releases the CLIP session and the ONNX environment.
func (c *CLIPScorer) Close() error {
	c.logger.Info().Msg("closing CLIP model session")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		if err := c.session.Destroy(); err != nil {
			return err
		}
		c.session = nil
	}
	return ort.DestroyEnvironment()
}
