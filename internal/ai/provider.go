package ai

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/keagan/cutforge/internal/config"
)

// ModelProvider hands out the shared visual scorer. The CLIP model is
// loaded on first use; if it is disabled or fails to load every caller
// gets the aesthetic scorer instead.
type ModelProvider struct {
	logger    zerolog.Logger
	frames    FrameExtractor
	tempDir   string
	useModel  bool
	loadModel func() (Scorer, error)

	once   sync.Once
	scorer Scorer
}

// NewModelProvider prepares a provider; nothing is loaded until Scorer is called.
func NewModelProvider(logger zerolog.Logger, cfg config.AIConfig, frames FrameExtractor, tempDir string) *ModelProvider {
	p := &ModelProvider{
		logger:   logger.With().Str("component", "models").Logger(),
		frames:   frames,
		tempDir:  tempDir,
		useModel: cfg.UseModel,
	}
	p.loadModel = func() (Scorer, error) {
		return NewCLIPScorer(p.logger, frames, cfg.ModelPath, cfg.LibraryPath, tempDir)
	}
	return p
}

// Scorer returns the visual scorer, loading it once.
func (p *ModelProvider) Scorer() Scorer {
	p.once.Do(func() {
		if p.useModel {
			s, err := p.loadModel()
			if err == nil {
				p.scorer = s
				return
			}
			p.logger.Warn().Err(err).Msg("CLIP model unavailable, falling back to aesthetic scoring")
		}
		p.scorer = NewAestheticScorer(p.logger, p.frames, p.tempDir)
	})
	return p.scorer
}

// Close releases the loaded scorer, if any. Call it after the last job.
func (p *ModelProvider) Close() error {
	p.once.Do(func() {})
	if p.scorer == nil {
		return nil
	}
	return p.scorer.Close()
}
