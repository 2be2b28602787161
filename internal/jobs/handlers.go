package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/cutforge/internal/audio"
	"github.com/keagan/cutforge/internal/autoedit"
	"github.com/keagan/cutforge/internal/config"
	"github.com/keagan/cutforge/internal/ffmpeg"
	"github.com/keagan/cutforge/internal/pipeline"
	"github.com/keagan/cutforge/internal/planner"
)

// Media is the ffmpeg surface the handlers drive.
type Media interface {
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
	Run(ctx context.Context, opts ffmpeg.RunOptions) error
	GenerateThumbnail(ctx context.Context, input, output string, duration time.Duration) error
	GenerateWaveform(ctx context.Context, input, output string, width, height int) error
}

// SilenceRemover is the auto-edit engine.
type SilenceRemover interface {
	RemoveSilence(ctx context.Context, input, output string, opts autoedit.Options) (*autoedit.Result, error)
	JumpCut(ctx context.Context, input, output string, opts autoedit.Options) (*autoedit.Result, error)
}

// Analyzer is the analysis pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, input, workDir string, opts pipeline.AnalyzeOptions) (*pipeline.Report, error)
	Features(ctx context.Context, input, workDir string) (*audio.Features, *ffmpeg.MediaInfo, error)
	Highlights(ctx context.Context, input, workDir string, opts planner.HighlightOptions) ([]planner.Highlight, *ffmpeg.MediaInfo, error)
}

// Deps are the collaborators the built-in handlers share.
type Deps struct {
	Logger   zerolog.Logger
	Config   *config.Config
	Store    Store
	Enqueuer Enqueuer
	Media    Media
	AutoEdit SilenceRemover
	Analysis Analyzer
}

// RegisterAll installs a handler for every job kind.
func RegisterAll(r *Runner, d Deps) {
	r.Register(KindExport, &exportHandler{deps: d})
	r.Register(KindAutoEdit, &autoEditHandler{deps: d})
	r.Register(KindSmartEdit, &smartEditHandler{deps: d})
	r.Register(KindAnalyzeVideo, &analyzeHandler{deps: d})
	r.Register(KindAssetMetadata, &metadataHandler{deps: d})
}

// loadAsset reads an asset, reporting unknown ids as validation errors.
func loadAsset(ctx context.Context, store Store, id string) (*Asset, error) {
	if id == "" {
		return nil, Validation("asset id is required")
	}
	a, err := store.GetAsset(ctx, id)
	if errors.Is(err, ErrAssetNotFound) {
		return nil, Validation("asset %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load asset %s: %w", id, err)
	}
	return a, nil
}

// fetchAsset downloads an asset into the task workspace.
func fetchAsset(ctx context.Context, t *Task, a *Asset) (string, error) {
	if a.Ref == "" {
		return "", Validation("asset %s has no stored file", a.ID)
	}
	ext := filepath.Ext(a.Ref)
	if ext == "" {
		ext = filepath.Ext(a.Filename)
	}
	return t.Fetch(ctx, a.Ref, "asset-"+a.ID+strings.ToLower(ext))
}
