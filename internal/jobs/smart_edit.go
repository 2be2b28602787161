package jobs

import (
	"context"

	"github.com/keagan/cutforge/internal/clips"
	"github.com/keagan/cutforge/internal/planner"
)

// Smart edit operations
const (
	OpBeatSync         = "beat_sync"
	OpMontage          = "montage"
	OpPlatformOptimize = "platform_optimize"
	OpHighlightDetect  = "highlight_detect"
)

type smartEditParams struct {
	Operation string `json:"operation"`
	AssetID   string `json:"asset_id"`
	ProjectID string `json:"project_id"`

	// beat_sync
	MusicAssetID       string   `json:"music_asset_id"`
	Sensitivity        *float64 `json:"sensitivity"`
	MinClipDurationMs  *int64   `json:"min_clip_duration_ms"`
	IncludeTransitions *bool    `json:"include_transitions"`
	TransitionType     string   `json:"transition_type"`

	// montage
	AssetIDs         []string `json:"asset_ids"`
	Style            string   `json:"style"`
	TargetDurationMs int64    `json:"target_duration_ms"`

	// platform_optimize
	Platform string `json:"platform"`

	// highlight_detect
	MaxHighlights          int   `json:"max_highlights"`
	MinHighlightDurationMs int64 `json:"min_highlight_duration_ms"`
	MaxHighlightDurationMs int64 `json:"max_highlight_duration_ms"`
}

func (p smartEditParams) transitions() bool {
	return p.IncludeTransitions == nil || *p.IncludeTransitions
}

// smartEditHandler plans clip lists; it renders nothing.
type smartEditHandler struct {
	deps Deps
}

func (h *smartEditHandler) Handle(ctx context.Context, t *Task) (*Outcome, error) {
	var p smartEditParams
	if err := t.Job.DecodeParams(&p); err != nil {
		return nil, err
	}

	var (
		result map[string]any
		err    error
	)
	switch p.Operation {
	case OpBeatSync:
		result, err = h.beatSync(ctx, t, p)
	case OpMontage:
		result, err = h.montage(ctx, t, p)
	case OpPlatformOptimize:
		result, err = h.platformOptimize(ctx, t, p)
	case OpHighlightDetect:
		result, err = h.highlightDetect(ctx, t, p)
	default:
		return nil, Validation("unknown smart edit operation %q", p.Operation)
	}
	if err != nil {
		return nil, err
	}
	return &Outcome{Result: result}, nil
}

func (h *smartEditHandler) beatSync(ctx context.Context, t *Task, p smartEditParams) (map[string]any, error) {
	asset, err := loadAsset(ctx, h.deps.Store, p.AssetID)
	if err != nil {
		return nil, err
	}

	t.Progress.Report(ctx, 10, "Downloading video...")
	video, err := fetchAsset(ctx, t, asset)
	if err != nil {
		return nil, err
	}
	music := video
	if p.MusicAssetID != "" {
		ma, err := loadAsset(ctx, h.deps.Store, p.MusicAssetID)
		if err != nil {
			return nil, err
		}
		if music, err = fetchAsset(ctx, t, ma); err != nil {
			return nil, err
		}
	}

	t.Progress.Report(ctx, 30, "Detecting beats...")
	features, info, err := h.deps.Analysis.Features(ctx, music, t.Workspace.Dir())
	if err != nil {
		return nil, err
	}
	sensitivity := float64(planner.DefaultSensitivity)
	if p.Sensitivity != nil {
		sensitivity = *p.Sensitivity
	}
	minClip := int64(planner.DefaultMinClipMs)
	if p.MinClipDurationMs != nil {
		minClip = *p.MinClipDurationMs
	}
	beats := planner.SelectBeats(features.BeatTimes, sensitivity, minClip)

	t.Progress.Report(ctx, 70, "Generating beat-synced clips...")
	duration := asset.DurationMs
	if duration == 0 {
		if music != video {
			if info, err = h.deps.Media.Probe(ctx, video); err != nil {
				return nil, err
			}
		}
		duration = info.Duration.Milliseconds()
	}
	cl := planner.BeatSyncClips(duration, beats, asset.ID, planner.BeatSyncOptions{
		Transitions:    p.transitions(),
		TransitionType: p.TransitionType,
	})

	return map[string]any{
		"operation":  OpBeatSync,
		"clips":      cl,
		"beat_count": len(beats),
		"clip_count": len(cl),
	}, nil
}

func (h *smartEditHandler) montage(ctx context.Context, t *Task, p smartEditParams) (map[string]any, error) {
	if len(p.AssetIDs) < 2 {
		return nil, Validation("montage requires at least 2 assets")
	}
	style := firstNonEmpty(p.Style, "cinematic")

	t.Progress.Report(ctx, 10, "Loading asset metadata...")
	assets := make([]planner.Asset, 0, len(p.AssetIDs))
	for _, id := range p.AssetIDs {
		a, err := loadAsset(ctx, h.deps.Store, id)
		if err != nil {
			return nil, err
		}
		assets = append(assets, planner.Asset{
			ID:               a.ID,
			Type:             string(a.Type),
			DurationMs:       a.DurationMs,
			OriginalFilename: a.OriginalFilename,
		})
	}

	t.Progress.Report(ctx, 40, "Building montage...")
	cl := planner.BuildMontage(assets, style, p.TargetDurationMs, p.transitions())

	t.Progress.Report(ctx, 90, "Finalizing...")
	var music *clips.Clip
	if p.MusicAssetID != "" {
		ma, err := loadAsset(ctx, h.deps.Store, p.MusicAssetID)
		if err != nil {
			return nil, err
		}
		music = musicClip(ma, cl)
	}

	return map[string]any{
		"operation":  OpMontage,
		"clips":      cl,
		"music_clip": music,
		"clip_count": len(cl),
		"style":      style,
	}, nil
}

// musicClip lays an audio asset under the whole montage, cut to whichever
// is shorter.
func musicClip(a *Asset, cl []*clips.Clip) *clips.Clip {
	var total int64
	for _, c := range cl {
		total = max(total, c.EndMs)
	}
	end := total
	if a.DurationMs > 0 {
		end = min(a.DurationMs, total)
	}
	return &clips.Clip{
		AssetID:          a.ID,
		Name:             a.OriginalFilename,
		Type:             clips.TypeAudio,
		StartMs:          0,
		EndMs:            end,
		SourceDurationMs: a.DurationMs,
	}
}

func (h *smartEditHandler) platformOptimize(ctx context.Context, t *Task, p smartEditParams) (map[string]any, error) {
	proj, err := loadProject(ctx, h.deps.Store, firstNonEmpty(p.ProjectID, t.Job.ProjectID))
	if err != nil {
		return nil, err
	}
	platform := firstNonEmpty(p.Platform, "tiktok")

	t.Progress.Report(ctx, 20, "Analyzing current timeline...")
	var current int64
	if proj.Timeline != nil {
		for _, track := range proj.Timeline.Tracks {
			for _, c := range track.Clips {
				current = max(current, c.EndMs)
			}
		}
	}
	width, height := proj.Output.Width, proj.Output.Height
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}

	t.Progress.Report(ctx, 60, "Computing platform adjustments...")
	adj := planner.OptimizeForPlatform(platform, current, width, height)

	return map[string]any{
		"operation":           OpPlatformOptimize,
		"adjustments":         adj,
		"current_duration_ms": current,
	}, nil
}

func (h *smartEditHandler) highlightDetect(ctx context.Context, t *Task, p smartEditParams) (map[string]any, error) {
	asset, err := loadAsset(ctx, h.deps.Store, p.AssetID)
	if err != nil {
		return nil, err
	}
	local, err := fetchAsset(ctx, t, asset)
	if err != nil {
		return nil, err
	}

	opts := planner.DefaultHighlightOptions()
	if p.MaxHighlights > 0 {
		opts.Max = p.MaxHighlights
	}
	if p.MinHighlightDurationMs > 0 {
		opts.MinMs = p.MinHighlightDurationMs
	}
	if p.MaxHighlightDurationMs > 0 {
		opts.MaxMs = p.MaxHighlightDurationMs
	}
	if opts.MaxMs < opts.MinMs {
		return nil, Validation("max highlight duration %dms is below the minimum %dms", opts.MaxMs, opts.MinMs)
	}

	t.Progress.Report(ctx, 10, "Detecting scenes...")
	hs, info, err := h.deps.Analysis.Highlights(ctx, local, t.Workspace.Dir(), opts)
	if err != nil {
		return nil, err
	}

	t.Progress.Report(ctx, 90, "Finalizing...")
	duration := asset.DurationMs
	if duration == 0 && info != nil {
		duration = info.Duration.Milliseconds()
	}
	cl := planner.HighlightClips(hs, asset.ID, duration)

	return map[string]any{
		"operation":       OpHighlightDetect,
		"highlights":      hs,
		"clips":           cl,
		"highlight_count": len(hs),
	}, nil
}
