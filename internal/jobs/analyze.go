package jobs

import (
	"context"

	"github.com/keagan/cutforge/internal/pipeline"
	"github.com/keagan/cutforge/internal/planner"
)

var analyzeStages = map[string]string{
	"probe":      "Reading metadata...",
	"scenes":     "Detecting scenes...",
	"audio":      "Analyzing audio...",
	"hooks":      "Scoring hooks...",
	"highlights": "Finding highlights...",
	"clips":      "Analyzing rhythm and clips...",
	"done":       "Saving analysis results...",
}

type analyzeParams struct {
	AssetID  string `json:"asset_id"`
	MaxClips int    `json:"max_clips"`
}

// analyzeHandler runs the full analysis pipeline over one asset. The
// report is stored as the job result.
type analyzeHandler struct {
	deps Deps
}

func (h *analyzeHandler) Handle(ctx context.Context, t *Task) (*Outcome, error) {
	var p analyzeParams
	if err := t.Job.DecodeParams(&p); err != nil {
		return nil, err
	}
	asset, err := loadAsset(ctx, h.deps.Store, p.AssetID)
	if err != nil {
		return nil, err
	}

	t.Progress.Report(ctx, 2, "Downloading video...")
	local, err := fetchAsset(ctx, t, asset)
	if err != nil {
		return nil, err
	}

	report, err := h.deps.Analysis.Analyze(ctx, local, t.Workspace.Dir(), pipeline.AnalyzeOptions{
		Highlights:       true,
		HighlightOptions: planner.DefaultHighlightOptions(),
		SuggestClips:     true,
		MaxClips:         p.MaxClips,
		OnStage: func(name string, pct float64) {
			detail, ok := analyzeStages[name]
			if !ok {
				detail = name
			}
			t.Progress.Report(ctx, max(2, pct*90), detail)
		},
	})
	if err != nil {
		return nil, err
	}

	result := map[string]any{
		"analysis_id": t.Job.ID,
		"asset_id":    asset.ID,
		"scene_count": report.SceneCount,
		"hook_score":  report.Hook.Score,
		"pace":        report.Rhythm.Pace,
		"analysis":    report,
	}
	if report.Audio != nil {
		result["bpm"] = report.Audio.Tempo
	} else {
		result["bpm"] = nil
	}
	return &Outcome{Result: result}, nil
}
