package pipeline

import (
	"time"

	"github.com/keagan/cutforge/internal/audio"
	"github.com/keagan/cutforge/internal/clips"
	"github.com/keagan/cutforge/internal/ffmpeg"
	"github.com/keagan/cutforge/internal/planner"
)

// Report is everything analyze_video learns about one source
type Report struct {
	Input    string  `json:"-"`
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	HasAudio bool    `json:"has_audio"`

	Scenes     []ffmpeg.Scene      `json:"scenes"`
	SceneCount int                 `json:"scene_count"`
	Audio      *audio.Summary      `json:"audio,omitempty"`
	Hook       planner.Hook        `json:"hooks"`
	Rhythm     planner.Rhythm      `json:"rhythm"`
	Highlights []planner.Highlight `json:"highlights,omitempty"`
	Suggested  []*clips.Clip       `json:"suggested_clips,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Stage reports coarse progress through an analysis, pct in [0, 1].
type Stage func(name string, pct float64)

// AnalyzeOptions configures analysis behavior
type AnalyzeOptions struct {
	Highlights       bool
	HighlightOptions planner.HighlightOptions
	// SuggestClips ranks scene-cut candidates with heuristic and visual scoring.
	SuggestClips bool
	MaxClips     int
	MinClipLen   time.Duration
	OnStage      Stage
}

// Config holds pipeline-specific configuration
type Config struct {
	SceneThreshold  float64
	VisualThreshold float64
	MinClipLength   time.Duration
	MaxClipLength   time.Duration
}

func (o AnalyzeOptions) stage(name string, pct float64) {
	if o.OnStage != nil {
		o.OnStage(name, pct)
	}
}
