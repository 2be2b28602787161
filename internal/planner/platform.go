package planner

import "strings"

// Platform describes the output a publishing target expects.
type Platform struct {
	Name          string
	Width         int
	Height        int
	Aspect        string
	FPS           int
	MaxDurationMs int64
	RecommendedMs int64
}

var platforms = map[string]Platform{
	"tiktok":          {Name: "tiktok", Width: 1080, Height: 1920, Aspect: "9:16", FPS: 30, MaxDurationMs: 180000, RecommendedMs: 30000},
	"youtube_shorts":  {Name: "youtube_shorts", Width: 1080, Height: 1920, Aspect: "9:16", FPS: 30, MaxDurationMs: 60000, RecommendedMs: 30000},
	"instagram_reels": {Name: "instagram_reels", Width: 1080, Height: 1920, Aspect: "9:16", FPS: 30, MaxDurationMs: 90000, RecommendedMs: 30000},
	"youtube":         {Name: "youtube", Width: 1920, Height: 1080, Aspect: "16:9", FPS: 30},
}

// LookupPlatform returns the named profile, falling back to youtube.
func LookupPlatform(name string) Platform {
	if p, ok := platforms[strings.ToLower(name)]; ok {
		return p
	}
	return platforms["youtube"]
}

// maxSpeedUp is the largest ratio still fixed by speeding up instead of cutting.
const maxSpeedUp = 1.5

// Optimization is the suggested output adjustment for one platform.
type Optimization struct {
	Platform        string  `json:"platform"`
	TargetWidth     int     `json:"target_width"`
	TargetHeight    int     `json:"target_height"`
	TargetAspect    string  `json:"target_aspect"`
	TargetFPS       int     `json:"target_fps"`
	NeedsResize     bool    `json:"needs_resize"`
	TrimToMs        *int64  `json:"trim_to_ms"`
	SpeedAdjustment float64 `json:"speed_adjustment"`
}

// OptimizeForPlatform compares a source against the platform profile. A
// source over the maximum length is trimmed to it; if it is at most 1.5x
// too long a speed-up by the ratio is suggested as well.
func OptimizeForPlatform(platform string, durationMs int64, width, height int) Optimization {
	p := LookupPlatform(platform)
	opt := Optimization{
		Platform:        p.Name,
		TargetWidth:     p.Width,
		TargetHeight:    p.Height,
		TargetAspect:    p.Aspect,
		TargetFPS:       p.FPS,
		NeedsResize:     width != p.Width || height != p.Height,
		SpeedAdjustment: 1.0,
	}

	if p.MaxDurationMs > 0 && durationMs > p.MaxDurationMs {
		trim := p.MaxDurationMs
		opt.TrimToMs = &trim
		ratio := float64(durationMs) / float64(p.MaxDurationMs)
		if ratio <= maxSpeedUp {
			opt.SpeedAdjustment = round(ratio, 2)
		}
	}
	return opt
}
