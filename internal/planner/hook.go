package planner

import (
	"math"

	"github.com/samber/lo"

	"github.com/keagan/cutforge/internal/audio"
	"github.com/keagan/cutforge/internal/ffmpeg"
)

const (
	hookWindow    = 5.0
	hookThreshold = 40
)

// Hook rates how strongly the first five seconds grab attention.
type Hook struct {
	Score               int     `json:"score"`
	HasHook             bool    `json:"has_hook"`
	EnergyFirst5s       float64 `json:"energy_first_5s"`
	OnsetDensity        float64 `json:"onset_density"`
	SceneChangesFirst5s int     `json:"scene_changes_first_5s"`
}

// HookScore combines the opening energy, onsets per second and cuts per
// second into a 0-100 score. Above 40 counts as a hook.
func HookScore(f *audio.Features, scenes []ffmpeg.Scene) Hook {
	var h Hook
	if f != nil {
		var energy []float64
		for i, v := range f.RMS {
			if f.FrameTime(i) >= hookWindow {
				break
			}
			energy = append(energy, v)
		}
		h.EnergyFirst5s = round(mean(energy), 4)

		onsets := lo.CountBy(f.Onsets, func(frame int) bool { return f.FrameTime(frame) < hookWindow })
		h.OnsetDensity = round(float64(onsets)/hookWindow, 2)
	}
	h.SceneChangesFirst5s = lo.CountBy(scenes, func(s ffmpeg.Scene) bool { return s.Start < hookWindow })

	sceneDensity := float64(h.SceneChangesFirst5s) / hookWindow
	raw := h.EnergyFirst5s*200 + h.OnsetDensity*15 + sceneDensity*20
	h.Score = min(100, int(math.Floor(raw+1e-9)))
	h.HasHook = h.Score > hookThreshold
	return h
}
