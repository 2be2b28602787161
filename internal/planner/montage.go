package planner

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/keagan/cutforge/internal/clips"
)

// Style is a montage pacing preset.
type Style struct {
	Name           string
	AvgClipMs      int64
	TransitionMs   int64
	TransitionType string
}

var styles = map[string]Style{
	"fast_paced": {Name: "fast_paced", AvgClipMs: 1500, TransitionMs: 200, TransitionType: "fade"},
	"cinematic":  {Name: "cinematic", AvgClipMs: 4000, TransitionMs: 800, TransitionType: "fade"},
	"slideshow":  {Name: "slideshow", AvgClipMs: 5000, TransitionMs: 1000, TransitionType: "fade"},
}

// LookupStyle returns the named preset. Unknown names get cinematic.
func LookupStyle(name string) Style {
	if s, ok := styles[strings.ToLower(name)]; ok {
		return s
	}
	return styles["cinematic"]
}

// defaultAssetMs is assumed for assets without a known duration.
const defaultAssetMs = 5000

// Asset is one montage input.
type Asset struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	DurationMs       int64  `json:"duration_ms"`
	OriginalFilename string `json:"original_filename"`
	Source           string `json:"-"`
}

// BuildMontage lays assets out back to back. With targetMs set every clip
// gets an equal share of it, otherwise the style's average length. Images
// take the full share; videos longer than the share are trimmed around
// their centre, shorter ones play whole.
func BuildMontage(assets []Asset, style string, targetMs int64, transitions bool) []*clips.Clip {
	if len(assets) == 0 {
		return nil
	}
	preset := LookupStyle(style)

	per := preset.AvgClipMs
	if targetMs > 0 {
		per = targetMs / int64(len(assets))
	}

	var cursor int64
	out := make([]*clips.Clip, 0, len(assets))
	for i, a := range assets {
		assetMs := a.DurationMs
		if assetMs <= 0 {
			assetMs = defaultAssetMs
		}

		kind := clips.TypeVideo
		length := per
		var trim int64
		if a.Type == clips.TypeImage {
			kind = clips.TypeImage
		} else {
			length = min(per, assetMs)
			if assetMs > length {
				trim = (assetMs - length) / 2
			} else {
				length = assetMs
			}
		}

		name := a.OriginalFilename
		if name == "" {
			name = fmt.Sprintf("Clip %d", i+1)
		}
		c := &clips.Clip{
			ID:               uuid.NewString(),
			AssetID:          a.ID,
			Name:             name,
			Type:             kind,
			Source:           a.Source,
			StartMs:          cursor,
			EndMs:            cursor + length,
			TrimStartMs:      trim,
			SourceDurationMs: assetMs,
		}
		if transitions && i > 0 {
			c.TransitionIn = &clips.Transition{Type: preset.TransitionType, DurationMs: preset.TransitionMs}
		}
		out = append(out, c)
		cursor += length
	}
	return out
}
