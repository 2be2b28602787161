// Package clips holds the clip lists produced by the automatic planners.
// They describe edits; turning them into a timeline is up to the caller.
package clips

import (
	"fmt"
	"time"

	"github.com/keagan/cutforge/internal/timeline"
)

// Clip types
const (
	TypeVideo = "video"
	TypeImage = "image"
	TypeAudio = "audio"
)

// Transition applied at the head of a clip
type Transition struct {
	Type       string `json:"type"`
	DurationMs int64  `json:"durationMs"`
}

// Clip represents a planned segment with metadata
type Clip struct {
	ID      string `json:"id,omitempty"`
	AssetID string `json:"assetId,omitempty"`
	Name    string `json:"name,omitempty"`
	Type    string `json:"type"`
	// Source is the local file backing the clip, when known.
	Source string `json:"-"`

	// StartMs and EndMs place the clip on the output timeline.
	StartMs     int64 `json:"startTime"`
	EndMs       int64 `json:"endTime"`
	TrimStartMs int64 `json:"trimStart"`
	// TrimEndMs of zero means the clip runs for EndMs-StartMs.
	TrimEndMs int64 `json:"trimEnd"`
	// SourceDurationMs is the length of the whole source asset.
	SourceDurationMs int64 `json:"duration"`

	Score        float64        `json:"score,omitempty"`
	TransitionIn *Transition    `json:"transitionIn,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Duration of the clip on the output timeline
func (c *Clip) Duration() time.Duration {
	return time.Duration(c.EndMs-c.StartMs) * time.Millisecond
}

// SourceStart is where the clip begins inside its source
func (c *Clip) SourceStart() time.Duration {
	return time.Duration(c.TrimStartMs) * time.Millisecond
}

// Midpoint is the source timestamp halfway through the clip
func (c *Clip) Midpoint() time.Duration {
	return c.SourceStart() + c.Duration()/2
}

// SetMeta records a metadata value, allocating the map on first use
func (c *Clip) SetMeta(key string, value any) {
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	c.Metadata[key] = value
}

// Manager handles clip operations
type Manager struct {
	clips []*Clip
}

// NewManager creates a new clip manager
func NewManager() *Manager {
	return &Manager{
		clips: make([]*Clip, 0),
	}
}

// Add adds clips to the manager
func (m *Manager) Add(clips ...*Clip) {
	m.clips = append(m.clips, clips...)
}

// Get retrieves a clip by ID
func (m *Manager) Get(id string) *Clip {
	for _, clip := range m.clips {
		if clip.ID == id {
			return clip
		}
	}
	return nil
}

// All returns all clips
func (m *Manager) All() []*Clip {
	return m.clips
}

// TotalDuration is the summed clip length
func (m *Manager) TotalDuration() time.Duration {
	var total time.Duration
	for _, c := range m.clips {
		total += c.Duration()
	}
	return total
}

// Track lays the clips out as a video track. resolve maps asset ids to
// local paths; clips with a Source keep it. Fade transitions become audio
// fade-ins.
func (m *Manager) Track(resolve func(assetID string) (string, bool)) (timeline.Track, error) {
	track := timeline.Track{Kind: timeline.TrackVideo}
	for i, c := range m.clips {
		src := c.Source
		if src == "" && resolve != nil {
			if p, ok := resolve(c.AssetID); ok {
				src = p
			}
		}
		if src == "" {
			return timeline.Track{}, fmt.Errorf("clip %d (%s): no source for asset %q", i, c.Name, c.AssetID)
		}

		tc := timeline.Clip{
			ID:          c.ID,
			AssetID:     c.AssetID,
			Source:      src,
			StartMs:     c.StartMs,
			EndMs:       c.EndMs,
			TrimStartMs: c.TrimStartMs,
			TrimEndMs:   c.TrimStartMs + (c.EndMs - c.StartMs),
			Speed:       1,
			PositionX:   0.5,
			PositionY:   0.5,
			ScaleX:      1,
			ScaleY:      1,
		}
		if c.TransitionIn != nil && c.TransitionIn.Type == "fade" {
			tc.FadeInMs = c.TransitionIn.DurationMs
		}
		track.Clips = append(track.Clips, tc)
	}
	return track, nil
}
