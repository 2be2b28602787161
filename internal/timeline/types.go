// Package timeline holds the editable timeline document and compiles it into
// a single ffmpeg invocation.
package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/keagan/cutforge/internal/config"
	"github.com/keagan/cutforge/internal/effects"
	"github.com/keagan/cutforge/internal/overlays"
)

// ErrInvalidTimeline marks documents the compiler refuses to render.
var ErrInvalidTimeline = errors.New("invalid timeline")

// TrackKind is the media type a track carries.
type TrackKind string

const (
	TrackVideo   TrackKind = "video"
	TrackAudio   TrackKind = "audio"
	TrackSticker TrackKind = "sticker"
)

// Timeline is the ordered set of tracks composing one export.
type Timeline struct {
	Tracks []Track `json:"tracks"`
}

// Track is an ordered clip list. Clip order is concatenation order.
type Track struct {
	ID    string    `json:"id,omitempty"`
	Kind  TrackKind `json:"type"`
	Clips []Clip    `json:"clips"`
}

// Clip places a trimmed window of a source on the canvas.
type Clip struct {
	ID      string `json:"id,omitempty"`
	AssetID string `json:"assetId,omitempty"`
	// Source is a local path once the asset has been fetched.
	Source string `json:"source"`

	StartMs     int64 `json:"startMs"`
	EndMs       int64 `json:"endMs"`
	TrimStartMs int64 `json:"trimStartMs"`
	// TrimEndMs of zero means the window covers the clip's timeline span
	// at its speed.
	TrimEndMs int64 `json:"trimEndMs,omitempty"`

	Speed     float64          `json:"speed"`
	Effects   []effects.Effect `json:"effects,omitempty"`
	FadeInMs  int64            `json:"fadeInMs,omitempty"`
	FadeOutMs int64            `json:"fadeOutMs,omitempty"`

	// Sticker placement, normalized to the canvas.
	PositionX float64 `json:"positionX"`
	PositionY float64 `json:"positionY"`
	ScaleX    float64 `json:"scaleX"`
	ScaleY    float64 `json:"scaleY"`

	// NoAudio is set for sources without an audio stream.
	NoAudio bool `json:"noAudio,omitempty"`
}

// UnmarshalJSON fills in defaults for fields the document leaves out.
func (c *Clip) UnmarshalJSON(data []byte) error {
	type plain Clip
	p := plain{Speed: 1, PositionX: 0.5, PositionY: 0.5, ScaleX: 1, ScaleY: 1}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Clip(p)
	return nil
}

// TrimWindow returns the source window in seconds.
func (c Clip) TrimWindow() (start, end float64) {
	endMs := c.TrimEndMs
	if endMs == 0 {
		speed := c.Speed
		if speed <= 0 {
			speed = 1
		}
		endMs = c.TrimStartMs + int64(math.Round(float64(c.EndMs-c.StartMs)*speed))
	}
	return float64(c.TrimStartMs) / 1000, float64(endMs) / 1000
}

// Duration is the clip's length on the output after retiming, in seconds.
func (c Clip) Duration() float64 {
	start, end := c.TrimWindow()
	d := end - start
	if !effects.IsIdentity(c.Speed) && c.Speed > 0 {
		d /= c.Speed
	}
	return d
}

// Overlay converts a sticker clip to overlay placement.
func (c Clip) Overlay() overlays.Overlay {
	return overlays.Overlay{
		Path:     c.Source,
		Start:    time.Duration(c.StartMs) * time.Millisecond,
		End:      time.Duration(c.EndMs) * time.Millisecond,
		Position: overlays.Position{X: c.PositionX, Y: c.PositionY},
		Scale:    overlays.Scale{X: c.ScaleX, Y: c.ScaleY},
	}
}

// Validate checks the structural invariants the compiler relies on.
func (tl *Timeline) Validate() error {
	for ti, track := range tl.Tracks {
		switch track.Kind {
		case TrackVideo, TrackAudio, TrackSticker:
		default:
			return fmt.Errorf("%w: track %d has unknown type %q", ErrInvalidTimeline, ti, track.Kind)
		}
		for ci, c := range track.Clips {
			if c.Source == "" {
				return fmt.Errorf("%w: track %d clip %d has no source", ErrInvalidTimeline, ti, ci)
			}
			if c.EndMs < c.StartMs {
				return fmt.Errorf("%w: track %d clip %d ends before it starts", ErrInvalidTimeline, ti, ci)
			}
			if track.Kind == TrackSticker {
				continue
			}
			if c.Speed <= 0 {
				return fmt.Errorf("%w: track %d clip %d has speed %v", ErrInvalidTimeline, ti, ci, c.Speed)
			}
			if start, end := c.TrimWindow(); end <= start {
				return fmt.Errorf("%w: track %d clip %d has an empty trim window", ErrInvalidTimeline, ti, ci)
			}
		}
	}
	return nil
}

// IsEmpty reports whether no track holds a clip.
func (tl *Timeline) IsEmpty() bool {
	for _, t := range tl.Tracks {
		if len(t.Clips) > 0 {
			return false
		}
	}
	return true
}

// Parse decodes a timeline document.
func Parse(data []byte) (*Timeline, error) {
	var tl Timeline
	if err := json.Unmarshal(data, &tl); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTimeline, err)
	}
	return &tl, nil
}

// Load reads a timeline document from disk.
func Load(path string) (*Timeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timeline: %w", err)
	}
	return Parse(data)
}

// OutputSpec describes the rendered file.
type OutputSpec struct {
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	FPS          float64 `json:"fps"`
	Codec        string  `json:"codec"`
	AudioCodec   string  `json:"audioCodec"`
	Preset       string  `json:"preset"`
	CRF          int     `json:"crf"`
	AudioBitrate string  `json:"audioBitrate"`
}

// DefaultOutput is 1080p30 H.264/AAC.
func DefaultOutput() OutputSpec {
	return OutputSpec{
		Width:        1920,
		Height:       1080,
		FPS:          30,
		Codec:        "libx264",
		AudioCodec:   "aac",
		Preset:       "medium",
		CRF:          23,
		AudioBitrate: "192k",
	}
}

// WithDefaults fills zero fields from DefaultOutput.
func (o OutputSpec) WithDefaults() OutputSpec {
	d := DefaultOutput()
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = d.Width, d.Height
	}
	if o.FPS <= 0 {
		o.FPS = d.FPS
	}
	if o.Codec == "" {
		o.Codec = d.Codec
	}
	if o.AudioCodec == "" {
		o.AudioCodec = d.AudioCodec
	}
	if o.Preset == "" {
		o.Preset = d.Preset
	}
	if o.CRF <= 0 {
		o.CRF = d.CRF
	}
	if o.AudioBitrate == "" {
		o.AudioBitrate = d.AudioBitrate
	}
	return o
}

// SubtitleSegment is one caption cue.
type SubtitleSegment struct {
	StartMs        int64  `json:"startMs"`
	EndMs          int64  `json:"endMs"`
	Text           string `json:"text"`
	TranslatedText string `json:"translatedText,omitempty"`
}

// Subtitles are burned into the video.
type Subtitles struct {
	Segments  []SubtitleSegment `json:"segments"`
	Bilingual bool              `json:"bilingual"`
}

// UnmarshalJSON defaults Bilingual to true.
func (s *Subtitles) UnmarshalJSON(data []byte) error {
	type plain Subtitles
	p := plain{Bilingual: true}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Subtitles(p)
	return nil
}

// SubtitleStyle controls the burned-in caption look.
type SubtitleStyle struct {
	FontName string
	FontSize int
	Outline  int
}

// DefaultSubtitleStyle is white text with a black outline.
func DefaultSubtitleStyle() SubtitleStyle {
	return SubtitleStyle{FontName: "Noto Sans TC", FontSize: 24, Outline: 2}
}

// StyleFromConfig overrides the default style with the configured values
// that are set.
func StyleFromConfig(c config.SubtitleConfig) SubtitleStyle {
	style := DefaultSubtitleStyle()
	if c.FontName != "" {
		style.FontName = c.FontName
	}
	if c.FontSize > 0 {
		style.FontSize = c.FontSize
	}
	if c.OutlineWidth > 0 {
		style.Outline = c.OutlineWidth
	}
	return style
}

func (s SubtitleStyle) forceStyle() string {
	d := DefaultSubtitleStyle()
	if s.FontName == "" {
		s.FontName = d.FontName
	}
	if s.FontSize <= 0 {
		s.FontSize = d.FontSize
	}
	if s.Outline < 0 {
		s.Outline = d.Outline
	}
	return fmt.Sprintf("FontSize=%d,PrimaryColour=&H00FFFFFF,OutlineColour=&H00000000,Outline=%d,FontName=%s",
		s.FontSize, s.Outline, s.FontName)
}
