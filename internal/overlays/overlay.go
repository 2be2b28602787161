// Package overlays computes placement expressions for sticker overlays on
// the composited canvas.
package overlays

import (
	"fmt"
	"math"
	"time"
)

// Overlay is a sticker image placed on the canvas for a time range
type Overlay struct {
	Path     string
	Start    time.Duration
	End      time.Duration
	Position Position
	Scale    Scale
}

// Position is the overlay centre, normalized to the canvas (0..1)
type Position struct {
	X float64
	Y float64
}

// Scale multiplies the sticker's native size
type Scale struct {
	X float64
	Y float64
}

// Unscaled returns the default scale.
func Unscaled() Scale { return Scale{X: 1, Y: 1} }

// NeedsScale reports whether either axis differs from 1 by more than 0.01.
func (s Scale) NeedsScale() bool {
	return math.Abs(s.X-1) > 0.01 || math.Abs(s.Y-1) > 0.01
}

// ScaleFilter returns the scale stage for the sticker input, or "" when the
// sticker keeps its native size.
func (o Overlay) ScaleFilter() string {
	if !o.Scale.NeedsScale() {
		return ""
	}
	return fmt.Sprintf("scale=iw*%.2f:ih*%.2f", o.Scale.X, o.Scale.Y)
}

// EnableExpr limits the overlay to its time range on the output timeline.
func (o Overlay) EnableExpr() string {
	return fmt.Sprintf("between(t,%.3f,%.3f)", o.Start.Seconds(), o.End.Seconds())
}

// OverlayFilter centres the sticker on its normalized position.
func (o Overlay) OverlayFilter() string {
	return fmt.Sprintf("overlay=x='%s*W-overlay_w/2':y='%s*H-overlay_h/2':enable='%s'",
		coord(o.Position.X), coord(o.Position.Y), o.EnableExpr())
}

func coord(v float64) string {
	return fmt.Sprintf("%g", v)
}
