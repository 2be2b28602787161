package filtergraph

import (
	"fmt"
	"strings"
)

// ChainBuilder helps construct a comma-separated filter chain
type ChainBuilder struct {
	filters []string
}

// NewChain creates a new chain builder
func NewChain() *ChainBuilder {
	return &ChainBuilder{filters: make([]string, 0, 8)}
}

// Trim keeps [start, end) seconds of a video stream
func (cb *ChainBuilder) Trim(start, end float64) *ChainBuilder {
	cb.filters = append(cb.filters, fmt.Sprintf("trim=start=%s:end=%s", num(start), num(end)))
	return cb
}

// ATrim keeps [start, end) seconds of an audio stream
func (cb *ChainBuilder) ATrim(start, end float64) *ChainBuilder {
	cb.filters = append(cb.filters, fmt.Sprintf("atrim=start=%s:end=%s", num(start), num(end)))
	return cb
}

// ASetPTS resets audio timestamps to start at zero
func (cb *ChainBuilder) ASetPTS() *ChainBuilder {
	cb.filters = append(cb.filters, "asetpts=PTS-STARTPTS")
	return cb
}

// FitCanvas scales down to fit width x height and pads the rest, centred
func (cb *ChainBuilder) FitCanvas(width, height int) *ChainBuilder {
	if width <= 0 || height <= 0 {
		return cb
	}
	cb.filters = append(cb.filters,
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", width, height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", width, height),
	)
	return cb
}

// AFadeIn fades audio in over d seconds
func (cb *ChainBuilder) AFadeIn(d float64) *ChainBuilder {
	if d <= 0 {
		return cb
	}
	cb.filters = append(cb.filters, fmt.Sprintf("afade=t=in:st=0:d=%.3f", d))
	return cb
}

// AFadeOut fades audio out over the last d seconds of a clip lasting total
// seconds. The start is clamped at zero.
func (cb *ChainBuilder) AFadeOut(d, total float64) *ChainBuilder {
	if d <= 0 || total <= 0 {
		return cb
	}
	st := total - d
	if st < 0 {
		st = 0
	}
	cb.filters = append(cb.filters, fmt.Sprintf("afade=t=out:st=%.3f:d=%.3f", st, d))
	return cb
}

// Custom adds raw filter strings
func (cb *ChainBuilder) Custom(filters ...string) *ChainBuilder {
	for _, f := range filters {
		if f != "" {
			cb.filters = append(cb.filters, f)
		}
	}
	return cb
}

// Build returns the complete filter string joined with commas
func (cb *ChainBuilder) Build() string {
	return strings.Join(cb.filters, ",")
}

// BuildAll returns all filters as a slice
func (cb *ChainBuilder) BuildAll() []string {
	return append([]string(nil), cb.filters...)
}

// num prints seconds without trailing zeros.
func num(v float64) string {
	s := fmt.Sprintf("%.3f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
