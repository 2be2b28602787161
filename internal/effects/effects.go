// Package effects turns timeline effect settings and playback speed into
// ffmpeg filter expressions.
package effects

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Kind identifies a supported visual effect.
type Kind int

const (
	KindUnknown Kind = iota
	KindBlur
	KindBrightness
	KindContrast
	KindSaturation
	KindGrayscale
	KindSepia
	KindHueRotate
	KindInvert
)

var kindNames = map[Kind]string{
	KindBlur:       "blur",
	KindBrightness: "brightness",
	KindContrast:   "contrast",
	KindSaturation: "saturation",
	KindGrayscale:  "grayscale",
	KindSepia:      "sepia",
	KindHueRotate:  "hueRotate",
	KindInvert:     "invert",
}

// ParseKind maps an effect id onto a Kind. Unrecognized ids yield KindUnknown.
func ParseKind(id string) Kind {
	for k, name := range kindNames {
		if strings.EqualFold(name, id) {
			return k
		}
	}
	return KindUnknown
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Effect is a single effect entry attached to a clip.
type Effect struct {
	ID      string  `json:"id"`
	Value   float64 `json:"value"`
	Enabled bool    `json:"enabled"`
}

// UnmarshalJSON treats a missing enabled field as enabled.
func (e *Effect) UnmarshalJSON(data []byte) error {
	type plain Effect
	p := plain{Enabled: true}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = Effect(p)
	return nil
}

// Kind resolves the effect id.
func (e Effect) Kind() Kind { return ParseKind(e.ID) }

// identityTolerance is how close a multiplicative setting must be to 1.0 to
// be treated as a no-op.
const identityTolerance = 0.01

// BuildFilters renders the enabled effects in list order. Disabled effects,
// unknown ids and settings at their neutral value produce nothing.
func BuildFilters(list []Effect) []string {
	var filters []string
	for _, e := range list {
		if !e.Enabled {
			continue
		}
		if f := Filter(e.Kind(), e.Value); f != "" {
			filters = append(filters, f)
		}
	}
	return filters
}

// Filter renders one effect at value v, or "" when it has no visible result.
func Filter(kind Kind, v float64) string {
	switch kind {
	case KindBlur:
		if v <= 0 {
			return ""
		}
		radius := int(math.Max(1, math.Round(v)))
		return fmt.Sprintf("boxblur=%d:%d", radius, radius)
	case KindBrightness:
		if nearOne(v) {
			return ""
		}
		return fmt.Sprintf("eq=brightness=%.2f", v-1)
	case KindContrast:
		if nearOne(v) {
			return ""
		}
		return fmt.Sprintf("eq=contrast=%.2f", v)
	case KindSaturation:
		if nearOne(v) {
			return ""
		}
		return fmt.Sprintf("eq=saturation=%.2f", v)
	case KindGrayscale:
		if v >= 0.95 {
			return "hue=s=0"
		}
		if v > 0 {
			return fmt.Sprintf("eq=saturation=%.2f", 1-v)
		}
		return ""
	case KindSepia:
		if v <= 0 {
			return ""
		}
		return sepia(v)
	case KindHueRotate:
		if v <= 0 {
			return ""
		}
		return fmt.Sprintf("hue=h=%s", trimFloat(v))
	case KindInvert:
		if v < 0.5 {
			return ""
		}
		return "negate"
	case KindUnknown:
		return ""
	default:
		panic(fmt.Sprintf("effects: unhandled kind %d", kind))
	}
}

// sepia blends the identity matrix with the classic sepia tone matrix.
func sepia(v float64) string {
	keep := 1 - v
	return fmt.Sprintf("colorchannelmixer=%.3f:%.3f:%.3f:0:%.3f:%.3f:%.3f:0:%.3f:%.3f:%.3f:0",
		0.393*v+keep, 0.769*v, 0.189*v,
		0.349*v, 0.686*v+keep, 0.168*v,
		0.272*v, 0.534*v, 0.131*v+keep,
	)
}

func nearOne(v float64) bool {
	return math.Abs(v-1) <= identityTolerance
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.3f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
