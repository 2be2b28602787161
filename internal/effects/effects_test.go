package effects

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainProduct(t *testing.T, chain []string) float64 {
	t.Helper()
	product := 1.0
	for _, f := range chain {
		require.True(t, strings.HasPrefix(f, "atempo="), "unexpected filter %q", f)
		v, err := strconv.ParseFloat(strings.TrimPrefix(f, "atempo="), 64)
		require.NoError(t, err)
		require.GreaterOrEqual(t, v, atempoMin)
		require.LessOrEqual(t, v, atempoMax)
		product *= v
	}
	return product
}

func TestRateChainComposesToSpeed(t *testing.T) {
	speeds := []float64{0.01, 0.1, 0.25, 0.3, 0.5, 0.75, 1.5, 2, 4, 99, 150, 1000, 25000}
	for _, s := range speeds {
		chain := RateChain(s)
		got := chainProduct(t, chain)
		assert.InDelta(t, 1.0, got/s, 0.01, "speed %v chain %v", s, chain)
	}
}

func TestRateChainSinglePrimitiveInRange(t *testing.T) {
	for _, s := range []float64{0.5, 0.6, 0.98, 1.02, 2, 50, 100} {
		assert.Len(t, RateChain(s), 1, "speed %v", s)
	}
}

func TestRateChainIdentity(t *testing.T) {
	assert.Empty(t, RateChain(1))
	assert.Empty(t, RateChain(1.005))
	assert.Empty(t, RateChain(0.995))
	assert.Empty(t, RateChain(0))
}

func TestRateChainSplitsLowSpeeds(t *testing.T) {
	assert.Equal(t, []string{"atempo=0.5", "atempo=0.6000"}, RateChain(0.3))
	assert.Equal(t, []string{"atempo=100.0", "atempo=2.0000"}, RateChain(200))
}

func TestVideoRetime(t *testing.T) {
	assert.Equal(t, "setpts=PTS-STARTPTS", VideoRetime(1))
	assert.Equal(t, "setpts=(PTS-STARTPTS)/2", VideoRetime(2))
	assert.Equal(t, "setpts=(PTS-STARTPTS)/0.5", VideoRetime(0.5))
}

func TestBuildFiltersOrderAndSkips(t *testing.T) {
	list := []Effect{
		{ID: "brightness", Value: 1.2, Enabled: true},
		{ID: "blur", Value: 3, Enabled: false},
		{ID: "sparkle", Value: 1, Enabled: true},
		{ID: "contrast", Value: 1.005, Enabled: true},
		{ID: "invert", Value: 1, Enabled: true},
		{ID: "blur", Value: 0.3, Enabled: true},
	}

	assert.Equal(t, []string{"eq=brightness=0.20", "negate", "boxblur=1:1"}, BuildFilters(list))
}

func TestFilterThresholds(t *testing.T) {
	cases := []struct {
		kind Kind
		v    float64
		want string
	}{
		{KindBlur, 0, ""},
		{KindBlur, 2.6, "boxblur=3:3"},
		{KindBrightness, 0.5, "eq=brightness=-0.50"},
		{KindContrast, 1.5, "eq=contrast=1.50"},
		{KindSaturation, 0.995, ""},
		{KindSaturation, 2, "eq=saturation=2.00"},
		{KindGrayscale, 0, ""},
		{KindGrayscale, 0.4, "eq=saturation=0.60"},
		{KindGrayscale, 0.95, "hue=s=0"},
		{KindHueRotate, 90, "hue=h=90"},
		{KindHueRotate, 0, ""},
		{KindInvert, 0.49, ""},
		{KindSepia, 0, ""},
		{KindUnknown, 5, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Filter(tc.kind, tc.v), "%s(%v)", tc.kind, tc.v)
	}
}

func TestSepiaFullStrength(t *testing.T) {
	got := Filter(KindSepia, 1)
	assert.Equal(t, "colorchannelmixer=0.393:0.769:0.189:0:0.349:0.686:0.168:0:0.272:0.534:0.131:0", got)
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindHueRotate, ParseKind("hueRotate"))
	assert.Equal(t, KindSepia, ParseKind("SEPIA"))
	assert.Equal(t, KindUnknown, ParseKind("vhs"))
	assert.Equal(t, "grayscale", KindGrayscale.String())
}

func TestIsIdentity(t *testing.T) {
	assert.True(t, IsIdentity(1.009))
	assert.False(t, IsIdentity(1.5))
	assert.False(t, math.IsNaN(chainProduct(t, RateChain(3))))
}

func TestEffectEnabledByDefault(t *testing.T) {
	var list []Effect
	require.NoError(t, json.Unmarshal([]byte(`[{"id":"grayscale","value":1},{"id":"invert","value":1,"enabled":false}]`), &list))
	require.Len(t, list, 2)
	assert.True(t, list[0].Enabled)
	assert.False(t, list[1].Enabled)
	assert.Equal(t, []string{"hue=s=0"}, BuildFilters(list))
}
