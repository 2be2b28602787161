package clips

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerTrack(t *testing.T) {
	m := NewManager()
	m.Add(
		&Clip{ID: "c1", AssetID: "a", Name: "Beat 1", Type: TypeVideo, StartMs: 0, EndMs: 1000, TrimStartMs: 0, SourceDurationMs: 2500},
		&Clip{ID: "c2", AssetID: "a", Name: "Beat 2", Type: TypeVideo, StartMs: 1000, EndMs: 2500, TrimStartMs: 1000, SourceDurationMs: 2500,
			TransitionIn: &Transition{Type: "fade", DurationMs: 300}},
	)

	track, err := m.Track(func(id string) (string, bool) { return "/media/" + id + ".mp4", id == "a" })
	require.NoError(t, err)
	require.Len(t, track.Clips, 2)

	second := track.Clips[1]
	assert.Equal(t, "/media/a.mp4", second.Source)
	assert.Equal(t, int64(2500), second.TrimEndMs)
	assert.Equal(t, int64(300), second.FadeInMs)
	assert.Equal(t, 1.0, second.Speed)
	assert.Zero(t, track.Clips[0].FadeInMs)

	assert.Equal(t, 2500*time.Millisecond, m.TotalDuration())
	assert.Equal(t, "Beat 2", m.Get("c2").Name)
	assert.Nil(t, m.Get("missing"))
}

func TestManagerTrackUnresolved(t *testing.T) {
	m := NewManager()
	m.Add(&Clip{AssetID: "gone", EndMs: 1000})
	_, err := m.Track(func(string) (string, bool) { return "", false })
	assert.Error(t, err)
}

func TestClipTiming(t *testing.T) {
	c := &Clip{TrimStartMs: 2000, StartMs: 0, EndMs: 4000}
	assert.Equal(t, 4*time.Second, c.Midpoint())
	c.SetMeta("visual_score", 0.7)
	assert.Equal(t, 0.7, c.Metadata["visual_score"])
}
