package blob

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/cutforge/internal/config"
)

func TestParseRef(t *testing.T) {
	bucket, key, err := ParseRef("/exports/exports/u1/j1/output.mp4")
	require.NoError(t, err)
	assert.Equal(t, "exports", bucket)
	assert.Equal(t, "exports/u1/j1/output.mp4", key)

	for _, bad := range []string{"", "/", "/bucket", "/bucket/", "//key"} {
		_, _, err := ParseRef(bad)
		assert.ErrorIs(t, err, ErrBadRef, bad)
	}
	assert.Equal(t, "/media/a/b.mp4", Ref("media", "/a/b.mp4"))
}

func TestPresignedURLIsLocal(t *testing.T) {
	s, err := NewMinio(config.StorageConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		// with a known region presigning needs no round trip
		Region: "us-east-1",
	}, zerolog.Nop())
	require.NoError(t, err)

	raw, err := s.PresignedURL(context.Background(), "/exports/u1/out.mp4", time.Hour)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/exports/u1/out.mp4", u.Path)
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
	assert.True(t, strings.HasPrefix(raw, "http://localhost:9000/"))

	_, err = s.PresignedURL(context.Background(), "nobucket", time.Hour)
	assert.ErrorIs(t, err, ErrBadRef)
}

func TestNewMinioRequiresEndpoint(t *testing.T) {
	_, err := NewMinio(config.StorageConfig{}, zerolog.Nop())
	assert.Error(t, err)
}
