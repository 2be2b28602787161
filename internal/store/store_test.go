package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/keagan/cutforge/internal/jobs"
	"github.com/keagan/cutforge/internal/timeline"
)

func TestJobRecordRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	j := &jobs.Job{
		ID:        "j1",
		OwnerID:   "u1",
		ProjectID: "p1",
		Kind:      jobs.KindExport,
		Status:    jobs.StatusProcessing,
		Progress:  42,
		Params:    json.RawMessage(`{"project_id":"p1"}`),
		Result:    map[string]any{"download_url": "https://x"},
		Error:     "",
		Attempts:  2,
		CreatedAt: now,
		UpdatedAt: now,
	}
	rec := jobRecord(j)
	assert.Equal(t, "export", rec.Kind)
	assert.Equal(t, "processing", rec.Status)
	assert.Equal(t, "processing_jobs", rec.TableName())
	assert.Equal(t, j, rec.job())
}

func TestAssetRecordRoundTrip(t *testing.T) {
	a := &jobs.Asset{
		ID:               "a1",
		OwnerID:          "u1",
		Type:             jobs.AssetVideo,
		Filename:         "clip.mp4",
		OriginalFilename: "My Clip.mp4",
		Ref:              "/media/u1/clip.mp4",
		MimeType:         "video/mp4",
		Size:             1024,
		DurationMs:       4000,
		Width:            1920,
		Height:           1080,
		Metadata:         map[string]any{"format": "mov,mp4"},
	}
	rec := assetRecord(a)
	assert.Equal(t, "/media/u1/clip.mp4", rec.FilePath)
	assert.Equal(t, "video", rec.AssetType)
	assert.Equal(t, a, rec.asset())
}

func TestProjectRecordKeepsTimeline(t *testing.T) {
	p := &jobs.Project{
		ID:      "p1",
		OwnerID: "u1",
		Timeline: &timeline.Timeline{Tracks: []timeline.Track{{
			Kind:  timeline.TrackVideo,
			Clips: []timeline.Clip{{AssetID: "a1", EndMs: 1000, Speed: 1}},
		}}},
		Output: timeline.DefaultOutput(),
	}
	assert.Equal(t, p, projectRecord(p).project())
}

func TestNotFound(t *testing.T) {
	err := notFound(gorm.ErrRecordNotFound, jobs.ErrJobNotFound, "j9")
	require.Error(t, err)
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
	assert.Contains(t, err.Error(), "j9")

	other := errors.New("connection refused")
	assert.Equal(t, other, notFound(other, jobs.ErrJobNotFound, "j9"))
}

func TestGormLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := newGormLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))
	ctx := context.Background()

	l.Info(ctx, "hidden %d", 1)
	assert.Empty(t, buf.String())

	l.Trace(ctx, time.Now().Add(-time.Second), func() (string, int64) { return "SELECT 1", 1 }, nil)
	assert.Contains(t, buf.String(), "slow query")

	buf.Reset()
	l.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 2", 0 }, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	var traced bytes.Buffer
	newGormLogger(zerolog.New(&traced)).Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 4", 1 }, nil)
	assert.Contains(t, traced.String(), "SELECT 4")

	silent := l.LogMode(gormlogger.Silent)
	silent.Error(ctx, "nope")
	silent.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 3", 0 }, errors.New("boom"))
	assert.Empty(t, buf.String())
}
