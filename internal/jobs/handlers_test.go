package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"image/jpeg"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/cutforge/internal/audio"
	"github.com/keagan/cutforge/internal/clips"
	"github.com/keagan/cutforge/internal/ffmpeg"
	"github.com/keagan/cutforge/internal/pipeline"
	"github.com/keagan/cutforge/internal/planner"
	"github.com/keagan/cutforge/internal/timeline"
)

func videoClip(assetID string, startMs, endMs int64) timeline.Clip {
	return timeline.Clip{
		AssetID:     assetID,
		StartMs:     startMs,
		EndMs:       endMs,
		TrimStartMs: 0,
		TrimEndMs:   endMs - startMs,
		Speed:       1,
		ScaleX:      1,
		ScaleY:      1,
	}
}

func TestExportRendersProject(t *testing.T) {
	h := newHarness(t)
	h.seedAsset(t, Asset{ID: "a1", Type: AssetVideo, Filename: "a1.mp4"})
	h.store.projects["p1"] = Project{
		ID:      "p1",
		OwnerID: "u1",
		Timeline: &timeline.Timeline{Tracks: []timeline.Track{{
			Kind:  timeline.TrackVideo,
			Clips: []timeline.Clip{videoClip("a1", 0, 2000), videoClip("a1", 2000, 3000)},
		}}},
	}
	job := h.seedJob(t, KindExport, map[string]string{"project_id": "p1"})

	got, err := h.run(t, job)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status, got.Error)

	objectPath := "/exports/exports/u1/" + job.ID + "/output.mp4"
	assert.Equal(t, objectPath, got.Result["object_path"])
	assert.True(t, h.blobs.has(objectPath))
	assert.Equal(t, "/thumbnails/exports/u1/"+job.ID+"/poster.jpg", got.Result["poster_path"])
	assert.Equal(t, int64(3000), got.Result["duration_ms"])

	// the shared source is fetched and probed once
	require.Len(t, h.media.probed, 1)
	assert.True(t, strings.HasSuffix(h.media.probed[0], "asset-a1.mp4"))

	require.Len(t, h.media.runs, 1)
	args := strings.Join(h.media.runs[0], " ")
	assert.Contains(t, args, "concat=n=2:v=1:a=0")
	assert.NotContains(t, args, "atrim", "sources without audio contribute no audio chain")

	rendering := h.pub.withDetail("Rendering")
	require.NotEmpty(t, rendering)
	assert.LessOrEqual(t, rendering[len(rendering)-1].Progress, 95.0)
}

func TestExportRejectsEmptyProject(t *testing.T) {
	h := newHarness(t)
	h.store.projects["p1"] = Project{ID: "p1", Timeline: &timeline.Timeline{}}
	job := h.seedJob(t, KindExport, nil)
	job.ProjectID = "p1"
	require.NoError(t, h.store.SaveJob(context.Background(), job))

	got, err := h.run(t, job)
	assert.Equal(t, ClassValidation, Classify(err))
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "no timeline data")
	assert.Empty(t, h.media.runs)
}

func TestAutoEditRegistersAsset(t *testing.T) {
	h := newHarness(t)
	h.seedAsset(t, Asset{ID: "a1", Type: AssetVideo})
	job := h.seedJob(t, KindAutoEdit, map[string]any{
		"asset_id":  "a1",
		"operation": OpJumpCut,
		"margin":    0.15,
	})

	got, err := h.run(t, job)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status, got.Error)

	assert.Equal(t, OpJumpCut, h.remove.op)
	assert.Equal(t, 0.15, h.remove.opts.Margin)
	assert.Equal(t, OpJumpCut, got.Result["operation"])
	assert.Equal(t, 12.5, got.Result["kept_seconds"])

	id, ok := got.Result["asset_id"].(string)
	require.True(t, ok)
	created, err := h.store.GetAsset(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Auto-edited (jump_cut)", created.OriginalFilename)
	assert.Equal(t, "/media/auto_edit/u1/"+job.ID+"/auto_edit_jump_cut.mp4", created.Ref)
	assert.Equal(t, int64(len("trimmed")), created.Size)

	require.Len(t, h.queue.jobs, 1)
	queued := h.queue.jobs[0]
	assert.Equal(t, KindAssetMetadata, queued.Kind)
	assert.Equal(t, QueueLight, QueueFor(queued.Kind))
	var params metadataParams
	require.NoError(t, json.Unmarshal(queued.Params, &params))
	assert.Equal(t, id, params.AssetID)
	assert.Len(t, h.store.jobsOfKind(KindAssetMetadata), 1)
}

func TestAutoEditRetryReusesAsset(t *testing.T) {
	h := newHarness(t)
	h.seedAsset(t, Asset{ID: "a1", Type: AssetVideo})
	h.store.failCompleted = 1
	job := h.seedJob(t, KindAutoEdit, map[string]any{"asset_id": "a1", "operation": OpSilenceRemoval})

	got, err := h.run(t, job)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status, got.Error)
	assert.Equal(t, 2, got.Attempts)

	assert.Len(t, h.store.assets, 2)
	assert.Equal(t, outputAssetID(job.ID), got.Result["asset_id"])
	assert.Len(t, h.queue.jobs, 1)
	assert.Len(t, h.store.jobsOfKind(KindAssetMetadata), 1)
}

func TestAutoEditValidation(t *testing.T) {
	h := newHarness(t)
	job := h.seedJob(t, KindAutoEdit, map[string]any{"operation": "speed_ramp", "source_path": "/media/x.mp4"})
	_, err := h.run(t, job)
	assert.Equal(t, ClassValidation, Classify(err))

	job = h.seedJob(t, KindAutoEdit, map[string]any{"operation": OpSilenceRemoval})
	got, err := h.run(t, job)
	assert.Equal(t, ClassValidation, Classify(err))
	assert.Contains(t, got.Error, "source_path")
}

func TestSmartEditMontage(t *testing.T) {
	h := newHarness(t)
	h.seedAsset(t, Asset{ID: "v1", Type: AssetVideo, DurationMs: 8000, OriginalFilename: "beach.mp4"})
	h.seedAsset(t, Asset{ID: "i1", Type: AssetImage, OriginalFilename: "sunset.jpg"})
	h.seedAsset(t, Asset{ID: "m1", Type: AssetAudio, DurationMs: 60000, OriginalFilename: "song.mp3"})

	job := h.seedJob(t, KindSmartEdit, map[string]any{
		"operation":      OpMontage,
		"asset_ids":      []string{"v1", "i1"},
		"style":          "fast_paced",
		"music_asset_id": "m1",
	})
	got, err := h.run(t, job)
	require.NoError(t, err)

	cl := got.Result["clips"].([]*clips.Clip)
	require.Len(t, cl, 2)
	assert.Equal(t, 2, got.Result["clip_count"])
	assert.Equal(t, "fast_paced", got.Result["style"])

	music := got.Result["music_clip"].(*clips.Clip)
	assert.Equal(t, clips.TypeAudio, music.Type)
	assert.Equal(t, cl[len(cl)-1].EndMs, music.EndMs)
}

func TestSmartEditMontageNeedsTwoAssets(t *testing.T) {
	h := newHarness(t)
	h.seedAsset(t, Asset{ID: "v1", Type: AssetVideo, DurationMs: 8000})
	job := h.seedJob(t, KindSmartEdit, map[string]any{"operation": OpMontage, "asset_ids": []string{"v1"}})

	got, err := h.run(t, job)
	assert.Equal(t, ClassValidation, Classify(err))
	assert.Contains(t, got.Error, "at least 2 assets")
}

func TestSmartEditPlatformOptimize(t *testing.T) {
	h := newHarness(t)
	h.store.projects["p1"] = Project{
		ID: "p1",
		Timeline: &timeline.Timeline{Tracks: []timeline.Track{{
			Kind:  timeline.TrackVideo,
			Clips: []timeline.Clip{videoClip("a", 0, 100000), videoClip("a", 100000, 200000)},
		}}},
	}
	job := h.seedJob(t, KindSmartEdit, map[string]any{"operation": OpPlatformOptimize, "project_id": "p1"})

	got, err := h.run(t, job)
	require.NoError(t, err)
	assert.Equal(t, int64(200000), got.Result["current_duration_ms"])
	adj := got.Result["adjustments"].(planner.Optimization)
	assert.Equal(t, "tiktok", adj.Platform)
	assert.True(t, adj.NeedsResize)
	require.NotNil(t, adj.TrimToMs)
	assert.Equal(t, int64(180000), *adj.TrimToMs)
}

func TestSmartEditBeatSync(t *testing.T) {
	h := newHarness(t)
	h.seedAsset(t, Asset{ID: "v1", Type: AssetVideo, DurationMs: 3000})
	h.analyzer.features = &audio.Features{BeatTimes: []float64{0.5, 1, 1.5, 2, 2.5}}
	h.analyzer.info = &ffmpeg.MediaInfo{Duration: 3 * time.Second}

	job := h.seedJob(t, KindSmartEdit, map[string]any{"operation": OpBeatSync, "asset_id": "v1"})
	got, err := h.run(t, job)
	require.NoError(t, err)

	cl := got.Result["clips"].([]*clips.Clip)
	assert.Equal(t, 5, got.Result["beat_count"])
	assert.Equal(t, len(cl), got.Result["clip_count"])
	require.NotEmpty(t, cl)
	assert.Equal(t, int64(3000), cl[len(cl)-1].EndMs)
}

func TestSmartEditBeatSyncWithoutAudio(t *testing.T) {
	h := newHarness(t)
	h.seedAsset(t, Asset{ID: "v1", Type: AssetVideo, DurationMs: 3000})
	job := h.seedJob(t, KindSmartEdit, map[string]any{"operation": OpBeatSync, "asset_id": "v1"})

	got, err := h.run(t, job)
	assert.Equal(t, ClassUnrecoverable, Classify(err))
	assert.Equal(t, StatusFailed, got.Status)
}

func TestSmartEditHighlightDetect(t *testing.T) {
	h := newHarness(t)
	h.seedAsset(t, Asset{ID: "v1", Type: AssetVideo})
	h.analyzer.info = &ffmpeg.MediaInfo{Duration: 60 * time.Second}
	h.analyzer.highlights = []planner.Highlight{
		{StartMs: 10000, EndMs: 15000, DurationMs: 5000, Score: 0.9, Reasons: []string{planner.ReasonHighEnergy}},
		{StartMs: 30000, EndMs: 34000, DurationMs: 4000, Score: 0.7},
	}

	job := h.seedJob(t, KindSmartEdit, map[string]any{"operation": OpHighlightDetect, "asset_id": "v1", "max_highlights": 2})
	got, err := h.run(t, job)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Result["highlight_count"])
	cl := got.Result["clips"].([]*clips.Clip)
	require.Len(t, cl, 2)
	assert.Equal(t, int64(60000), cl[0].SourceDurationMs)

	job = h.seedJob(t, KindSmartEdit, map[string]any{"operation": "reverse"})
	_, err = h.run(t, job)
	assert.Equal(t, ClassValidation, Classify(err))
}

func TestAnalyzeVideo(t *testing.T) {
	h := newHarness(t)
	h.seedAsset(t, Asset{ID: "v1", Type: AssetVideo})
	h.analyzer.report = &pipeline.Report{
		SceneCount: 4,
		Audio:      &audio.Summary{Tempo: 120},
		Hook:       planner.Hook{Score: 55, HasHook: true},
		Rhythm:     planner.Rhythm{Pace: planner.PaceFast},
	}
	job := h.seedJob(t, KindAnalyzeVideo, map[string]string{"asset_id": "v1"})

	got, err := h.run(t, job)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.Result["analysis_id"])
	assert.Equal(t, 4, got.Result["scene_count"])
	assert.Equal(t, 120.0, got.Result["bpm"])
	assert.Equal(t, 55, got.Result["hook_score"])
	assert.Equal(t, planner.PaceFast, got.Result["pace"])
	assert.Same(t, h.analyzer.report, got.Result["analysis"])

	scenes := h.pub.withDetail("Detecting scenes")
	require.Len(t, scenes, 1)
	assert.InDelta(t, 9, scenes[0].Progress, 1e-9)
}

func TestAssetMetadata(t *testing.T) {
	h := newHarness(t)
	h.media.info = ffmpeg.MediaInfo{
		FormatName: "mov,mp4",
		Duration:   4 * time.Second,
		HasVideo:   true,
		HasAudio:   true,
		Width:      1280,
		Height:     720,
		VideoCodec: "h264",
		Streams:    []ffmpeg.StreamInfo{{Type: "video", Codec: "h264", Width: 1280, Height: 720}, {Type: "audio", Codec: "aac", Channels: 2}},
	}
	h.seedAsset(t, Asset{ID: "a1", Type: AssetVideo})
	job := h.seedJob(t, KindAssetMetadata, map[string]string{"asset_id": "a1"})

	got, err := h.run(t, job)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status, got.Error)

	asset, err := h.store.GetAsset(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(4000), asset.DurationMs)
	assert.Equal(t, 1280, asset.Width)
	assert.Equal(t, "/thumbnails/assets/a1/thumbnail.jpg", asset.ThumbnailURL)
	assert.Equal(t, "/thumbnails/assets/a1/waveform.png", asset.WaveformURL)
	assert.Equal(t, "mov,mp4", asset.Metadata["format"])

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(h.blobs.objects[asset.ThumbnailURL]))
	require.NoError(t, err)
	assert.Equal(t, thumbnailWidth, cfg.Width)
	assert.Equal(t, 360, cfg.Height)
}

func TestAssetMetadataSurvivesPreviewFailure(t *testing.T) {
	h := newHarness(t)
	h.media.info = ffmpeg.MediaInfo{Duration: 10 * time.Second, HasAudio: true}
	h.media.failWaveform = true
	h.seedAsset(t, Asset{ID: "m1", Type: AssetAudio})
	job := h.seedJob(t, KindAssetMetadata, map[string]string{"asset_id": "m1"})

	got, err := h.run(t, job)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	asset, err := h.store.GetAsset(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), asset.DurationMs)
	assert.Empty(t, asset.WaveformURL)
	assert.Empty(t, asset.ThumbnailURL)
}

func TestAssetMetadataUnknownAsset(t *testing.T) {
	h := newHarness(t)
	job := h.seedJob(t, KindAssetMetadata, map[string]string{"asset_id": "ghost"})
	_, err := h.run(t, job)
	assert.Equal(t, ClassValidation, Classify(err))
}
