package jobs

import (
	"context"
	"fmt"

	"github.com/keagan/cutforge/internal/ffmpeg"
)

const (
	thumbnailWidth = 640
	waveformWidth  = 1920
	waveformHeight = 120
)

type metadataParams struct {
	AssetID string `json:"asset_id"`
}

// metadataHandler probes an uploaded asset and attaches a thumbnail and
// waveform. Preview failures only cost the preview.
type metadataHandler struct {
	deps Deps
}

func (h *metadataHandler) Handle(ctx context.Context, t *Task) (*Outcome, error) {
	var p metadataParams
	if err := t.Job.DecodeParams(&p); err != nil {
		return nil, err
	}
	asset, err := loadAsset(ctx, h.deps.Store, p.AssetID)
	if err != nil {
		return nil, err
	}

	t.Progress.Report(ctx, 10, "Downloading asset...")
	local, err := fetchAsset(ctx, t, asset)
	if err != nil {
		return nil, err
	}

	t.Progress.Report(ctx, 30, "Probing...")
	info, err := h.deps.Media.Probe(ctx, local)
	if err != nil {
		return nil, err
	}
	asset.DurationMs = info.Duration.Milliseconds()
	if info.HasVideo {
		asset.Width, asset.Height = info.Width, info.Height
	}
	asset.Metadata = probeMetadata(info)

	bucket := h.deps.Config.Storage.ThumbnailBucket
	if info.HasVideo || asset.Type == AssetImage {
		t.Progress.Report(ctx, 50, "Generating thumbnail...")
		if ref, err := h.thumbnail(ctx, t, local, bucket, asset.ID, info); err != nil {
			t.Logger.Warn().Err(err).Msg("thumbnail generation failed")
		} else {
			asset.ThumbnailURL = ref
		}
	}
	if info.HasAudio {
		t.Progress.Report(ctx, 75, "Generating waveform...")
		if ref, err := h.waveform(ctx, t, local, bucket, asset.ID); err != nil {
			t.Logger.Warn().Err(err).Msg("waveform generation failed")
		} else {
			asset.WaveformURL = ref
		}
	}

	t.Progress.Report(ctx, 90, "Saving metadata...")
	if err := h.deps.Store.SaveAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to save asset %s: %w", asset.ID, err)
	}

	return &Outcome{Result: map[string]any{
		"asset_id":      asset.ID,
		"duration_ms":   asset.DurationMs,
		"width":         asset.Width,
		"height":        asset.Height,
		"thumbnail_url": asset.ThumbnailURL,
		"waveform_url":  asset.WaveformURL,
	}}, nil
}

func (h *metadataHandler) thumbnail(ctx context.Context, t *Task, local, bucket, id string, info *ffmpeg.MediaInfo) (string, error) {
	frame := t.Workspace.Path("frame.jpg")
	if err := h.deps.Media.GenerateThumbnail(ctx, local, frame, info.Duration); err != nil {
		return "", err
	}
	thumb := t.Workspace.Path("thumbnail.jpg")
	if err := shrinkJPEG(frame, thumb, thumbnailWidth); err != nil {
		return "", err
	}
	return t.Upload(ctx, bucket, fmt.Sprintf("assets/%s/thumbnail.jpg", id), thumb, "image/jpeg")
}

func (h *metadataHandler) waveform(ctx context.Context, t *Task, local, bucket, id string) (string, error) {
	out := t.Workspace.Path("waveform.png")
	if err := h.deps.Media.GenerateWaveform(ctx, local, out, waveformWidth, waveformHeight); err != nil {
		return "", err
	}
	return t.Upload(ctx, bucket, fmt.Sprintf("assets/%s/waveform.png", id), out, "image/png")
}

func probeMetadata(info *ffmpeg.MediaInfo) map[string]any {
	streams := make([]map[string]any, 0, len(info.Streams))
	for _, s := range info.Streams {
		streams = append(streams, map[string]any{
			"codec_type":  s.Type,
			"codec_name":  s.Codec,
			"width":       s.Width,
			"height":      s.Height,
			"sample_rate": s.SampleRate,
			"channels":    s.Channels,
		})
	}
	m := map[string]any{
		"format":   info.FormatName,
		"bit_rate": info.Bitrate,
		"streams":  streams,
	}
	if info.HasVideo {
		m["codec"] = info.VideoCodec
		m["fps"] = info.FPS
	}
	return m
}
