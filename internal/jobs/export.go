package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/keagan/cutforge/internal/ffmpeg"
	"github.com/keagan/cutforge/internal/timeline"
)

const posterWidth = 640

type exportParams struct {
	ProjectID string               `json:"project_id"`
	Output    *timeline.OutputSpec `json:"output"`
}

// exportHandler renders a project timeline and publishes the file.
type exportHandler struct {
	deps Deps
}

func (h *exportHandler) Handle(ctx context.Context, t *Task) (*Outcome, error) {
	var p exportParams
	if err := t.Job.DecodeParams(&p); err != nil {
		return nil, err
	}
	proj, err := loadProject(ctx, h.deps.Store, firstNonEmpty(p.ProjectID, t.Job.ProjectID))
	if err != nil {
		return nil, err
	}
	if proj.Timeline == nil || proj.Timeline.IsEmpty() {
		return nil, Validation("project %s has no timeline data", proj.ID)
	}

	t.Progress.Report(ctx, 1, "Downloading sources...")
	tl, err := h.localize(ctx, t, proj.Timeline)
	if err != nil {
		return nil, err
	}

	out := proj.Output
	if p.Output != nil {
		out = *p.Output
	}
	output := t.Workspace.Path("output.mp4")
	cmd, err := timeline.Compile(tl, out, proj.Subtitles, timeline.Options{
		Output:  output,
		TempDir: t.Workspace.Dir(),
		Style:   subtitleStyle(h.deps),
	})
	if err != nil {
		return nil, err
	}
	defer cmd.Cleanup()
	if cmd.Empty() {
		return nil, Validation("project %s renders no video or audio", proj.ID)
	}

	t.Logger.Info().
		Int("inputs", len(cmd.Inputs)).
		Dur("expected", cmd.ExpectedDuration).
		Msg("rendering timeline")
	t.Progress.Report(ctx, 5, "Rendering...")
	err = h.deps.Media.Run(ctx, ffmpeg.RunOptions{
		Args:            cmd.Args(),
		ProgressHandler: t.Progress.FFmpeg(ctx, 5, 95, cmd.ExpectedDuration, "Rendering..."),
		LogHandler: func(line string) {
			t.Logger.Debug().Str("ffmpeg", line).Msg("export")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("export failed: %w", err)
	}

	result := map[string]any{
		"duration_ms": cmd.ExpectedDuration.Milliseconds(),
	}
	if ref, err := h.poster(ctx, t, output, cmd.ExpectedDuration); err != nil {
		t.Logger.Warn().Err(err).Msg("failed to create poster frame")
	} else {
		result["poster_path"] = ref
	}

	return &Outcome{
		Result: result,
		Artifact: &Artifact{
			Path:        output,
			Bucket:      h.deps.Config.Storage.ExportBucket,
			Key:         fmt.Sprintf("exports/%s/%s/output.mp4", t.Job.OwnerID, t.Job.ID),
			ContentType: "video/mp4",
		},
	}, nil
}

// localize returns a copy of tl whose clip sources are local files. Clips
// naming an asset are fetched through the asset record; other sources are
// treated as storage refs. Video sources without audio are flagged so the
// compiler generates silence for them.
func (h *exportHandler) localize(ctx context.Context, t *Task, tl *timeline.Timeline) (*timeline.Timeline, error) {
	fetched := make(map[string]string)
	hasAudio := make(map[string]bool)

	fetch := func(c timeline.Clip) (string, error) {
		key := c.AssetID
		if key == "" {
			key = c.Source
		}
		if local, ok := fetched[key]; ok {
			return local, nil
		}
		var local string
		var err error
		if c.AssetID != "" {
			var a *Asset
			if a, err = loadAsset(ctx, h.deps.Store, c.AssetID); err != nil {
				return "", err
			}
			local, err = fetchAsset(ctx, t, a)
		} else if c.Source != "" {
			name := fmt.Sprintf("source-%d%s", len(fetched), strings.ToLower(filepath.Ext(c.Source)))
			local, err = t.Fetch(ctx, c.Source, name)
		} else {
			err = Validation("clip %s has neither asset nor source", c.ID)
		}
		if err != nil {
			return "", err
		}
		fetched[key] = local
		return local, nil
	}

	out := &timeline.Timeline{Tracks: make([]timeline.Track, len(tl.Tracks))}
	for ti, track := range tl.Tracks {
		nt := track
		nt.Clips = make([]timeline.Clip, len(track.Clips))
		for ci, c := range track.Clips {
			local, err := fetch(c)
			if err != nil {
				return nil, err
			}
			c.Source = local
			if track.Kind == timeline.TrackVideo {
				audio, ok := hasAudio[local]
				if !ok {
					info, err := h.deps.Media.Probe(ctx, local)
					if err != nil {
						return nil, err
					}
					audio = info.HasAudio
					hasAudio[local] = audio
				}
				c.NoAudio = !audio
			}
			nt.Clips[ci] = c
		}
		out.Tracks[ti] = nt
	}
	return out, nil
}

// poster grabs a frame of the rendered file, scales it down and stores it
// next to the export.
func (h *exportHandler) poster(ctx context.Context, t *Task, video string, duration time.Duration) (string, error) {
	frame := t.Workspace.Path("poster_full.jpg")
	if err := h.deps.Media.GenerateThumbnail(ctx, video, frame, duration); err != nil {
		return "", err
	}
	small := t.Workspace.Path("poster.jpg")
	if err := shrinkJPEG(frame, small, posterWidth); err != nil {
		return "", err
	}
	key := fmt.Sprintf("exports/%s/%s/poster.jpg", t.Job.OwnerID, t.Job.ID)
	return t.Upload(ctx, h.deps.Config.Storage.ThumbnailBucket, key, small, "image/jpeg")
}

func loadProject(ctx context.Context, store Store, id string) (*Project, error) {
	if id == "" {
		return nil, Validation("project id is required")
	}
	p, err := store.GetProject(ctx, id)
	if errors.Is(err, ErrProjectNotFound) {
		return nil, Validation("project %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project %s: %w", id, err)
	}
	return p, nil
}

func subtitleStyle(d Deps) timeline.SubtitleStyle {
	if d.Config == nil {
		return timeline.DefaultSubtitleStyle()
	}
	return timeline.StyleFromConfig(d.Config.Subtitles)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
