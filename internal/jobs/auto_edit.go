package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/keagan/cutforge/internal/autoedit"
)

// Auto-edit operations
const (
	OpSilenceRemoval = "silence_removal"
	OpJumpCut        = "jump_cut"
)

type autoEditParams struct {
	SourcePath string   `json:"source_path"`
	AssetID    string   `json:"asset_id"`
	Operation  string   `json:"operation"`
	Margin     *float64 `json:"margin"`
}

// autoEditHandler removes silence from a source and registers the result
// as a new asset.
type autoEditHandler struct {
	deps Deps
}

func (h *autoEditHandler) Handle(ctx context.Context, t *Task) (*Outcome, error) {
	p := autoEditParams{Operation: OpSilenceRemoval}
	if err := t.Job.DecodeParams(&p); err != nil {
		return nil, err
	}
	if p.Operation != OpSilenceRemoval && p.Operation != OpJumpCut {
		return nil, Validation("unknown auto-edit operation %q", p.Operation)
	}

	t.Progress.Report(ctx, 5, "Downloading source...")
	input, err := h.source(ctx, t, p)
	if err != nil {
		return nil, err
	}

	silence, jump := autoedit.OptionsFromConfig(h.deps.Config.AutoEdit)
	opts, run := silence, h.deps.AutoEdit.RemoveSilence
	if p.Operation == OpJumpCut {
		opts, run = jump, h.deps.AutoEdit.JumpCut
	}
	if p.Margin != nil {
		opts.Margin = *p.Margin
	}
	opts.OnProgress = t.Progress.Span(ctx, 10, 90, "Cutting silence...")

	filename := fmt.Sprintf("auto_edit_%s.mp4", p.Operation)
	output := t.Workspace.Path(filename)
	t.Progress.Report(ctx, 10, "Detecting silence...")
	res, err := run(ctx, input, output, opts)
	if err != nil {
		return nil, err
	}
	t.Logger.Info().
		Str("method", string(res.Method)).
		Int("silences", len(res.Silences)).
		Msg("auto-edit finished")

	result := map[string]any{
		"operation": p.Operation,
		"method":    res.Method,
	}
	if res.Kept > 0 {
		result["kept_seconds"] = res.Kept
	}

	return &Outcome{
		Result: result,
		Artifact: &Artifact{
			Path:        output,
			Bucket:      h.deps.Config.Storage.SourceBucket,
			Key:         fmt.Sprintf("auto_edit/%s/%s/%s", t.Job.OwnerID, t.Job.ID, filename),
			ContentType: "video/mp4",
			After: func(ctx context.Context, ref, _ string) (map[string]any, error) {
				return h.register(ctx, t, output, filename, ref, p.Operation)
			},
		},
	}, nil
}

func (h *autoEditHandler) source(ctx context.Context, t *Task, p autoEditParams) (string, error) {
	if p.AssetID != "" {
		a, err := loadAsset(ctx, h.deps.Store, p.AssetID)
		if err != nil {
			return "", err
		}
		return fetchAsset(ctx, t, a)
	}
	if p.SourcePath == "" {
		return "", Validation("no source_path specified in input params")
	}
	return t.Fetch(ctx, p.SourcePath, "source.mp4")
}

// outputNamespace scopes ids derived from job ids.
var outputNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("cutforge/jobs"))

// outputAssetID is stable per job so a retried attempt finds the asset its
// earlier attempt registered.
func outputAssetID(jobID string) string {
	return uuid.NewSHA1(outputNamespace, []byte("asset:"+jobID)).String()
}

// register records the uploaded output as an asset and queues metadata
// extraction for it. Queueing failures are logged; the asset stands.
func (h *autoEditHandler) register(ctx context.Context, t *Task, local, filename, ref, op string) (map[string]any, error) {
	id := outputAssetID(t.Job.ID)
	result := map[string]any{"asset_id": id}
	switch _, err := h.deps.Store.GetAsset(ctx, id); {
	case err == nil:
		t.Logger.Info().Str("asset_id", id).Msg("output asset already registered")
		return result, nil
	case !errors.Is(err, ErrAssetNotFound):
		return nil, fmt.Errorf("failed to look up asset %s: %w", id, err)
	}

	var size int64
	if fi, err := os.Stat(local); err == nil {
		size = fi.Size()
	}
	asset := &Asset{
		ID:               id,
		OwnerID:          t.Job.OwnerID,
		Type:             AssetVideo,
		Filename:         filename,
		OriginalFilename: fmt.Sprintf("Auto-edited (%s)", op),
		Ref:              ref,
		MimeType:         "video/mp4",
		Size:             size,
	}
	if err := h.deps.Store.SaveAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to save asset: %w", err)
	}

	if err := enqueueMetadata(ctx, h.deps, t.Job.OwnerID, asset.ID); err != nil {
		t.Logger.Warn().Err(err).Str("asset_id", asset.ID).Msg("failed to queue metadata extraction")
	}
	return result, nil
}

// enqueueMetadata creates and queues an asset_metadata job.
func enqueueMetadata(ctx context.Context, d Deps, ownerID, assetID string) error {
	if d.Enqueuer == nil {
		return fmt.Errorf("no queue configured")
	}
	params, err := json.Marshal(map[string]string{"asset_id": assetID})
	if err != nil {
		return err
	}
	return Submit(ctx, d.Store, d.Enqueuer, NewJob(KindAssetMetadata, ownerID, "", params))
}
