// Package jobs runs background work items: it owns the job state machine,
// progress reporting, retries and the handlers for each job kind.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keagan/cutforge/internal/timeline"
)

// Sentinel errors returned by stores.
var (
	ErrJobNotFound     = errors.New("job not found")
	ErrAssetNotFound   = errors.New("asset not found")
	ErrProjectNotFound = errors.New("project not found")
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// Kind names the work a job performs.
type Kind string

const (
	KindExport        Kind = "export"
	KindAutoEdit      Kind = "auto_edit"
	KindSmartEdit     Kind = "smart_edit"
	KindAnalyzeVideo  Kind = "analyze_video"
	KindAssetMetadata Kind = "asset_metadata"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindExport, KindAutoEdit, KindSmartEdit, KindAnalyzeVideo, KindAssetMetadata:
		return true
	}
	return false
}

// Queue is the broker queue class a kind is routed to.
type Queue string

const (
	QueueHeavy Queue = "heavy"
	QueueLight Queue = "light"
)

// QueueFor routes a kind. Only metadata extraction is light.
func QueueFor(k Kind) Queue {
	if k == KindAssetMetadata {
		return QueueLight
	}
	return QueueHeavy
}

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// isValidTransition enforces the job state machine edges. Staying in
// processing is allowed so a retried attempt can report again.
func isValidTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusProcessing || to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Job is one unit of background work.
type Job struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	ProjectID string          `json:"project_id,omitempty"`
	Kind      Kind            `json:"kind"`
	Status    Status          `json:"status"`
	Progress  float64         `json:"progress"`
	Params    json.RawMessage `json:"input_params,omitempty"`
	Result    map[string]any  `json:"result,omitempty"`
	Error     string          `json:"error_message,omitempty"`
	TaskID    string          `json:"task_id,omitempty"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewJob creates a pending job with a fresh id.
func NewJob(kind Kind, ownerID, projectID string, params json.RawMessage) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		ProjectID: projectID,
		Kind:      kind,
		Status:    StatusPending,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Submit persists a pending job and hands it to the broker. A job that
// cannot be queued is marked failed so it does not sit pending forever.
func Submit(ctx context.Context, store Store, q Enqueuer, job *Job) error {
	if err := store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	if err := q.Enqueue(ctx, job); err != nil {
		job.Status = StatusFailed
		job.Error = fmt.Sprintf("failed to enqueue: %v", err)
		job.UpdatedAt = time.Now().UTC()
		if serr := store.SaveJob(context.WithoutCancel(ctx), job); serr != nil {
			return errors.Join(err, serr)
		}
		return err
	}
	return nil
}

// Transition moves the job to status, rejecting edges the state machine
// does not allow.
func (j *Job) Transition(to Status) error {
	if !isValidTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	return nil
}

// DecodeParams unmarshals the input parameters into v. Malformed
// parameters are a validation error.
func (j *Job) DecodeParams(v any) error {
	if len(j.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(j.Params, v); err != nil {
		return Validation("invalid input params: %v", err)
	}
	return nil
}

// Channel is the pub/sub channel progress for the job is published on.
func (j *Job) Channel() string {
	return ProgressChannel(j.ID)
}

// ProgressChannel names the channel for job id.
func ProgressChannel(id string) string {
	return fmt.Sprintf("job:%s:progress", id)
}

// Update is one broadcast state change.
type Update struct {
	JobID    string  `json:"job_id"`
	Status   Status  `json:"status"`
	Progress float64 `json:"progress"`
	Detail   string  `json:"detail,omitempty"`
	Error    string  `json:"error_message,omitempty"`
}

// AssetType of an uploaded media asset
type AssetType string

const (
	AssetVideo AssetType = "video"
	AssetAudio AssetType = "audio"
	AssetImage AssetType = "image"
)

// Asset is an uploaded media file and what has been learned about it.
type Asset struct {
	ID               string         `json:"id"`
	OwnerID          string         `json:"owner_id"`
	Type             AssetType      `json:"asset_type"`
	Filename         string         `json:"filename"`
	OriginalFilename string         `json:"original_filename"`
	Ref              string         `json:"file_path"`
	MimeType         string         `json:"mime_type"`
	Size             int64          `json:"file_size"`
	DurationMs       int64          `json:"duration_ms"`
	Width            int            `json:"width,omitempty"`
	Height           int            `json:"height,omitempty"`
	ThumbnailURL     string         `json:"thumbnail_url,omitempty"`
	WaveformURL      string         `json:"waveform_url,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Project is a saved timeline with its render settings.
type Project struct {
	ID        string              `json:"id"`
	OwnerID   string              `json:"owner_id"`
	Name      string              `json:"name"`
	Timeline  *timeline.Timeline  `json:"timeline"`
	Subtitles timeline.Subtitles  `json:"subtitles"`
	Output    timeline.OutputSpec `json:"output"`
}
