package store

import (
	"encoding/json"
	"time"

	"github.com/keagan/cutforge/internal/jobs"
	"github.com/keagan/cutforge/internal/timeline"
)

// JobRecord is the processing_jobs row.
type JobRecord struct {
	ID           string          `gorm:"primaryKey;size:64"`
	OwnerID      string          `gorm:"index;size:64"`
	ProjectID    string          `gorm:"index;size:64"`
	Kind         string          `gorm:"index;size:32"`
	Status       string          `gorm:"index;size:16"`
	Progress     float64
	InputParams  json.RawMessage `gorm:"serializer:json;type:jsonb"`
	Result       map[string]any  `gorm:"serializer:json;type:jsonb"`
	ErrorMessage string          `gorm:"type:text"`
	TaskID       string          `gorm:"size:64"`
	Attempts     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (JobRecord) TableName() string { return "processing_jobs" }

// AssetRecord is the assets row.
type AssetRecord struct {
	ID               string `gorm:"primaryKey;size:64"`
	OwnerID          string `gorm:"index;size:64"`
	AssetType        string `gorm:"size:16"`
	Filename         string
	OriginalFilename string
	FilePath         string
	MimeType         string `gorm:"size:128"`
	FileSize         int64
	DurationMs       int64
	Width            int
	Height           int
	ThumbnailURL     string
	WaveformURL      string
	Metadata         map[string]any `gorm:"serializer:json;type:jsonb"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (AssetRecord) TableName() string { return "assets" }

// ProjectRecord is the projects row. The timeline document is stored whole.
type ProjectRecord struct {
	ID        string              `gorm:"primaryKey;size:64"`
	OwnerID   string              `gorm:"index;size:64"`
	Name      string
	Timeline  *timeline.Timeline  `gorm:"serializer:json;type:jsonb"`
	Subtitles timeline.Subtitles  `gorm:"serializer:json;type:jsonb"`
	Output    timeline.OutputSpec `gorm:"serializer:json;type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ProjectRecord) TableName() string { return "projects" }

func jobRecord(j *jobs.Job) *JobRecord {
	return &JobRecord{
		ID:           j.ID,
		OwnerID:      j.OwnerID,
		ProjectID:    j.ProjectID,
		Kind:         string(j.Kind),
		Status:       string(j.Status),
		Progress:     j.Progress,
		InputParams:  j.Params,
		Result:       j.Result,
		ErrorMessage: j.Error,
		TaskID:       j.TaskID,
		Attempts:     j.Attempts,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

func (r *JobRecord) job() *jobs.Job {
	return &jobs.Job{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		ProjectID: r.ProjectID,
		Kind:      jobs.Kind(r.Kind),
		Status:    jobs.Status(r.Status),
		Progress:  r.Progress,
		Params:    r.InputParams,
		Result:    r.Result,
		Error:     r.ErrorMessage,
		TaskID:    r.TaskID,
		Attempts:  r.Attempts,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func assetRecord(a *jobs.Asset) *AssetRecord {
	return &AssetRecord{
		ID:               a.ID,
		OwnerID:          a.OwnerID,
		AssetType:        string(a.Type),
		Filename:         a.Filename,
		OriginalFilename: a.OriginalFilename,
		FilePath:         a.Ref,
		MimeType:         a.MimeType,
		FileSize:         a.Size,
		DurationMs:       a.DurationMs,
		Width:            a.Width,
		Height:           a.Height,
		ThumbnailURL:     a.ThumbnailURL,
		WaveformURL:      a.WaveformURL,
		Metadata:         a.Metadata,
	}
}

func (r *AssetRecord) asset() *jobs.Asset {
	return &jobs.Asset{
		ID:               r.ID,
		OwnerID:          r.OwnerID,
		Type:             jobs.AssetType(r.AssetType),
		Filename:         r.Filename,
		OriginalFilename: r.OriginalFilename,
		Ref:              r.FilePath,
		MimeType:         r.MimeType,
		Size:             r.FileSize,
		DurationMs:       r.DurationMs,
		Width:            r.Width,
		Height:           r.Height,
		ThumbnailURL:     r.ThumbnailURL,
		WaveformURL:      r.WaveformURL,
		Metadata:         r.Metadata,
	}
}

func projectRecord(p *jobs.Project) *ProjectRecord {
	return &ProjectRecord{
		ID:        p.ID,
		OwnerID:   p.OwnerID,
		Name:      p.Name,
		Timeline:  p.Timeline,
		Subtitles: p.Subtitles,
		Output:    p.Output,
	}
}

func (r *ProjectRecord) project() *jobs.Project {
	return &jobs.Project{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Name:      r.Name,
		Timeline:  r.Timeline,
		Subtitles: r.Subtitles,
		Output:    r.Output,
	}
}
