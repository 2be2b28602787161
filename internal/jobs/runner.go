package jobs

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/keagan/cutforge/internal/config"
	"github.com/keagan/cutforge/internal/logging"
	"github.com/keagan/cutforge/pkg/util"
)

// Store persists jobs and the records handlers read and write.
type Store interface {
	GetJob(ctx context.Context, id string) (*Job, error)
	SaveJob(ctx context.Context, job *Job) error
	GetProject(ctx context.Context, id string) (*Project, error)
	GetAsset(ctx context.Context, id string) (*Asset, error)
	SaveAsset(ctx context.Context, asset *Asset) error
}

// BlobStore moves files between the worker and object storage. Refs have
// the form "/bucket/key".
type BlobStore interface {
	Get(ctx context.Context, ref, localPath string) error
	Put(ctx context.Context, bucket, key, localPath, contentType string) (string, error)
	PresignedURL(ctx context.Context, ref string, ttl time.Duration) (string, error)
}

// Publisher broadcasts state changes.
type Publisher interface {
	Publish(ctx context.Context, channel string, u Update) error
}

// Enqueuer hands a persisted job to the broker.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *Job) error
}

// Handler performs the work for one job kind.
type Handler interface {
	Handle(ctx context.Context, t *Task) (*Outcome, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t *Task) (*Outcome, error)

func (f HandlerFunc) Handle(ctx context.Context, t *Task) (*Outcome, error) {
	return f(ctx, t)
}

// Task is what a handler gets for one attempt.
type Task struct {
	Job       *Job
	Workspace *util.Workspace
	Progress  *Reporter
	Logger    zerolog.Logger
	Attempt   int

	blobs BlobStore
}

// Fetch downloads ref into the workspace under name.
func (t *Task) Fetch(ctx context.Context, ref, name string) (string, error) {
	local := t.Workspace.Path(name)
	if err := t.blobs.Get(ctx, ref, local); err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", ref, err)
	}
	return local, nil
}

// Upload stores a side file and returns its ref.
func (t *Task) Upload(ctx context.Context, bucket, key, localPath, contentType string) (string, error) {
	return t.blobs.Put(ctx, bucket, key, localPath, contentType)
}

// Outcome is a handler's result. When Artifact is set the runner uploads
// it and adds download_url and object_path to Result.
type Outcome struct {
	Result   map[string]any
	Artifact *Artifact
}

// Artifact is a local file to publish as the job output.
type Artifact struct {
	Path        string
	Bucket      string
	Key         string
	ContentType string
	// After runs once the artifact is stored; its fields are merged into
	// the result.
	After func(ctx context.Context, ref, url string) (map[string]any, error)
}

// Policy controls retries and result publishing.
type Policy struct {
	MaxRetries int
	Backoff    time.Duration
	PresignTTL time.Duration
	ErrorLimit int
	TempDir    string
}

// PolicyFromConfig reads the job settings.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		MaxRetries: cfg.Jobs.MaxRetries,
		Backoff:    cfg.Jobs.RetryBackoff,
		PresignTTL: cfg.Jobs.PresignTTL,
		ErrorLimit: cfg.Jobs.ErrorLimit,
		TempDir:    cfg.TempDir,
	}
}

// Runner drives jobs through their lifecycle. It is the only writer of
// job state while a job runs.
type Runner struct {
	logger   zerolog.Logger
	store    Store
	blobs    BlobStore
	pub      Publisher
	policy   Policy
	handlers map[Kind]Handler
}

// NewRunner creates a runner with no handlers registered.
func NewRunner(logger zerolog.Logger, store Store, blobs BlobStore, pub Publisher, policy Policy) *Runner {
	if policy.ErrorLimit <= 0 {
		policy.ErrorLimit = 2000
	}
	if policy.PresignTTL <= 0 {
		policy.PresignTTL = 24 * time.Hour
	}
	return &Runner{
		logger:   logger.With().Str("component", "jobs").Logger(),
		store:    store,
		blobs:    blobs,
		pub:      pub,
		policy:   policy,
		handlers: make(map[Kind]Handler),
	}
}

// Register installs the handler for kind, replacing any previous one.
func (r *Runner) Register(kind Kind, h Handler) {
	r.handlers[kind] = h
}

// Execute runs the job to a terminal state. The returned error is the
// classified failure, or nil on success and for already finished jobs.
func (r *Runner) Execute(ctx context.Context, jobID string) error {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return &Error{Class: ClassValidation, Err: fmt.Errorf("job %s: %w", jobID, err)}
		}
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	logger := logging.ForJob(r.logger, job.ID, string(job.Kind))
	if job.Status.Terminal() {
		logger.Info().Str("status", string(job.Status)).Msg("job already finished, skipping")
		return nil
	}

	h, ok := r.handlers[job.Kind]
	if !ok {
		return r.fail(ctx, job, Validation("unknown job kind %q", job.Kind))
	}

	if err := job.Transition(StatusProcessing); err != nil {
		return err
	}
	job.Progress = 0
	if err := r.persist(ctx, job, "started"); err != nil {
		return err
	}

	rep := &Reporter{logger: logger, job: job, persist: r.persist}
	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			rep.reset(ctx, fmt.Sprintf("retrying (attempt %d)", attempt))
		}
		err := r.attempt(ctx, job, h, rep, attempt, logger)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		je := wrap(err)
		if !je.Class.Transient() {
			return backoff.Permanent(je)
		}
		if attempt <= r.policy.MaxRetries {
			logger.Warn().Err(je).Int("attempt", attempt).Dur("backoff", r.policy.Backoff).Msg("attempt failed, will retry")
			note := truncate(fmt.Sprintf("attempt %d failed: %v", attempt, je), r.policy.ErrorLimit)
			if perr := r.persist(ctx, job, note); perr != nil {
				logger.Error().Err(perr).Msg("failed to record retry")
			}
		}
		return je
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.policy.Backoff), uint64(max(0, r.policy.MaxRetries))),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		if ctx.Err() != nil {
			return r.interrupt(ctx, job, logger)
		}
		return r.fail(ctx, job, err)
	}
	logger.Info().Int("attempts", attempt).Msg("job completed")
	return nil
}

func (r *Runner) attempt(ctx context.Context, job *Job, h Handler, rep *Reporter, n int, logger zerolog.Logger) error {
	job.Attempts++
	ws, err := util.NewWorkspace(r.policy.TempDir, "job-"+job.ID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("failed to remove workspace")
		}
	}()

	task := &Task{
		Job:       job,
		Workspace: ws,
		Progress:  rep,
		Logger:    logger,
		Attempt:   n,
		blobs:     r.blobs,
	}
	out, err := h.Handle(ctx, task)
	if err != nil {
		return err
	}
	if out == nil {
		out = &Outcome{}
	}

	result := make(map[string]any, len(out.Result)+2)
	maps.Copy(result, out.Result)
	if a := out.Artifact; a != nil {
		rep.stage(ctx, 95, "Uploading result...")
		ref, err := r.blobs.Put(ctx, a.Bucket, a.Key, a.Path, a.ContentType)
		if err != nil {
			return fmt.Errorf("failed to upload result: %w", err)
		}
		url, err := r.blobs.PresignedURL(ctx, ref, r.policy.PresignTTL)
		if err != nil {
			return fmt.Errorf("failed to sign result url: %w", err)
		}
		result["download_url"] = url
		result["object_path"] = ref

		rep.stage(ctx, 98, "Finalizing...")
		if a.After != nil {
			extra, err := a.After(ctx, ref, url)
			if err != nil {
				return err
			}
			maps.Copy(result, extra)
		}
	}

	if err := job.Transition(StatusCompleted); err != nil {
		return err
	}
	job.Progress = 100
	job.Result = result
	job.Error = ""
	if err := r.persist(ctx, job, "completed"); err != nil {
		job.Status = StatusProcessing
		return err
	}
	return nil
}

// interrupt leaves a job cut short by shutdown in processing so its
// redelivery runs it again.
func (r *Runner) interrupt(ctx context.Context, job *Job, logger zerolog.Logger) error {
	job.Status = StatusProcessing
	if err := r.persist(context.WithoutCancel(ctx), job, "interrupted, waiting for redelivery"); err != nil {
		logger.Error().Err(err).Msg("failed to record interruption")
	}
	logger.Warn().Int("attempts", job.Attempts).Msg("job interrupted")
	return ctx.Err()
}

// fail records the terminal failure. It uses a context detached from
// cancellation so a shutdown still leaves the job marked failed.
func (r *Runner) fail(ctx context.Context, job *Job, err error) error {
	je := wrap(err)
	ctx = context.WithoutCancel(ctx)

	if terr := job.Transition(StatusFailed); terr != nil {
		return errors.Join(je, terr)
	}
	job.Error = truncate(je.Error(), r.policy.ErrorLimit)
	r.logger.Error().
		Err(je.Err).
		Str("job_id", job.ID).
		Str("class", string(je.Class)).
		Msg("job failed")
	if perr := r.persist(ctx, job, ""); perr != nil {
		return errors.Join(je, perr)
	}
	return je
}

// persist saves the job and broadcasts the change.
func (r *Runner) persist(ctx context.Context, job *Job, detail string) error {
	job.UpdatedAt = time.Now().UTC()
	if err := r.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	u := Update{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Detail:   detail,
		Error:    job.Error,
	}
	if r.pub != nil {
		if err := r.pub.Publish(ctx, job.Channel(), u); err != nil {
			r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to publish update")
		}
	}
	return nil
}
