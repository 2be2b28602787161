package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/keagan/cutforge/internal/audio"
	"github.com/keagan/cutforge/internal/autoedit"
	"github.com/keagan/cutforge/internal/config"
	"github.com/keagan/cutforge/internal/ffmpeg"
	"github.com/keagan/cutforge/internal/pipeline"
	"github.com/keagan/cutforge/internal/planner"
)

type memStore struct {
	mu       sync.Mutex
	jobs     map[string]Job
	assets   map[string]Asset
	projects map[string]Project

	// failCompleted rejects that many saves of a completed job.
	failCompleted int
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     make(map[string]Job),
		assets:   make(map[string]Asset),
		projects: make(map[string]Project),
	}
}

func (s *memStore) GetJob(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return &j, nil
}

func (s *memStore) SaveJob(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.Status == StatusCompleted && s.failCompleted > 0 {
		s.failCompleted--
		return fmt.Errorf("connection reset by peer")
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *memStore) GetProject(_ context.Context, id string) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return &p, nil
}

func (s *memStore) GetAsset(_ context.Context, id string) (*Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, ErrAssetNotFound
	}
	return &a, nil
}

func (s *memStore) SaveAsset(_ context.Context, a *Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[a.ID] = *a
	return nil
}

func (s *memStore) jobsOfKind(k Kind) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Job
	for _, j := range s.jobs {
		if j.Kind == k {
			out = append(out, j)
		}
	}
	return out
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string][]byte)}
}

func (b *memBlobs) Get(_ context.Context, ref, localPath string) error {
	b.mu.Lock()
	data, ok := b.objects[ref]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("object %s does not exist", ref)
	}
	return os.WriteFile(localPath, data, 0o644)
}

func (b *memBlobs) Put(_ context.Context, bucket, key, localPath, _ string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	ref := "/" + bucket + "/" + key
	b.mu.Lock()
	b.objects[ref] = data
	b.mu.Unlock()
	return ref, nil
}

func (b *memBlobs) PresignedURL(_ context.Context, ref string, ttl time.Duration) (string, error) {
	return "https://blobs.test" + ref + "?ttl=" + ttl.String(), nil
}

func (b *memBlobs) has(ref string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[ref]
	return ok
}

type recPublisher struct {
	mu       sync.Mutex
	channels []string
	updates  []Update
}

func (p *recPublisher) Publish(_ context.Context, channel string, u Update) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.updates = append(p.updates, u)
	return nil
}

func (p *recPublisher) all() []Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Update(nil), p.updates...)
}

func (p *recPublisher) withDetail(prefix string) []Update {
	var out []Update
	for _, u := range p.all() {
		if strings.HasPrefix(u.Detail, prefix) {
			out = append(out, u)
		}
	}
	return out
}

type recQueue struct {
	jobs []*Job
	err  error
}

func (q *recQueue) Enqueue(_ context.Context, job *Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

// fakeMedia stands in for the ffmpeg executor.
type fakeMedia struct {
	info         ffmpeg.MediaInfo
	probed       []string
	runs         [][]string
	failWaveform bool
}

func (m *fakeMedia) Probe(_ context.Context, path string) (*ffmpeg.MediaInfo, error) {
	m.probed = append(m.probed, path)
	info := m.info
	info.FilePath = path
	return &info, nil
}

func (m *fakeMedia) Run(_ context.Context, opts ffmpeg.RunOptions) error {
	m.runs = append(m.runs, opts.Args)
	out := opts.Args[len(opts.Args)-1]
	if opts.ProgressHandler != nil {
		opts.ProgressHandler(&ffmpeg.Progress{OutTime: time.Second})
		opts.ProgressHandler(&ffmpeg.Progress{Done: true})
	}
	return os.WriteFile(out, []byte("rendered"), 0o644)
}

func (m *fakeMedia) GenerateThumbnail(_ context.Context, _, output string, _ time.Duration) error {
	return writePNG(output, 1280, 720)
}

func (m *fakeMedia) GenerateWaveform(_ context.Context, _, output string, width, height int) error {
	if m.failWaveform {
		return &ffmpeg.ExitError{Tool: "ffmpeg", Code: 1, Stderr: "showwavespic failed"}
	}
	return writePNG(output, width, height)
}

func writePNG(path string, w, h int) error {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

type fakeRemover struct {
	op   string
	opts autoedit.Options
}

func (r *fakeRemover) RemoveSilence(_ context.Context, _, output string, opts autoedit.Options) (*autoedit.Result, error) {
	r.op, r.opts = OpSilenceRemoval, opts
	return r.write(output)
}

func (r *fakeRemover) JumpCut(_ context.Context, _, output string, opts autoedit.Options) (*autoedit.Result, error) {
	r.op, r.opts = OpJumpCut, opts
	return r.write(output)
}

func (r *fakeRemover) write(output string) (*autoedit.Result, error) {
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(0.5)
	}
	if err := os.WriteFile(output, []byte("trimmed"), 0o644); err != nil {
		return nil, err
	}
	return &autoedit.Result{Method: autoedit.MethodSilence, Kept: 12.5}, nil
}

type fakeAnalyzer struct {
	features   *audio.Features
	info       *ffmpeg.MediaInfo
	highlights []planner.Highlight
	report     *pipeline.Report
}

func (a *fakeAnalyzer) Analyze(_ context.Context, _, _ string, opts pipeline.AnalyzeOptions) (*pipeline.Report, error) {
	for _, s := range []struct {
		name string
		pct  float64
	}{{"probe", 0}, {"scenes", 0.1}, {"audio", 0.4}, {"hooks", 0.6}, {"done", 1}} {
		opts.OnStage(s.name, s.pct)
	}
	return a.report, nil
}

func (a *fakeAnalyzer) Features(context.Context, string, string) (*audio.Features, *ffmpeg.MediaInfo, error) {
	if a.features == nil {
		return nil, nil, audio.ErrNoAudio
	}
	return a.features, a.info, nil
}

func (a *fakeAnalyzer) Highlights(context.Context, string, string, planner.HighlightOptions) ([]planner.Highlight, *ffmpeg.MediaInfo, error) {
	return a.highlights, a.info, nil
}

// harness wires a runner to in-memory collaborators.
type harness struct {
	runner   *Runner
	store    *memStore
	blobs    *memBlobs
	pub      *recPublisher
	queue    *recQueue
	media    *fakeMedia
	remove   *fakeRemover
	analyzer *fakeAnalyzer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    newMemStore(),
		blobs:    newMemBlobs(),
		pub:      &recPublisher{},
		queue:    &recQueue{},
		media:    &fakeMedia{info: ffmpeg.MediaInfo{Duration: 2 * time.Second, HasVideo: true, Width: 1280, Height: 720}},
		remove:   &fakeRemover{},
		analyzer: &fakeAnalyzer{},
	}
	policy := Policy{
		MaxRetries: 2,
		Backoff:    time.Millisecond,
		PresignTTL: time.Hour,
		ErrorLimit: 2000,
		TempDir:    t.TempDir(),
	}
	h.runner = NewRunner(zerolog.Nop(), h.store, h.blobs, h.pub, policy)
	RegisterAll(h.runner, Deps{
		Logger:   zerolog.Nop(),
		Config:   config.Default(),
		Store:    h.store,
		Enqueuer: h.queue,
		Media:    h.media,
		AutoEdit: h.remove,
		Analysis: h.analyzer,
	})
	return h
}

func (h *harness) seedJob(t *testing.T, kind Kind, params any) *Job {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	job := &Job{
		ID:        fmt.Sprintf("job-%d", len(h.store.jobs)+1),
		OwnerID:   "u1",
		Kind:      kind,
		Status:    StatusPending,
		Params:    raw,
		CreatedAt: time.Now(),
	}
	require.NoError(t, h.store.SaveJob(context.Background(), job))
	return job
}

func (h *harness) seedAsset(t *testing.T, a Asset) {
	t.Helper()
	if a.Ref == "" {
		a.Ref = "/media/u1/" + a.ID + ".mp4"
	}
	h.blobs.objects[a.Ref] = []byte("source " + a.ID)
	require.NoError(t, h.store.SaveAsset(context.Background(), &a))
}

func (h *harness) run(t *testing.T, job *Job) (*Job, error) {
	t.Helper()
	err := h.runner.Execute(context.Background(), job.ID)
	got, gerr := h.store.GetJob(context.Background(), job.ID)
	require.NoError(t, gerr)
	return got, err
}
