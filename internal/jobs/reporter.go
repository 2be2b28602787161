package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/cutforge/internal/ffmpeg"
)

// handlerCeiling is the most a handler may report; the rest belongs to
// the upload and finalize stages.
const handlerCeiling = 95

// Reporter records monotonic progress for a running job.
type Reporter struct {
	mu      sync.Mutex
	logger  zerolog.Logger
	job     *Job
	persist func(ctx context.Context, job *Job, detail string) error
	last    float64
}

// Report sets progress to pct, clamped to [0, 95] and never below the
// last value reported.
func (r *Reporter) Report(ctx context.Context, pct float64, detail string) {
	r.set(ctx, min(pct, handlerCeiling), detail)
}

// Last is the most recently reported value.
func (r *Reporter) Last() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Span maps a fraction in [0, 1] of one step onto [from, to].
func (r *Reporter) Span(ctx context.Context, from, to float64, detail string) func(fraction float64) {
	return func(fraction float64) {
		fraction = max(0, min(1, fraction))
		r.Report(ctx, from+(to-from)*fraction, detail)
	}
}

// FFmpeg maps encoder progress against the expected output length onto
// [from, to]. Reports finer than one percent are dropped.
func (r *Reporter) FFmpeg(ctx context.Context, from, to float64, total time.Duration, detail string) ffmpeg.ProgressFunc {
	span := r.Span(ctx, from, to, detail)
	return func(p *ffmpeg.Progress) {
		fraction := p.Percent(total) / 100
		if p.Done {
			fraction = 1
		}
		if target := from + (to-from)*min(1, fraction); target-r.Last() < 1 && !p.Done {
			return
		}
		span(fraction)
	}
}

// stage reports runner-owned steps above the handler ceiling.
func (r *Reporter) stage(ctx context.Context, pct float64, detail string) {
	r.set(ctx, pct, detail)
}

// reset starts a new attempt from zero.
func (r *Reporter) reset(ctx context.Context, detail string) {
	r.mu.Lock()
	r.last = 0
	r.job.Progress = 0
	r.mu.Unlock()
	if err := r.persist(ctx, r.job, detail); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record progress")
	}
}

func (r *Reporter) set(ctx context.Context, pct float64, detail string) {
	r.mu.Lock()
	pct = max(pct, r.last, 0)
	r.last = pct
	r.job.Progress = pct
	r.mu.Unlock()

	r.logger.Debug().Float64("progress", pct).Str("detail", detail).Msg("progress")
	if err := r.persist(ctx, r.job, detail); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record progress")
	}
}
