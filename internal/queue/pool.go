package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/keagan/cutforge/internal/jobs"
)

// Source hands out deliveries for a queue class.
type Source interface {
	Consume(ctx context.Context, q jobs.Queue) (<-chan Delivery, error)
}

// Executor runs one job to completion.
type Executor interface {
	Execute(ctx context.Context, jobID string) error
}

// Pool runs a fixed number of consumers per queue.
type Pool struct {
	logger zerolog.Logger
	source Source
	exec   Executor
	heavy  int
	light  int
}

// NewPool creates a pool with heavy and light consumer counts.
func NewPool(logger zerolog.Logger, source Source, exec Executor, heavy, light int) *Pool {
	return &Pool{
		logger: logger.With().Str("component", "pool").Logger(),
		source: source,
		exec:   exec,
		heavy:  max(1, heavy),
		light:  max(1, light),
	}
}

// Run consumes until ctx is cancelled or a consumer loses its source.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	start := func(q jobs.Queue, n int) {
		for i := 0; i < n; i++ {
			i := i
			g.Go(func() error { return p.consume(ctx, q, i) })
		}
	}
	start(jobs.QueueHeavy, p.heavy)
	start(jobs.QueueLight, p.light)

	p.logger.Info().Int("heavy", p.heavy).Int("light", p.light).Msg("workers started")
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Pool) consume(ctx context.Context, q jobs.Queue, worker int) error {
	deliveries, err := p.source.Consume(ctx, q)
	if err != nil {
		return err
	}
	logger := p.logger.With().Str("queue", string(q)).Int("worker", worker).Logger()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("%s queue closed", q)
			}
			p.handle(ctx, logger, d)
		}
	}
}

// handle runs one delivery. Malformed messages are dropped. A job cut
// short by shutdown goes back on the queue; anything else is acked, since
// the runner has already recorded the outcome.
func (p *Pool) handle(ctx context.Context, logger zerolog.Logger, d Delivery) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil || msg.JobID == "" {
		logger.Error().Err(err).Bytes("body", d.Body).Msg("dropping malformed message")
		if nerr := d.Nack(false); nerr != nil {
			logger.Warn().Err(nerr).Msg("failed to reject message")
		}
		return
	}

	logger = logger.With().Str("job_id", msg.JobID).Logger()
	logger.Info().Str("kind", string(msg.Kind)).Msg("job received")
	err := p.exec.Execute(ctx, msg.JobID)
	if ctx.Err() != nil {
		logger.Warn().Msg("shutting down mid-job, requeueing")
		if nerr := d.Nack(true); nerr != nil {
			logger.Warn().Err(nerr).Msg("failed to requeue message")
		}
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("class", string(jobs.Classify(err))).Msg("job failed")
	}
	if aerr := d.Ack(); aerr != nil {
		logger.Warn().Err(aerr).Msg("failed to ack message")
	}
}
