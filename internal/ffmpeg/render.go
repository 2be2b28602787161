package ffmpeg

import (
	"context"
	"fmt"
	"time"
)

// RenderOptions configures a full render from a prepared argument list.
type RenderOptions struct {
	Args []string
	// Expected is the output duration used to turn out_time into a percentage.
	Expected time.Duration
	// OnPercent receives 0-100 values as the encode advances.
	OnPercent func(pct float64)
}

// Render runs a compiled ffmpeg invocation and reports percentage progress.
func (e *Executor) Render(ctx context.Context, opts RenderOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("invalid render options: empty command")
	}

	e.logger.Info().
		Int("args", len(opts.Args)).
		Dur("expected", opts.Expected).
		Msg("starting render")

	runOpts := RunOptions{
		Args: opts.Args,
		ProgressHandler: func(p *Progress) {
			if opts.OnPercent == nil || opts.Expected <= 0 {
				return
			}
			opts.OnPercent(p.Percent(opts.Expected))
		},
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("render output")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	e.logger.Info().Msg("render completed")
	return nil
}
