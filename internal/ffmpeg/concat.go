package ffmpeg

import (
	"context"
	"fmt"
	"strings"
)

// ConcatOptions defines concatenation parameters
type ConcatOptions struct {
	Segments     []string
	Output       string
	ProgressFunc ProgressFunc
}

// ConcatSegments joins MPEG-TS segments with the concat protocol and remuxes
// the result into Output without re-encoding.
func (e *Executor) ConcatSegments(ctx context.Context, opts ConcatOptions) error {
	if len(opts.Segments) == 0 {
		return fmt.Errorf("no input segments provided")
	}
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}

	e.logger.Info().
		Int("segments", len(opts.Segments)).
		Str("output", opts.Output).
		Msg("concatenating segments")

	args := []string{
		"-i", ConcatProtocolInput(opts.Segments),
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		opts.Output,
	}

	runOpts := RunOptions{
		Args:            args,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("concatenating")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("concat failed: %w", err)
	}
	return nil
}

// ConcatProtocolInput builds the "concat:a|b|c" input URL.
func ConcatProtocolInput(segments []string) string {
	return "concat:" + strings.Join(segments, "|")
}
