package ffmpeg

import (
	"context"
	"fmt"

	"github.com/keagan/cutforge/pkg/util"
)

// SegmentOptions defines a lossless cut into an MPEG-TS segment
type SegmentOptions struct {
	Start  float64
	End    float64
	Output string
}

// ExtractSegment stream-copies [Start, End) of input into an MPEG-TS file so
// the pieces can later be joined with the concat protocol.
func (e *Executor) ExtractSegment(ctx context.Context, input string, opts SegmentOptions) error {
	if opts.End <= opts.Start {
		return fmt.Errorf("invalid segment: end %.3f must be after start %.3f", opts.End, opts.Start)
	}

	e.logger.Debug().
		Str("input", input).
		Str("output", opts.Output).
		Float64("start", opts.Start).
		Float64("end", opts.End).
		Msg("extracting segment")

	args := []string{
		"-i", input,
		"-ss", util.FormatSeconds(opts.Start),
		"-to", util.FormatSeconds(opts.End),
		"-c", "copy",
		"-bsf:v", "h264_mp4toannexb",
		"-f", "mpegts",
		opts.Output,
	}

	runOpts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("segment extraction")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("segment extraction failed: %w", err)
	}
	return nil
}

// CopyStreams remuxes input into output without re-encoding.
func (e *Executor) CopyStreams(ctx context.Context, input, output string) error {
	e.logger.Info().
		Str("input", input).
		Str("output", output).
		Msg("copying streams")

	runOpts := RunOptions{
		Args: []string{"-i", input, "-c", "copy", output},
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("stream copy")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("stream copy failed: %w", err)
	}
	return nil
}
