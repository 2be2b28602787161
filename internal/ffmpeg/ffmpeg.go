package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Executor handles all ffmpeg operations with progress streaming
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
}

// New creates a new ffmpeg executor
func New(logger zerolog.Logger, threads int) (*Executor, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     threads,
	}, nil
}

// Run executes ffmpeg with the given arguments and streams progress.
// A non-zero exit is reported as *ExitError carrying the stderr tail.
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("no arguments provided")
	}

	// Threads go before everything else
	baseArgs := []string{"-hide_banner", "-loglevel", "info"}
	if !slices.Contains(opts.Args, "-y") {
		baseArgs = append([]string{"-y"}, baseArgs...)
	}

	if e.threads > 0 {
		baseArgs = append(baseArgs, "-threads", fmt.Sprintf("%d", e.threads))
	}

	baseArgs = append(baseArgs, "-progress", "pipe:2")
	args := append(baseArgs, opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	tail := newTailBuffer(stderrTail)

	var wg sync.WaitGroup
	wg.Add(2)

	// Stream stderr (progress + logs)
	go func() {
		defer wg.Done()
		e.streamProgress(stderr, tail, opts)
	}()

	// Stream stdout
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if opts.LogHandler != nil {
				opts.LogHandler(scanner.Text())
			}
		}
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return exitError("ffmpeg", tail.String(), err)
	}

	e.logger.Debug().Msg("ffmpeg execution completed")
	return nil
}

func (e *Executor) streamProgress(r io.Reader, tail *tailBuffer, opts RunOptions) {
	stream := NewProgressStream(r, func(line string) {
		tail.WriteLine(line)
		if opts.LogHandler != nil {
			opts.LogHandler(line)
		}
	})
	for {
		p, err := stream.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.logger.Warn().Err(err).Msg("progress stream interrupted")
				_, _ = io.Copy(io.Discard, r)
			}
			return
		}
		if opts.ProgressHandler != nil {
			opts.ProgressHandler(p)
		}
	}
}

func exitError(tool, stderr string, err error) error {
	code := -1
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code = ee.ExitCode()
	}
	return &ExitError{Tool: tool, Code: code, Stderr: stderr, Err: err}
}

// nullSinkTolerable reports whether err is one of the spurious failures ffmpeg
// emits when writing analysis passes to the null muxer.
func nullSinkTolerable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Conversion failed") ||
		strings.Contains(msg, "Invalid return value") ||
		strings.Contains(msg, "Output file is empty")
}
