package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/keagan/cutforge/pkg/util"
)

// Scene is one shot between two detected cuts, in seconds.
type Scene struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
}

// DetectScenes finds scene changes in video using ffmpeg scene detection
func (e *Executor) DetectScenes(ctx context.Context, input string, threshold float64) ([]time.Duration, error) {
	e.logger.Info().
		Str("input", input).
		Float64("threshold", threshold).
		Msg("detecting scene changes")

	output, err := e.runAnalysisPass(ctx, []string{
		"-i", input,
		"-vf", fmt.Sprintf("select='gt(scene,%f)',showinfo", threshold),
		"-f", "null",
		"-",
	}, "scene detection")
	if err != nil {
		return nil, err
	}

	scenes := parseSceneOutput(output)
	e.logger.Info().Int("scenes", len(scenes)).Msg("scene detection complete")
	return scenes, nil
}

// parseSceneOutput extracts scene change timestamps from ffmpeg output
func parseSceneOutput(output string) []time.Duration {
	var scenes []time.Duration

	for _, line := range strings.Split(output, "\n") {
		_, after, ok := strings.Cut(line, "pts_time:")
		if !ok {
			continue
		}
		fields := strings.Fields(after)
		if len(fields) == 0 {
			continue
		}
		if seconds, err := strconv.ParseFloat(fields[0], 64); err == nil {
			scenes = append(scenes, util.Seconds(seconds))
		}
	}

	return scenes
}

// ScenesFromCuts turns cut timestamps into contiguous shots covering [0, total].
func ScenesFromCuts(cuts []time.Duration, total time.Duration) []Scene {
	if total <= 0 {
		return nil
	}
	var scenes []Scene
	prev := 0.0
	end := total.Seconds()
	for _, c := range cuts {
		t := c.Seconds()
		if t <= prev || t >= end {
			continue
		}
		scenes = append(scenes, Scene{Start: prev, End: t, Duration: t - prev})
		prev = t
	}
	scenes = append(scenes, Scene{Start: prev, End: end, Duration: end - prev})
	return scenes
}

// ExtractFrame writes the single frame at timestamp as a JPEG.
func (e *Executor) ExtractFrame(ctx context.Context, input string, timestamp time.Duration, output string) error {
	if input == "" {
		return fmt.Errorf("input path is required")
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}

	e.logger.Debug().
		Str("input", input).
		Str("output", output).
		Dur("timestamp", timestamp).
		Msg("extracting frame")

	args := []string{
		"-ss", util.FormatDuration(timestamp),
		"-i", input,
		"-frames:v", "1",
		"-q:v", "2", // high quality JPEG
		output,
	}

	opts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("frame extraction")
		},
	}

	if err := e.Run(ctx, opts); err != nil {
		return fmt.Errorf("frame extraction failed: %w", err)
	}
	return nil
}

// GenerateThumbnail picks a representative frame: one second in, or the
// midpoint for clips shorter than two seconds.
func (e *Executor) GenerateThumbnail(ctx context.Context, input, output string, duration time.Duration) error {
	at := time.Second
	if half := duration / 2; half < at {
		at = half
	}
	if at < 0 {
		at = 0
	}
	e.logger.Info().
		Str("input", input).
		Str("output", output).
		Dur("timestamp", at).
		Msg("generating thumbnail")
	return e.ExtractFrame(ctx, input, at, output)
}

// GenerateWaveform renders the audio track as a PNG waveform strip.
func (e *Executor) GenerateWaveform(ctx context.Context, input, output string, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid waveform size %dx%d", width, height)
	}

	e.logger.Info().
		Str("input", input).
		Str("output", output).
		Msg("generating waveform")

	args := []string{
		"-i", input,
		"-filter_complex", fmt.Sprintf("showwavespic=s=%dx%d:colors=#3b82f6", width, height),
		"-frames:v", "1",
		output,
	}

	opts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("waveform generation")
		},
	}

	if err := e.Run(ctx, opts); err != nil {
		return fmt.Errorf("waveform generation failed: %w", err)
	}
	return nil
}
