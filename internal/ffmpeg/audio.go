package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// AudioFormat defines audio extraction format options
type AudioFormat struct {
	Codec      string
	SampleRate int
	Channels   int
	Bitrate    string
}

// AnalysisFormat is the decode target of the signal analyzer: 16-bit mono PCM.
func AnalysisFormat(sampleRate int) AudioFormat {
	return AudioFormat{
		Codec:      "pcm_s16le",
		SampleRate: sampleRate,
		Channels:   1,
	}
}

// ExtractAudio extracts audio stream to a separate file
func (e *Executor) ExtractAudio(ctx context.Context, input, output string, format AudioFormat, progressFunc ProgressFunc) error {
	e.logger.Info().
		Str("input", input).
		Str("output", output).
		Str("codec", format.Codec).
		Int("sample_rate", format.SampleRate).
		Msg("extracting audio")

	args := []string{
		"-i", input,
		"-vn", // no video
		"-acodec", format.Codec,
		"-ar", fmt.Sprintf("%d", format.SampleRate),
		"-ac", fmt.Sprintf("%d", format.Channels),
	}

	if format.Bitrate != "" {
		args = append(args, "-b:a", format.Bitrate)
	}

	args = append(args, output)

	opts := RunOptions{
		Args:            args,
		ProgressHandler: progressFunc,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("audio extraction")
		},
	}

	if err := e.Run(ctx, opts); err != nil {
		return fmt.Errorf("audio extraction failed: %w", err)
	}
	return nil
}

// SilenceSegment represents a period of silence in audio
type SilenceSegment struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
}

// DetectSilence finds silence segments in audio/video file
func (e *Executor) DetectSilence(ctx context.Context, input string, noiseThreshold float64, minDuration float64) ([]SilenceSegment, error) {
	e.logger.Info().
		Str("input", input).
		Float64("noise_threshold", noiseThreshold).
		Float64("min_duration", minDuration).
		Msg("detecting silence")

	output, err := e.runAnalysisPass(ctx, []string{
		"-i", input,
		"-af", fmt.Sprintf("silencedetect=noise=%.6fdB:d=%.6f", noiseThreshold, minDuration),
		"-f", "null",
		"-",
	}, "silence detection")
	if err != nil {
		return nil, err
	}

	segments := parseSilenceOutput(output)
	e.logger.Info().Int("segments", len(segments)).Msg("silence detection complete")
	return segments, nil
}

// runAnalysisPass runs a null-muxer pass and returns the buffered diagnostic text.
func (e *Executor) runAnalysisPass(ctx context.Context, args []string, what string) (string, error) {
	var stderrBuf bytes.Buffer
	var mu sync.Mutex

	opts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			mu.Lock()
			stderrBuf.WriteString(line + "\n")
			mu.Unlock()
		},
	}

	err := e.Run(ctx, opts)

	mu.Lock()
	output := stderrBuf.String()
	mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !nullSinkTolerable(err) {
			return "", fmt.Errorf("%s failed: %w", what, err)
		}
		e.logger.Debug().Err(err).Msg(what + ": ignoring null muxer error")
	}

	if output == "" {
		return "", fmt.Errorf("%s produced no output", what)
	}
	return output, nil
}

// parseSilenceOutput pairs silence_start markers with the following
// silence_end marker. An end without an open start is dropped.
func parseSilenceOutput(output string) []SilenceSegment {
	var segments []SilenceSegment
	var currentStart float64
	open := false

	for _, line := range strings.Split(output, "\n") {
		if _, after, ok := strings.Cut(line, "silence_start:"); ok {
			fields := strings.Fields(after)
			if len(fields) == 0 {
				continue
			}
			if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
				currentStart = v
				open = true
			}
			continue
		}

		_, after, ok := strings.Cut(line, "silence_end:")
		if !ok || !open {
			continue
		}
		fields := strings.Fields(after)
		if len(fields) == 0 {
			continue
		}
		end, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}

		duration := end - currentStart
		if _, durPart, ok := strings.Cut(line, "silence_duration:"); ok {
			if f := strings.Fields(durPart); len(f) > 0 {
				if v, err := strconv.ParseFloat(f[0], 64); err == nil {
					duration = v
				}
			}
		}

		segments = append(segments, SilenceSegment{
			Start:    currentStart,
			End:      end,
			Duration: duration,
		})
		open = false
	}

	return segments
}

// VolumeStats holds volume analysis results
type VolumeStats struct {
	MeanVolume float64 `json:"mean_volume_db"`
	MaxVolume  float64 `json:"max_volume_db"`
}

// AnalyzeVolume calculates volume statistics for audio/video file
func (e *Executor) AnalyzeVolume(ctx context.Context, input string) (*VolumeStats, error) {
	e.logger.Info().Str("input", input).Msg("analyzing volume")

	output, err := e.runAnalysisPass(ctx, []string{
		"-i", input,
		"-af", "volumedetect",
		"-f", "null",
		"-",
	}, "volume analysis")
	if err != nil {
		return nil, err
	}

	return parseVolumeOutput(output), nil
}

// parseVolumeOutput extracts volume stats from ffmpeg output
func parseVolumeOutput(output string) *VolumeStats {
	stats := &VolumeStats{}

	for _, line := range strings.Split(output, "\n") {
		if _, after, ok := strings.Cut(line, "mean_volume:"); ok {
			if f := strings.Fields(after); len(f) > 0 {
				stats.MeanVolume, _ = strconv.ParseFloat(f[0], 64)
			}
		} else if _, after, ok := strings.Cut(line, "max_volume:"); ok {
			if f := strings.Fields(after); len(f) > 0 {
				stats.MaxVolume, _ = strconv.ParseFloat(f[0], 64)
			}
		}
	}

	return stats
}
