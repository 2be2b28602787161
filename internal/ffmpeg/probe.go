package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/keagan/cutforge/pkg/util"
)

// Probe extracts container and stream metadata from a media file.
// Every failure wraps ErrProbeFailed; retrying is left to the caller.
func (e *Executor) Probe(ctx context.Context, filePath string) (*MediaInfo, error) {
	if filePath == "" {
		return nil, fmt.Errorf("%w: file path is required", ErrProbeFailed)
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		stderr := ""
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			stderr = string(ee.Stderr)
		}
		return nil, fmt.Errorf("%w: %w", ErrProbeFailed, exitError("ffprobe", stderr, err))
	}

	info, err := parseProbeOutput(filePath, output)
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("file", filePath).
		Dur("duration", info.Duration).
		Int("streams", len(info.Streams)).
		Msg("probe complete")

	return info, nil
}

func parseProbeOutput(filePath string, output []byte) (*MediaInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("%w: failed to parse ffprobe output: %w", ErrProbeFailed, err)
	}

	info := &MediaInfo{
		FilePath:   filePath,
		FormatName: probe.Format.FormatName,
	}

	if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(dur * float64(time.Second))
	}

	if br, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
		info.Bitrate = br
	}

	for _, stream := range probe.Streams {
		si := StreamInfo{
			Index:    stream.Index,
			Type:     stream.CodecType,
			Codec:    stream.CodecName,
			Width:    stream.Width,
			Height:   stream.Height,
			Channels: stream.Channels,
		}
		si.SampleRate, _ = strconv.Atoi(stream.SampleRate)
		info.Streams = append(info.Streams, si)

		switch stream.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.Width = stream.Width
			info.Height = stream.Height
			info.VideoCodec = stream.CodecName
			if stream.RFrameRate != "" {
				info.FPS = util.ParseFrameRate(stream.RFrameRate)
			}
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.AudioCodec = stream.CodecName
		}
	}

	return info, nil
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		Index      int    `json:"index"`
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}
