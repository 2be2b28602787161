package ffmpeg

import (
	"errors"
	"fmt"
	"time"
)

// ErrProbeFailed marks any ffprobe failure: non-zero exit or unreadable output.
var ErrProbeFailed = errors.New("probe failed")

// MediaInfo contains metadata about a media file
type MediaInfo struct {
	FilePath   string
	FormatName string
	Duration   time.Duration
	Bitrate    int64
	Streams    []StreamInfo

	// Convenience fields taken from the first video/audio streams.
	Width      int
	Height     int
	FPS        float64
	VideoCodec string
	HasVideo   bool
	HasAudio   bool
	AudioCodec string
}

// StreamInfo is one stream of a probed container.
type StreamInfo struct {
	Index      int    `json:"index"`
	Type       string `json:"codec_type"`
	Codec      string `json:"codec_name"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// DurationSeconds is the container duration as fractional seconds.
func (m *MediaInfo) DurationSeconds() float64 {
	return m.Duration.Seconds()
}

// Progress represents one ffmpeg progress report
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	OutTime time.Duration
	Speed   string
	Done    bool
}

// Percent converts the reported output time into a share of total.
func (p *Progress) Percent(total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(p.OutTime) / float64(total) * 100
	if pct < 0 {
		return 0
	}
	return pct
}

// ProgressFunc is a callback for progress updates during ffmpeg operations.
type ProgressFunc func(*Progress)

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler ProgressFunc
	LogHandler      func(line string)
}

// Default encoding settings
const (
	DefaultCRF          = 23
	DefaultPreset       = "medium"
	DefaultVideoCodec   = "libx264"
	DefaultAudioCodec   = "aac"
	DefaultAudioBitrate = "192k"

	// stderrTail bounds how much diagnostic output an ExitError keeps.
	stderrTail = 2000
)

// ExitError is returned when an external tool exits non-zero.
type ExitError struct {
	Tool   string
	Code   int
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d: %v", e.Tool, e.Code, e.Err)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.Code, e.Stderr)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
