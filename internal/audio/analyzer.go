package audio

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/keagan/cutforge/internal/ffmpeg"
)

// Features are per-frame curves plus rhythm estimates for one source.
type Features struct {
	SampleRate int     `json:"sample_rate"`
	Hop        int     `json:"hop_length"`
	Duration   float64 `json:"duration"`

	RMS      []float64   `json:"-"`
	Onset    []float64   `json:"-"`
	Centroid []float64   `json:"-"`
	MFCC     [][]float64 `json:"-"`

	Tempo float64 `json:"tempo"`
	// Onsets are frame indices of picked onset events.
	Onsets []int `json:"-"`
	// Beats are frame indices; BeatTimes are the same in seconds.
	Beats     []int     `json:"-"`
	BeatTimes []float64 `json:"beat_times"`
}

// FramesToSeconds converts a frame index to seconds.
func FramesToSeconds(frame, hop, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(frame) * float64(hop) / float64(sampleRate)
}

// SecondsToFrames is the frame containing time t.
func SecondsToFrames(t float64, hop, sampleRate int) int {
	if hop <= 0 {
		return 0
	}
	return int(t * float64(sampleRate) / float64(hop))
}

// FrameTime returns the time of frame i.
func (f *Features) FrameTime(i int) float64 {
	return FramesToSeconds(i, f.Hop, f.SampleRate)
}

// Frames is the length of the shortest curve.
func (f *Features) Frames() int {
	return min(len(f.RMS), len(f.Onset), len(f.Centroid))
}

// Summary is a compact description of the audio track.
type Summary struct {
	Duration   float64 `json:"duration"`
	Tempo      float64 `json:"tempo"`
	BeatCount  int     `json:"beat_count"`
	AvgEnergy  float64 `json:"avg_energy"`
	PeakEnergy float64 `json:"peak_energy"`
	Brightness float64 `json:"avg_spectral_centroid"`
	// EnergyProfile is the mean RMS of ten equal segments.
	EnergyProfile []float64 `json:"energy_profile"`
}

// Summarize reduces the curves to averages.
func (f *Features) Summarize() Summary {
	s := Summary{
		Duration:  f.Duration,
		Tempo:     math.Round(f.Tempo*10) / 10,
		BeatCount: len(f.Beats),
	}
	if len(f.RMS) > 0 {
		var sum float64
		for _, v := range f.RMS {
			sum += v
			s.PeakEnergy = math.Max(s.PeakEnergy, v)
		}
		s.AvgEnergy = sum / float64(len(f.RMS))
		s.EnergyProfile = EnergyProfile(f.RMS, 10)
	}
	if len(f.Centroid) > 0 {
		var sum float64
		for _, v := range f.Centroid {
			sum += v
		}
		s.Brightness = sum / float64(len(f.Centroid))
	}
	return s
}

// Compute derives every feature from mono samples.
func Compute(samples []float64, sampleRate, hop int) (*Features, error) {
	if len(samples) == 0 || sampleRate <= 0 {
		return nil, ErrNoAudio
	}
	if hop <= 0 {
		hop = DefaultHop
	}

	mag := STFTMagnitude(samples, DefaultNFFT, hop)
	fb := MelFilterbank(sampleRate, DefaultNFFT, DefaultMels, 0, float64(sampleRate)/2)
	melDB := PowerToDB(MelSpectrogram(mag, fb), 80)
	onset := OnsetStrength(melDB)
	tempo := EstimateTempo(onset, sampleRate, hop)
	beats := TrackBeats(onset, tempo, sampleRate, hop, defaultTight)

	f := &Features{
		SampleRate: sampleRate,
		Hop:        hop,
		Duration:   float64(len(samples)) / float64(sampleRate),
		RMS:        RMS(samples, DefaultNFFT, hop),
		Onset:      onset,
		Centroid:   SpectralCentroid(mag, sampleRate, DefaultNFFT),
		MFCC:       MFCC(melDB, DefaultMFCC),
		Onsets:     OnsetPeaks(onset, sampleRate, hop),
		Tempo:      tempo,
		Beats:      beats,
	}
	f.BeatTimes = make([]float64, len(beats))
	for i, b := range beats {
		f.BeatTimes[i] = f.FrameTime(b)
	}
	return f, nil
}

// Extractor is the part of the ffmpeg executor needed to decode a source.
type Extractor interface {
	ExtractAudio(ctx context.Context, input, output string, format ffmpeg.AudioFormat, progressFunc ffmpeg.ProgressFunc) error
}

// Analyzer decodes a media file once and computes its features.
type Analyzer struct {
	logger     zerolog.Logger
	ffmpeg     Extractor
	sampleRate int
	hop        int
}

// NewAnalyzer creates an analyzer resampling to sampleRate.
func NewAnalyzer(logger zerolog.Logger, ex Extractor, sampleRate, hop int) *Analyzer {
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	if hop <= 0 {
		hop = DefaultHop
	}
	return &Analyzer{
		logger:     logger.With().Str("component", "audio").Logger(),
		ffmpeg:     ex,
		sampleRate: sampleRate,
		hop:        hop,
	}
}

// Analyze extracts mono PCM from input into workDir and computes features.
func (a *Analyzer) Analyze(ctx context.Context, input, workDir string) (*Features, error) {
	wavPath := filepath.Join(workDir, "analysis.wav")
	if err := a.ffmpeg.ExtractAudio(ctx, input, wavPath, ffmpeg.AnalysisFormat(a.sampleRate), nil); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrNoAudio, err)
	}

	samples, rate, err := DecodeWAVFile(wavPath)
	if err != nil {
		return nil, err
	}

	f, err := Compute(samples, rate, a.hop)
	if err != nil {
		return nil, err
	}

	a.logger.Info().
		Float64("duration", f.Duration).
		Float64("tempo", f.Tempo).
		Int("beats", len(f.Beats)).
		Int("frames", f.Frames()).
		Msg("audio analysis complete")
	return f, nil
}

// Normalize rescales curve into [0, 1]. A flat curve maps to zeros.
func Normalize(curve []float64) []float64 {
	out := make([]float64, len(curve))
	if len(curve) == 0 {
		return out
	}
	lo, hi := curve[0], curve[0]
	for _, v := range curve {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo < 1e-6 {
		return out
	}
	for i, v := range curve {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}
