// Package audio computes the signal features used for automatic editing:
// loudness, spectral brightness, onset strength, tempo, beats and MFCCs.
package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNoAudio is returned when a source has no decodable samples.
var ErrNoAudio = errors.New("no decodable audio")

// DecodeWAV reads a PCM WAV stream and returns mono samples in [-1, 1]
// along with the sample rate. Multi-channel audio is averaged.
func DecodeWAV(r io.ReadSeeker) ([]float64, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: invalid WAV file", ErrNoAudio)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrNoAudio, err)
	}

	samples := toMono(buf, int(dec.BitDepth))
	if len(samples) == 0 {
		return nil, 0, fmt.Errorf("%w: empty stream", ErrNoAudio)
	}
	return samples, int(dec.SampleRate), nil
}

// DecodeWAVFile opens path and decodes it with DecodeWAV.
func DecodeWAVFile(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open audio: %w", err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

func toMono(buf *goaudio.IntBuffer, bitDepth int) []float64 {
	if buf == nil || len(buf.Data) == 0 {
		return nil
	}
	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := math.Pow(2, float64(bitDepth-1))

	n := len(buf.Data) / channels
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		out[i] = sum / float64(channels) / scale
	}
	return out
}
