package audio

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Frame geometry shared by every feature.
const (
	DefaultNFFT = 2048
	DefaultHop  = 512
	DefaultMels = 128
)

// FrameCount is the number of centred frames covering n samples.
func FrameCount(n, hop int) int {
	if n <= 0 || hop <= 0 {
		return 0
	}
	return 1 + n/hop
}

// hann returns a periodic Hann window.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// reflectIndex mirrors i into [0, n) without repeating the edge sample.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// padReflect extends x by pad samples on both sides, mirrored at the edges.
func padReflect(x []float64, pad int) []float64 {
	out := make([]float64, len(x)+2*pad)
	for i := range out {
		out[i] = x[reflectIndex(i-pad, len(x))]
	}
	return out
}

// STFTMagnitude returns |STFT| per frame, nFFT/2+1 bins each, using a Hann
// window over centred frames.
func STFTMagnitude(x []float64, nFFT, hop int) [][]float64 {
	frames := FrameCount(len(x), hop)
	if frames == 0 {
		return nil
	}

	padded := padReflect(x, nFFT/2)
	win := hann(nFFT)
	fft := fourier.NewFFT(nFFT)
	buf := make([]float64, nFFT)
	coeffs := make([]complex128, nFFT/2+1)

	out := make([][]float64, frames)
	for t := 0; t < frames; t++ {
		off := t * hop
		for i := range buf {
			buf[i] = padded[off+i] * win[i]
		}
		coeffs = fft.Coefficients(coeffs, buf)
		mag := make([]float64, len(coeffs))
		for k, c := range coeffs {
			mag[k] = cmplx.Abs(c)
		}
		out[t] = mag
	}
	return out
}

// RMS is the root-mean-square energy of each centred, zero-padded frame.
func RMS(x []float64, frameLength, hop int) []float64 {
	frames := FrameCount(len(x), hop)
	out := make([]float64, frames)
	half := frameLength / 2
	for t := range out {
		start := t*hop - half
		var sum float64
		for i := start; i < start+frameLength; i++ {
			if i >= 0 && i < len(x) {
				sum += x[i] * x[i]
			}
		}
		out[t] = math.Sqrt(sum / float64(frameLength))
	}
	return out
}

// SpectralCentroid is the magnitude-weighted mean frequency of each frame, in Hz.
func SpectralCentroid(mag [][]float64, sampleRate, nFFT int) []float64 {
	out := make([]float64, len(mag))
	binHz := float64(sampleRate) / float64(nFFT)
	for t, frame := range mag {
		var num, den float64
		for k, m := range frame {
			num += float64(k) * binHz * m
			den += m
		}
		if den > 0 {
			out[t] = num / den
		}
	}
	return out
}

func hzToMel(f float64) float64 { return 2595 * math.Log10(1+f/700) }
func melToHz(m float64) float64 { return 700 * (math.Pow(10, m/2595) - 1) }

// MelFilterbank builds nMels area-normalized triangular filters spanning
// [fmin, fmax] over the nFFT/2+1 spectrum bins.
func MelFilterbank(sampleRate, nFFT, nMels int, fmin, fmax float64) [][]float64 {
	bins := nFFT/2 + 1
	lo, hi := hzToMel(fmin), hzToMel(fmax)
	edges := make([]float64, nMels+2)
	for i := range edges {
		edges[i] = melToHz(lo + (hi-lo)*float64(i)/float64(nMels+1))
	}

	binHz := float64(sampleRate) / float64(nFFT)
	fb := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		left, centre, right := edges[m], edges[m+1], edges[m+2]
		enorm := 2 / (right - left)
		row := make([]float64, bins)
		for k := range row {
			f := float64(k) * binHz
			w := math.Min((f-left)/(centre-left), (right-f)/(right-centre))
			if w > 0 {
				row[k] = w * enorm
			}
		}
		fb[m] = row
	}
	return fb
}

// MelSpectrogram projects the power spectrum (|STFT|²) onto the filterbank.
func MelSpectrogram(mag [][]float64, fb [][]float64) [][]float64 {
	out := make([][]float64, len(mag))
	for t, frame := range mag {
		row := make([]float64, len(fb))
		for m, filter := range fb {
			var sum float64
			for k, w := range filter {
				if w != 0 {
					sum += w * frame[k] * frame[k]
				}
			}
			row[m] = sum
		}
		out[t] = row
	}
	return out
}

// PowerToDB converts power to decibels relative to the global peak, floored
// topDB below it.
func PowerToDB(power [][]float64, topDB float64) [][]float64 {
	const amin = 1e-10
	peak := amin
	for _, row := range power {
		for _, v := range row {
			peak = math.Max(peak, v)
		}
	}
	ref := 10 * math.Log10(peak)
	floor := -topDB

	out := make([][]float64, len(power))
	for t, row := range power {
		db := make([]float64, len(row))
		for i, v := range row {
			db[i] = math.Max(10*math.Log10(math.Max(amin, v))-ref, floor)
		}
		out[t] = db
	}
	return out
}
