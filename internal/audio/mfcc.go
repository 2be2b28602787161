package audio

import "math"

// DefaultMFCC is the number of cepstral coefficients kept per frame.
const DefaultMFCC = 20

// MFCC applies an orthonormal DCT-II to each log-mel frame and keeps the
// first n coefficients.
func MFCC(melDB [][]float64, n int) [][]float64 {
	if len(melDB) == 0 {
		return nil
	}
	bands := len(melDB[0])
	if n > bands {
		n = bands
	}

	basis := make([][]float64, n)
	for k := 0; k < n; k++ {
		scale := math.Sqrt(2 / float64(bands))
		if k == 0 {
			scale = math.Sqrt(1 / float64(bands))
		}
		row := make([]float64, bands)
		for i := range row {
			row[i] = scale * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(bands)))
		}
		basis[k] = row
	}

	out := make([][]float64, len(melDB))
	for t, frame := range melDB {
		coeffs := make([]float64, n)
		for k, row := range basis {
			var sum float64
			for i, w := range row {
				sum += w * frame[i]
			}
			coeffs[k] = sum
		}
		out[t] = coeffs
	}
	return out
}

// MeanMFCC averages coefficients over frames [start, end).
func MeanMFCC(mfcc [][]float64, start, end int) []float64 {
	if start < 0 {
		start = 0
	}
	if end > len(mfcc) {
		end = len(mfcc)
	}
	if start >= end {
		return nil
	}
	mean := make([]float64, len(mfcc[start]))
	for t := start; t < end; t++ {
		for k, v := range mfcc[t] {
			mean[k] += v
		}
	}
	for k := range mean {
		mean[k] /= float64(end - start)
	}
	return mean
}
