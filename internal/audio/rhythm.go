package audio

import (
	"math"
	"sort"
)

// Tempo search range and prior.
const (
	minBPM       = 30.0
	maxBPM       = 300.0
	startBPM     = 120.0
	defaultTight = 100.0
)

// OnsetStrength is the mean positive first difference of the log-mel
// spectrogram across bands. The first frame is zero.
func OnsetStrength(melDB [][]float64) []float64 {
	out := make([]float64, len(melDB))
	for t := 1; t < len(melDB); t++ {
		cur, prev := melDB[t], melDB[t-1]
		if len(cur) == 0 {
			continue
		}
		var sum float64
		for b := range cur {
			if d := cur[b] - prev[b]; d > 0 {
				sum += d
			}
		}
		out[t] = sum / float64(len(cur))
	}
	return out
}

// EstimateTempo picks the onset autocorrelation peak between 30 and 300 BPM,
// weighted by a log-normal prior centred on 120 BPM. It returns 0 when the
// envelope carries no periodic energy.
func EstimateTempo(onset []float64, sampleRate, hop int) float64 {
	if len(onset) < 2 || sampleRate <= 0 || hop <= 0 {
		return 0
	}
	fps := float64(sampleRate) / float64(hop)
	minLag := int(math.Max(1, math.Floor(60*fps/maxBPM)))
	maxLag := int(math.Ceil(60 * fps / minBPM))
	if maxLag >= len(onset) {
		maxLag = len(onset) - 1
	}

	bestLag, bestScore := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var ac float64
		for i := 0; i+lag < len(onset); i++ {
			ac += onset[i] * onset[i+lag]
		}
		bpm := 60 * fps / float64(lag)
		prior := math.Exp(-0.5 * math.Pow(math.Log2(bpm/startBPM), 2))
		if score := ac * prior; score > bestScore {
			bestLag, bestScore = lag, score
		}
	}
	if bestLag == 0 {
		return 0
	}
	return 60 * fps / float64(bestLag)
}

// TrackBeats places beats on the onset envelope by dynamic programming:
// each beat maximizes local onset strength plus the best-scoring predecessor
// roughly one period earlier, with deviations penalized by tightness.
// The result is ascending frame indices.
func TrackBeats(onset []float64, tempo float64, sampleRate, hop int, tightness float64) []int {
	if tempo <= 0 || len(onset) == 0 {
		return nil
	}
	if tightness <= 0 {
		tightness = defaultTight
	}
	period := 60 * float64(sampleRate) / float64(hop) / tempo
	if period < 1 {
		return nil
	}

	sd := stddev(onset)
	if sd == 0 {
		return nil
	}
	local := localScore(onset, sd, period)

	maxLocal := 0.0
	for _, v := range local {
		maxLocal = math.Max(maxLocal, v)
	}

	from := -int(math.Round(2 * period))
	to := -int(math.Round(period / 2))
	if to > -1 {
		to = -1
	}

	cum := make([]float64, len(local))
	back := make([]int, len(local))
	firstBeat := true
	for i, score := range local {
		best, bestIdx := 0.0, -1
		for off := from; off <= to; off++ {
			j := i + off
			if j < 0 {
				continue
			}
			penalty := math.Log(-float64(off) / period)
			candidate := cum[j] - tightness*penalty*penalty
			if bestIdx < 0 || candidate > best {
				best, bestIdx = candidate, j
			}
		}

		cum[i] = score
		if bestIdx >= 0 {
			cum[i] += best
		}
		if firstBeat && score < 0.01*maxLocal {
			back[i] = -1
		} else {
			back[i] = bestIdx
			firstBeat = false
		}
	}

	last := lastBeat(cum)
	if last < 0 {
		return nil
	}
	var beats []int
	for i := last; i >= 0; i = back[i] {
		beats = append(beats, i)
	}
	for l, r := 0, len(beats)-1; l < r; l, r = l+1, r-1 {
		beats[l], beats[r] = beats[r], beats[l]
	}
	return trimWeakBeats(beats, local)
}

// localScore smooths the normalized envelope with a Gaussian one period wide.
func localScore(onset []float64, sd, period float64) []float64 {
	half := int(math.Round(period))
	window := make([]float64, 2*half+1)
	for j := -half; j <= half; j++ {
		x := float64(j) * 32 / period
		window[j+half] = math.Exp(-0.5 * x * x)
	}

	out := make([]float64, len(onset))
	for i := range onset {
		var sum float64
		for j := -half; j <= half; j++ {
			k := i - j
			if k >= 0 && k < len(onset) {
				sum += onset[k] / sd * window[j+half]
			}
		}
		out[i] = sum
	}
	return out
}

// lastBeat is the latest local maximum of the cumulative score that reaches
// half the median of all local maxima.
func lastBeat(cum []float64) int {
	var peaks []int
	for i := range cum {
		left := i == 0 || cum[i] > cum[i-1]
		right := i == len(cum)-1 || cum[i] >= cum[i+1]
		if left && right {
			peaks = append(peaks, i)
		}
	}
	if len(peaks) == 0 {
		return -1
	}

	values := make([]float64, len(peaks))
	for i, p := range peaks {
		values[i] = cum[p]
	}
	threshold := 0.5 * median(values)
	for i := len(peaks) - 1; i >= 0; i-- {
		if cum[peaks[i]] >= threshold {
			return peaks[i]
		}
	}
	return peaks[len(peaks)-1]
}

// trimWeakBeats drops leading and trailing beats whose local score is below
// half the RMS of the local score at all beats.
func trimWeakBeats(beats []int, local []float64) []int {
	if len(beats) == 0 {
		return beats
	}
	var sq float64
	for _, b := range beats {
		sq += local[b] * local[b]
	}
	threshold := 0.5 * math.Sqrt(sq/float64(len(beats)))

	start, end := 0, len(beats)
	for start < end && local[beats[start]] <= threshold {
		start++
	}
	for end > start && local[beats[end-1]] <= threshold {
		end--
	}
	return beats[start:end]
}

func stddev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	var ss float64
	for _, v := range x {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(x)-1))
}

func median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}
