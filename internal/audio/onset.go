package audio

// Peak-picking windows in seconds, converted to frames per call.
const (
	peakPreMax  = 0.03
	peakPreAvg  = 0.10
	peakPostAvg = 0.10
	peakWait    = 0.03
	peakDelta   = 0.07
)

// OnsetPeaks picks onset events from an onset strength curve. The curve is
// normalized first; a frame is an onset when it is the local maximum of its
// neighbourhood, exceeds the local mean by a fixed delta and is far enough
// from the previous onset.
func OnsetPeaks(onset []float64, sampleRate, hop int) []int {
	if len(onset) == 0 || sampleRate <= 0 || hop <= 0 {
		return nil
	}
	fps := float64(sampleRate) / float64(hop)
	preMax := int(peakPreMax * fps)
	postMax := 1
	preAvg := int(peakPreAvg * fps)
	postAvg := int(peakPostAvg*fps) + 1
	wait := int(peakWait * fps)

	x := Normalize(onset)
	var peaks []int
	last := -wait - 1
	for i := range x {
		lo, hi := max(0, i-preMax), min(len(x), i+postMax)
		isMax := true
		for j := lo; j < hi; j++ {
			if x[j] > x[i] {
				isMax = false
				break
			}
		}
		if !isMax {
			continue
		}

		lo, hi = max(0, i-preAvg), min(len(x), i+postAvg)
		var sum float64
		for j := lo; j < hi; j++ {
			sum += x[j]
		}
		if x[i] < sum/float64(hi-lo)+peakDelta {
			continue
		}
		if i <= last+wait {
			continue
		}
		peaks = append(peaks, i)
		last = i
	}
	return peaks
}

// EnergyProfile splits the RMS curve into n equal segments and returns
// the mean of each. Short curves yield fewer segments.
func EnergyProfile(rms []float64, n int) []float64 {
	if n <= 0 || len(rms) == 0 {
		return nil
	}
	size := len(rms) / n
	if size == 0 {
		size = 1
	}
	var out []float64
	for start := 0; start < len(rms) && len(out) < n; start += size {
		end := min(start+size, len(rms))
		var sum float64
		for _, v := range rms[start:end] {
			sum += v
		}
		out = append(out, sum/float64(end-start))
	}
	return out
}
