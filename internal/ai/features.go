package ai

import (
	"time"

	"github.com/keagan/cutforge/internal/ffmpeg"
)

// ClipFeatures represents extracted features for scoring
type ClipFeatures struct {
	Duration         time.Duration `json:"duration"`
	SceneChangeCount int           `json:"scene_changes"`
	SilenceRatio     float64       `json:"silence_ratio"`
	MeanVolume       float64       `json:"mean_volume"`
	PeakVolume       float64       `json:"peak_volume"`
	AudioDynamics    float64       `json:"audio_dynamics"` // peak - mean volume
}

// segmentFeatures measures one candidate window against the whole-file
// detections.
func segmentFeatures(seg candidateSegment, scenes []time.Duration, silences []ffmpeg.SilenceSegment, volume *ffmpeg.VolumeStats) ClipFeatures {
	sceneCount := 0
	for _, scene := range scenes {
		if scene >= seg.Start && scene <= seg.End {
			sceneCount++
		}
	}

	// silence partially inside the window counts for its overlap
	var silent time.Duration
	for _, s := range silences {
		start := max(seg.Start, time.Duration(s.Start*float64(time.Second)))
		end := min(seg.End, time.Duration(s.End*float64(time.Second)))
		if end > start {
			silent += end - start
		}
	}

	length := seg.End - seg.Start
	f := ClipFeatures{
		Duration:         length,
		SceneChangeCount: sceneCount,
	}
	if length > 0 {
		f.SilenceRatio = float64(silent) / float64(length)
	}
	if volume != nil {
		f.MeanVolume = volume.MeanVolume
		f.PeakVolume = volume.MaxVolume
		f.AudioDynamics = volume.MaxVolume - volume.MeanVolume
	}
	return f
}
