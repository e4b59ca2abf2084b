package transition

import (
	"math"

	"github.com/eleven-am/montage/internal/timeline"
)

// Window is the closed interval during which a transition renders.
type Window struct {
	Start float64
	End   float64
}

func (w Window) Len() float64 { return w.End - w.Start }

// Between computes the window for a transition of the given duration (in
// seconds) between two clips. Overlapping clips center the transition on the
// overlap midpoint; separated clips stretch it from half a duration before
// the first clip ends to half a duration after the second one starts.
func Between(from, to timeline.Interval, duration float64) Window {
	if duration < 0 {
		duration = 0
	}
	half := duration / 2

	overlapStart := math.Max(from.Start, to.Start)
	overlapEnd := math.Min(from.End, to.End)

	if overlapEnd >= overlapStart {
		mid := (overlapStart + overlapEnd) / 2
		return Window{Start: mid - half, End: mid + half}
	}

	first, second := from, to
	if second.Start < first.Start {
		first, second = second, first
	}
	return Window{Start: first.End - half, End: second.Start + half}
}

// Entrance is the window of an entrance envelope at the start of a clip.
func Entrance(clip timeline.Interval, duration float64) Window {
	return Window{Start: clip.Start, End: math.Min(clip.Start+math.Max(duration, 0), clip.End)}
}

// Exit is the window of an exit envelope at the end of a clip.
func Exit(clip timeline.Interval, duration float64) Window {
	return Window{Start: math.Max(clip.End-math.Max(duration, 0), clip.Start), End: clip.End}
}

// Progress returns the ratio of t through w. ok is false outside the window.
// A zero-length window is instantaneous and reports 1.
func (w Window) Progress(t float64) (float64, bool) {
	if t < w.Start || t > w.End {
		return 0, false
	}
	if w.Len() <= 0 {
		return 1, true
	}
	return clamp01((t - w.Start) / w.Len()), true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
