package textfx

import (
	"math"

	"github.com/eleven-am/montage/internal/domain"
)

// State is the animated presentation of a text element at one instant.
type State struct {
	Opacity    float64
	TranslateX float64
	TranslateY float64
	Scale      float64
	Rotation   float64
	// Chars is the number of visible runes; -1 shows everything.
	Chars int
}

func rest() State {
	return State{Opacity: 1, Scale: 1, Chars: -1}
}

const slideDistance = 40.0

// Animate evaluates the in, out and loop animations of t at relative seconds
// into an element lasting duration. runes is the total character count used
// by reveal animations.
func Animate(t domain.Text, relative, duration float64, runes int) State {
	s := rest()

	if a := t.AnimationIn; a != nil && a.Duration > 0 && relative < a.Duration {
		s = apply(s, a.Kind, clamp01(relative/a.Duration), runes)
	}
	if a := t.AnimationOut; a != nil && a.Duration > 0 && relative > duration-a.Duration {
		p := clamp01((duration - relative) / a.Duration)
		s = apply(s, a.Kind, p, runes)
	}
	if a := t.AnimationLoop; a != nil && a.Duration > 0 {
		phase := math.Mod(relative, a.Duration) / a.Duration
		s = loop(s, a.Kind, phase)
	}
	return s
}

// apply evaluates an entrance style at visibility p. Out animations play the
// same curve backwards.
func apply(s State, kind string, p float64, runes int) State {
	switch kind {
	case "fade":
		s.Opacity *= p
	case "slide-up":
		s.TranslateY += (1 - p) * slideDistance
		s.Opacity *= p
	case "slide-down":
		s.TranslateY -= (1 - p) * slideDistance
		s.Opacity *= p
	case "slide-left":
		s.TranslateX += (1 - p) * slideDistance
		s.Opacity *= p
	case "slide-right":
		s.TranslateX -= (1 - p) * slideDistance
		s.Opacity *= p
	case "zoom":
		s.Scale *= p
	case "pop":
		s.Scale *= easeOutBack(p)
		s.Opacity *= math.Min(1, p*2)
	case "typewriter":
		n := int(math.Floor(p * float64(runes)))
		if s.Chars < 0 || n < s.Chars {
			s.Chars = n
		}
	default:
		s.Opacity *= p
	}
	return s
}

func loop(s State, kind string, phase float64) State {
	wave := math.Sin(2 * math.Pi * phase)
	switch kind {
	case "pulse":
		s.Scale *= 1 + 0.05*wave
	case "bounce":
		s.TranslateY -= math.Abs(wave) * 10
	case "shake":
		s.TranslateX += wave * 4
	case "sway":
		s.Rotation += wave * 5
	case "blink":
		if phase >= 0.5 {
			s.Opacity *= 0.3
		}
	}
	return s
}

func easeOutBack(p float64) float64 {
	const c1 = 1.70158
	const c3 = c1 + 1
	return 1 + c3*math.Pow(p-1, 3) + c1*math.Pow(p-1, 2)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
