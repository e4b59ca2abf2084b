// Package caption turns caption tracks into per-word render state. Each
// animation style is a Strategy looked up by name.
package caption

import (
	"math"
	"strings"

	"github.com/eleven-am/montage/internal/domain"
)

// Tokens returns the word timings of c. Explicit words win; otherwise the
// text is split on whitespace and each word gets an even span capped at the
// reading rate wps.
func Tokens(c domain.Caption, wps float64) []domain.WordToken {
	if len(c.Words) > 0 {
		return c.Words
	}
	words := strings.Fields(c.Text)
	if len(words) == 0 {
		return nil
	}
	if wps <= 0 {
		wps = domain.DefaultWordsPerSecond
	}

	start, dur := c.Start(), c.End()-c.Start()
	span := math.Min(dur/float64(len(words)), 1/wps)
	if span < 0 {
		span = 0
	}

	out := make([]domain.WordToken, len(words))
	for i, w := range words {
		s := start + float64(i)*span
		out[i] = domain.WordToken{Text: w, Start: s, End: s + span}
	}
	return out
}

// Active returns the first caption of track whose window contains t.
func Active(track domain.CaptionTrack, t float64) (domain.Caption, bool) {
	for _, c := range track.Captions {
		if c.Start() <= t && t < c.End() {
			return c, true
		}
	}
	return domain.Caption{}, false
}

// CurrentWord returns the index of the token being spoken at t, the last
// finished token when t falls in a pause, or -1 before the first word.
func CurrentWord(tokens []domain.WordToken, t float64) int {
	idx := -1
	for i, w := range tokens {
		if t < w.Start {
			break
		}
		idx = i
	}
	return idx
}
