// Package textfx lays out and animates text elements: line wrapping, in/out
// and loop animation envelopes, and background shape clipping rules.
package textfx

import (
	"strings"
	"unicode/utf8"
)

// Measurer reports the advance width of a string in pixels.
type Measurer interface {
	Measure(s string) float64
}

// FixedAdvance estimates widths from the font size when no font metrics are
// loaded.
type FixedAdvance struct {
	FontSize float64
}

func (f FixedAdvance) Measure(s string) float64 {
	size := f.FontSize
	if size <= 0 {
		size = 16
	}
	return float64(utf8.RuneCountInString(s)) * size * 0.6
}

// Wrap breaks text into lines no wider than width. Explicit newlines are
// kept; a single word wider than width gets a line of its own. A width of
// zero or less disables wrapping.
func Wrap(text string, width float64, m Measurer) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		if width <= 0 {
			lines = append(lines, strings.Join(words, " "))
			continue
		}

		line := words[0]
		for _, w := range words[1:] {
			candidate := line + " " + w
			if m.Measure(candidate) <= width {
				line = candidate
				continue
			}
			lines = append(lines, line)
			line = w
		}
		lines = append(lines, line)
	}
	return lines
}

// Block is the laid out size of wrapped text including background padding.
type Block struct {
	Lines      []string
	Width      float64
	Height     float64
	LineHeight float64
}

func Layout(text string, width, fontSize, lineHeight, padding float64, m Measurer) Block {
	if fontSize <= 0 {
		fontSize = 16
	}
	if lineHeight <= 0 {
		lineHeight = 1.2
	}
	inner := width - 2*padding
	lines := Wrap(text, inner, m)

	var w float64
	for _, l := range lines {
		if lw := m.Measure(l); lw > w {
			w = lw
		}
	}
	lh := fontSize * lineHeight
	return Block{
		Lines:      lines,
		Width:      w + 2*padding,
		Height:     float64(len(lines))*lh + 2*padding,
		LineHeight: lh,
	}
}
