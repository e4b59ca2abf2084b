// Package sidecar writes the caption tracks of a project as WebVTT so an
// export can ship soft subtitles next to the burned-in ones.
package sidecar

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/eleven-am/montage/internal/caption"
	"github.com/eleven-am/montage/internal/domain"
)

type cue struct {
	start  float64
	end    float64
	tokens []domain.WordToken
	text   string
}

// HasCaptions reports whether p has at least one caption cue.
func HasCaptions(p domain.Project) bool {
	for _, e := range p.Elements {
		if e.Caption != nil && len(e.Caption.Captions) > 0 {
			return true
		}
	}
	return false
}

// Generate renders every caption cue of p, clipped to its element window,
// as WebVTT. Word timings are emitted as inline timestamps.
func Generate(p domain.Project) []byte {
	var cues []cue
	for _, e := range p.Elements {
		if e.Caption == nil {
			continue
		}
		for _, c := range e.Caption.Captions {
			start := math.Max(c.Start(), e.PositionStart)
			end := math.Min(c.End(), e.PositionEnd)
			if end <= start {
				continue
			}
			cues = append(cues, cue{
				start:  start,
				end:    end,
				tokens: caption.Tokens(c, e.Caption.Rate()),
				text:   c.Text,
			})
		}
	}
	sort.SliceStable(cues, func(i, j int) bool { return cues[i].start < cues[j].start })

	var buf bytes.Buffer
	buf.WriteString("WEBVTT\n\n")

	for i, c := range cues {
		buf.WriteString(fmt.Sprintf("%d\n", i+1))
		buf.WriteString(fmt.Sprintf("%s --> %s\n", formatVTTTime(c.start), formatVTTTime(c.end)))
		buf.WriteString(cueText(c))
		buf.WriteString("\n\n")
	}

	return buf.Bytes()
}

func cueText(c cue) string {
	if len(c.tokens) < 2 {
		return escape(strings.TrimSpace(c.text))
	}
	var b strings.Builder
	for i, t := range c.tokens {
		if i > 0 {
			b.WriteString(" ")
			if t.Start > c.start && t.Start < c.end {
				b.WriteString("<" + formatVTTTime(t.Start) + ">")
			}
		}
		b.WriteString(escape(t.Text))
	}
	return b.String()
}

var vttEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string { return vttEscaper.Replace(s) }

// Write stores the WebVTT for p at path.
func Write(path string, p domain.Project) error {
	if err := os.WriteFile(path, Generate(p), 0644); err != nil {
		return fmt.Errorf("write caption sidecar: %w", err)
	}
	return nil
}

func formatVTTTime(seconds float64) string {
	total := int64(math.Round(seconds * 1000))
	hours := total / 3600000
	minutes := (total % 3600000) / 60000
	secs := (total % 60000) / 1000
	millis := total % 1000

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, secs, millis)
}
