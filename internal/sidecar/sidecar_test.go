package sidecar

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/montage/internal/domain"
)

func captionProject() domain.Project {
	return domain.Project{Elements: []domain.Element{{
		ID: "cap", Kind: domain.KindCaption, PositionStart: 0, PositionEnd: 10,
		Caption: &domain.CaptionTrack{Captions: []domain.Caption{
			{Text: "later cue", StartMs: 5000, EndMs: 6000},
			{Text: "one two three", StartMs: 0, EndMs: 1200},
			{Text: "a<b", StartMs: 12000, EndMs: 13000},
		}},
	}}}
}

func TestGenerateOrdersAndClipsCues(t *testing.T) {
	vtt := string(Generate(captionProject()))

	assert.True(t, strings.HasPrefix(vtt, "WEBVTT\n\n"), "missing header: %q", vtt)

	first := strings.Index(vtt, "00:00:00.000 --> 00:00:01.200")
	second := strings.Index(vtt, "00:00:05.000 --> 00:00:06.000")
	require.GreaterOrEqual(t, first, 0, vtt)
	require.GreaterOrEqual(t, second, 0, vtt)
	assert.Less(t, first, second, "cues out of order")
	assert.NotContains(t, vtt, "a&lt;b", "cue outside the element window should be dropped")
}

func TestGenerateInlineWordTimestamps(t *testing.T) {
	vtt := string(Generate(captionProject()))
	assert.Contains(t, vtt, "one <00:00:00.400>two <00:00:00.800>three")
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.vtt")
	require.NoError(t, Write(path, captionProject()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	assert.True(t, HasCaptions(captionProject()))
	assert.False(t, HasCaptions(domain.Project{}))
}

func TestFormatVTTTime(t *testing.T) {
	cases := map[float64]string{
		0:       "00:00:00.000",
		1.2:     "00:00:01.200",
		3725.5:  "01:02:05.500",
		59.9999: "00:01:00.000",
	}
	for in, want := range cases {
		assert.Equal(t, want, formatVTTTime(in), "formatVTTTime(%v)", in)
	}
}
