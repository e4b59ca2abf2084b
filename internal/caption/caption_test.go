package caption

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/montage/internal/domain"
)

func TestTokensEvenSplit(t *testing.T) {
	c := domain.Caption{Text: "one two three", StartMs: 0, EndMs: 1200}

	tokens := Tokens(c, 2.5)
	require.Len(t, tokens, 3)
	for _, tok := range tokens {
		assert.InDelta(t, 0.4, tok.End-tok.Start, 1e-9)
	}
	assert.InDelta(t, 0.4, tokens[1].Start, 1e-9)
	assert.InDelta(t, 0.8, tokens[1].End, 1e-9)
}

func TestTokensCappedByReadingRate(t *testing.T) {
	c := domain.Caption{Text: "slow words", StartMs: 1000, EndMs: 5000}

	tokens := Tokens(c, 2.5)
	require.Len(t, tokens, 2)
	assert.InDelta(t, 1.0, tokens[0].Start, 1e-9)
	assert.InDelta(t, 1.4, tokens[0].End, 1e-9)
	assert.InDelta(t, 1.8, tokens[1].End, 1e-9)
}

func TestTokensPreferExplicitWords(t *testing.T) {
	words := []domain.WordToken{{Text: "hi", Start: 0, End: 1}}
	c := domain.Caption{Text: "ignored text here", EndMs: 3000, Words: words}
	assert.Equal(t, words, Tokens(c, 2.5))
}

func TestTokensEmpty(t *testing.T) {
	assert.Nil(t, Tokens(domain.Caption{Text: "   ", EndMs: 1000}, 2.5))
}

func TestActiveFirstMatch(t *testing.T) {
	track := domain.CaptionTrack{Captions: []domain.Caption{
		{ID: "a", Text: "first", StartMs: 0, EndMs: 2000},
		{ID: "b", Text: "overlap", StartMs: 1000, EndMs: 3000},
	}}

	c, ok := Active(track, 1.5)
	require.True(t, ok)
	assert.Equal(t, "a", c.ID)

	c, ok = Active(track, 2.5)
	require.True(t, ok)
	assert.Equal(t, "b", c.ID)

	_, ok = Active(track, 3)
	assert.False(t, ok)
}

func TestRenderAtEmptyTrack(t *testing.T) {
	_, ok := RenderAt(domain.CaptionTrack{}, 1, 2.5)
	assert.False(t, ok)
}

func TestKaraokeHighlightsSpokenWords(t *testing.T) {
	track := domain.CaptionTrack{
		AnimationStyle: domain.StyleKaraoke,
		Style:          domain.CaptionStyle{Color: "#FFFFFF", HighlightColor: "#FF0000"},
		Captions:       []domain.Caption{{Text: "one two three", EndMs: 1200}},
	}

	r, ok := RenderAt(track, 0.5, 0)
	require.True(t, ok)
	require.Len(t, r.Words, 3)
	assert.Equal(t, "#FF0000", r.Words[0].Color)
	assert.Equal(t, "#FF0000", r.Words[1].Color)
	assert.Equal(t, "#FFFFFF", r.Words[2].Color)
}

func TestTypewriterRevealsCharacters(t *testing.T) {
	track := domain.CaptionTrack{
		AnimationStyle: domain.StyleTypewriter,
		Captions:       []domain.Caption{{Text: "abcd efgh", EndMs: 800}},
	}

	r, ok := RenderAt(track, 0.2, 2.5)
	require.True(t, ok)
	assert.Equal(t, 2, r.Words[0].Chars)
	assert.Equal(t, 0, r.Words[1].Chars)
}

func TestHighlightSpansOverrideColor(t *testing.T) {
	track := domain.CaptionTrack{
		Style: domain.CaptionStyle{Color: "#FFFFFF"},
		Captions: []domain.Caption{{
			Text: "a b c", EndMs: 3000,
			Highlights: []domain.HighlightSpan{{StartWord: 1, EndWord: 2, Color: "#00FF00"}},
		}},
	}

	r, ok := RenderAt(track, 0.1, 2.5)
	require.True(t, ok)
	assert.Equal(t, "#FFFFFF", r.Words[0].Color)
	assert.Equal(t, "#00FF00", r.Words[1].Color)
	assert.Equal(t, "#00FF00", r.Words[2].Color)
}

func TestEveryStyleRenders(t *testing.T) {
	styles := []domain.AnimationStyle{
		domain.StylePlain, domain.StyleKaraoke, domain.StylePop, domain.StyleWave, domain.StyleRainbow,
		domain.StyleGlitch, domain.StyleFire, domain.StyleLiquid, domain.StyleTypewriter,
	}
	for _, s := range styles {
		track := domain.CaptionTrack{AnimationStyle: s, Captions: []domain.Caption{{Text: "hello there", EndMs: 2000}}}
		first, ok := RenderAt(track, 0.3, 2.5)
		require.True(t, ok, "style %s", s)
		assert.Len(t, first.Words, 2, "style %s", s)

		again, _ := RenderAt(track, 0.3, 2.5)
		assert.Equal(t, first, again, "style %s is deterministic", s)
	}
}

func TestOffline(t *testing.T) {
	assert.Equal(t, domain.StyleTypewriter, Offline(domain.StyleTypewriter))
	assert.Equal(t, domain.StylePlain, Offline(domain.StyleFire))
}

func TestHSLHex(t *testing.T) {
	assert.Equal(t, "#FF0000", hslHex(0, 1, 0.5))
	assert.Equal(t, "#0000FF", hslHex(240, 1, 0.5))
}
