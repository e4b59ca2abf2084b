package textfx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/montage/internal/domain"
)

func TestWrapRespectsWidth(t *testing.T) {
	m := FixedAdvance{FontSize: 10}
	lines := Wrap("the quick brown fox", 60, m)
	assert.Equal(t, []string{"the quick", "brown fox"}, lines)
}

func TestWrapKeepsLongWordsAndNewlines(t *testing.T) {
	m := FixedAdvance{FontSize: 10}
	assert.Equal(t, []string{"extraordinary", "a"}, Wrap("extraordinary a", 30, m))
	assert.Equal(t, []string{"one", "", "two"}, Wrap("one\n\ntwo", 0, m))
}

func TestLayout(t *testing.T) {
	b := Layout("hello world", 1000, 20, 1.5, 4, FixedAdvance{FontSize: 20})
	require.Len(t, b.Lines, 1)
	assert.InDelta(t, 11*12+8, b.Width, 1e-9)
	assert.InDelta(t, 30+8, b.Height, 1e-9)
}

func TestAnimateFadeInOut(t *testing.T) {
	txt := domain.Text{
		AnimationIn:  &domain.TextAnimation{Kind: "fade", Duration: 1},
		AnimationOut: &domain.TextAnimation{Kind: "fade", Duration: 1},
	}

	assert.InDelta(t, 0.5, Animate(txt, 0.5, 4, 5).Opacity, 1e-9)
	assert.InDelta(t, 1.0, Animate(txt, 2, 4, 5).Opacity, 1e-9)
	assert.InDelta(t, 0.25, Animate(txt, 3.75, 4, 5).Opacity, 1e-9)
}

func TestAnimateTypewriter(t *testing.T) {
	txt := domain.Text{AnimationIn: &domain.TextAnimation{Kind: "typewriter", Duration: 2}}
	assert.Equal(t, 5, Animate(txt, 1, 10, 10).Chars)
	assert.Equal(t, -1, Animate(txt, 3, 10, 10).Chars)
}

func TestAnimateSlideSettles(t *testing.T) {
	txt := domain.Text{AnimationIn: &domain.TextAnimation{Kind: "slide-up", Duration: 1}}
	s := Animate(txt, 0, 3, 0)
	assert.InDelta(t, slideDistance, s.TranslateY, 1e-9)
	assert.Equal(t, rest(), Animate(txt, 1.5, 3, 0))
}

func TestRuleShapes(t *testing.T) {
	_, ok := Rule(domain.ShapeNone)
	assert.False(t, ok)

	rect, ok := Rule(domain.ShapeRectangle)
	require.True(t, ok)
	assert.True(t, rect.Contains(0, 0, 100, 20))

	pill, _ := Rule(domain.ShapePill)
	assert.False(t, pill.Contains(0, 0, 100, 20), "pill corners are rounded")
	assert.True(t, pill.Contains(50, 10, 100, 20))

	under, _ := Rule(domain.ShapeUnderline)
	assert.False(t, under.Contains(50, 5, 100, 20))
	assert.True(t, under.Contains(50, 19, 100, 20))

	speech, _ := Rule(domain.ShapeSpeech)
	assert.True(t, speech.Tail)
}
