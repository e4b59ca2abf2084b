package caption

import (
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/eleven-am/montage/internal/domain"
)

// Word is the render state of one caption token.
type Word struct {
	Text    string
	Color   string
	Opacity float64
	Scale   float64
	OffsetX float64
	OffsetY float64
	// Chars is how many runes are shown; -1 shows all.
	Chars int
	Glow  float64
}

type Render struct {
	TrackID   string
	CaptionID string
	Style     domain.CaptionStyle
	Words     []Word
}

// Context is everything a strategy sees for one frame.
type Context struct {
	Time    float64
	Caption domain.Caption
	Tokens  []domain.WordToken
	Current int
	Style   domain.CaptionStyle
}

// Local is the progress through token i, clamped to 0..1.
func (c Context) Local(i int) float64 {
	w := c.Tokens[i]
	if w.End <= w.Start {
		if c.Time >= w.Start {
			return 1
		}
		return 0
	}
	return math.Max(0, math.Min(1, (c.Time-w.Start)/(w.End-w.Start)))
}

type Strategy func(Context) []Word

var (
	mu         sync.RWMutex
	strategies = map[domain.AnimationStyle]Strategy{}
)

func Register(style domain.AnimationStyle, s Strategy) {
	mu.Lock()
	defer mu.Unlock()
	strategies[style] = s
}

func lookup(style domain.AnimationStyle) Strategy {
	mu.RLock()
	defer mu.RUnlock()
	if s, ok := strategies[style]; ok {
		return s
	}
	return strategies[domain.StylePlain]
}

// RenderAt resolves the active caption of track at t. ok is false when no
// caption is active or the active one has no words.
func RenderAt(track domain.CaptionTrack, t float64, wps float64) (Render, bool) {
	c, ok := Active(track, t)
	if !ok {
		return Render{}, false
	}
	if track.WordsPerSecond > 0 {
		wps = track.WordsPerSecond
	}
	tokens := Tokens(c, wps)
	if len(tokens) == 0 {
		return Render{}, false
	}

	ctx := Context{
		Time:    t,
		Caption: c,
		Tokens:  tokens,
		Current: CurrentWord(tokens, t),
		Style:   track.Style,
	}
	words := lookup(track.AnimationStyle)(ctx)
	applyHighlights(words, c.Highlights)

	return Render{TrackID: track.ID, CaptionID: c.ID, Style: track.Style, Words: words}, true
}

// Offline returns the style the batch encoder can burn in for style.
func Offline(style domain.AnimationStyle) domain.AnimationStyle {
	if style == domain.StyleTypewriter {
		return style
	}
	return domain.StylePlain
}

func applyHighlights(words []Word, spans []domain.HighlightSpan) {
	for _, h := range spans {
		for i := h.StartWord; i <= h.EndWord && i < len(words); i++ {
			if i >= 0 && h.Color != "" {
				words[i].Color = h.Color
			}
		}
	}
}

func base(ctx Context) []Word {
	out := make([]Word, len(ctx.Tokens))
	for i, tok := range ctx.Tokens {
		out[i] = Word{Text: tok.Text, Color: ctx.Style.Color, Opacity: 1, Scale: 1, Chars: -1}
	}
	return out
}

func highlight(ctx Context) string {
	if ctx.Style.HighlightColor != "" {
		return ctx.Style.HighlightColor
	}
	return "#FFD700"
}

func plain(ctx Context) []Word { return base(ctx) }

func karaoke(ctx Context) []Word {
	out := base(ctx)
	for i := 0; i <= ctx.Current && i < len(out); i++ {
		out[i].Color = highlight(ctx)
	}
	return out
}

func pop(ctx Context) []Word {
	out := base(ctx)
	for i := range out {
		if ctx.Time < ctx.Tokens[i].Start {
			out[i].Opacity = 0
			continue
		}
		if i == ctx.Current {
			out[i].Scale = 1 + 0.3*math.Sin(math.Pi*ctx.Local(i))
			out[i].Color = highlight(ctx)
		}
	}
	return out
}

func wave(ctx Context) []Word {
	out := base(ctx)
	amp := ctx.Style.FontSize * 0.15
	if amp == 0 {
		amp = 6
	}
	for i := range out {
		out[i].OffsetY = math.Sin(2*math.Pi*(ctx.Time*1.5+float64(i)*0.25)) * amp
	}
	return out
}

func rainbow(ctx Context) []Word {
	out := base(ctx)
	for i := range out {
		hue := math.Mod(float64(i)*45+ctx.Time*120, 360)
		out[i].Color = hslHex(hue, 0.9, 0.6)
	}
	return out
}

func glitch(ctx Context) []Word {
	out := base(ctx)
	tick := int64(math.Floor(ctx.Time * 15))
	for i := range out {
		j := jitter(i, tick)
		out[i].OffsetX = (j - 0.5) * 6
		if j > 0.85 {
			out[i].Color = "#00FFFF"
		} else if j < 0.15 {
			out[i].Color = "#FF00FF"
		}
	}
	return out
}

func fire(ctx Context) []Word {
	out := base(ctx)
	for i := range out {
		heat := ctx.Local(i)
		out[i].Color = hslHex(50-40*heat, 1, 0.55)
		out[i].Glow = 4 + 4*math.Sin(ctx.Time*8+float64(i))
	}
	return out
}

func liquid(ctx Context) []Word {
	out := base(ctx)
	for i := range out {
		phase := ctx.Time*2 + float64(i)*0.5
		out[i].Scale = 1 + 0.05*math.Sin(2*math.Pi*phase)
		out[i].OffsetY = 3 * math.Sin(math.Pi*phase)
	}
	return out
}

func typewriter(ctx Context) []Word {
	out := base(ctx)
	for i := range out {
		n := len([]rune(out[i].Text))
		switch {
		case ctx.Time < ctx.Tokens[i].Start:
			out[i].Chars = 0
		case ctx.Time >= ctx.Tokens[i].End:
			out[i].Chars = -1
		default:
			out[i].Chars = int(math.Ceil(ctx.Local(i) * float64(n)))
		}
	}
	return out
}

// jitter is a stable pseudo-random value in [0,1) per word and tick so the
// same frame always glitches the same way.
func jitter(i int, tick int64) float64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d:%d", i, tick)
	return float64(h.Sum64()%1000) / 1000
}

func hslHex(h, s, l float64) string {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	to := func(v float64) int { return int(math.Round((v + m) * 255)) }
	return fmt.Sprintf("#%02X%02X%02X", to(r), to(g), to(b))
}

func init() {
	Register(domain.StylePlain, plain)
	Register(domain.StyleKaraoke, karaoke)
	Register(domain.StylePop, pop)
	Register(domain.StyleWave, wave)
	Register(domain.StyleRainbow, rainbow)
	Register(domain.StyleGlitch, glitch)
	Register(domain.StyleFire, fire)
	Register(domain.StyleLiquid, liquid)
	Register(domain.StyleTypewriter, typewriter)
}
