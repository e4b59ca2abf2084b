// Package compositor resolves a project snapshot at a timeline time into a
// z-ordered layer tree. It is pure per call: the time is always an argument
// and nothing is cached between calls.
package compositor

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/eleven-am/montage/internal/caption"
	"github.com/eleven-am/montage/internal/domain"
	"github.com/eleven-am/montage/internal/textfx"
	"github.com/eleven-am/montage/internal/timeline"
	"github.com/eleven-am/montage/internal/transition"
)

// ConversationRenderer draws a chat block at local time t into an image of
// the given size.
type ConversationRenderer interface {
	Render(ctx context.Context, conv domain.Conversation, t, duration float64, size image.Point) (image.Image, error)
}

// Resolver reports whether an asset can be displayed.
type Resolver func(domain.AssetID) bool

type Options struct {
	Logger         zerolog.Logger
	Resolver       Resolver
	Conversations  ConversationRenderer
	WordsPerSecond float64
	// ChromaKey keys out every media element that has no key of its own.
	ChromaKey *domain.ChromaKey
	// Measurer builds a text measurer for a text style. Defaults to a fixed
	// advance estimate.
	Measurer func(domain.Text) textfx.Measurer
}

type Compositor struct {
	log      zerolog.Logger
	resolve  Resolver
	conv     ConversationRenderer
	wps      float64
	key      *domain.ChromaKey
	measurer func(domain.Text) textfx.Measurer
}

func New(opts Options) *Compositor {
	c := &Compositor{
		log:      opts.Logger,
		resolve:  opts.Resolver,
		conv:     opts.Conversations,
		wps:      opts.WordsPerSecond,
		key:      opts.ChromaKey,
		measurer: opts.Measurer,
	}
	if c.wps <= 0 {
		c.wps = domain.DefaultWordsPerSecond
	}
	if c.measurer == nil {
		c.measurer = func(t domain.Text) textfx.Measurer { return textfx.FixedAdvance{FontSize: t.FontSize} }
	}
	return c
}

func (c *Compositor) chromaKey(m *domain.Media) *domain.ChromaKey {
	if m.ChromaKey != nil {
		return m.ChromaKey
	}
	return c.key
}

// RenderFrame returns the layer tree of p at t.
func (c *Compositor) RenderFrame(ctx context.Context, p domain.Project, t float64) Frame {
	f := Frame{Time: t, Width: p.Width, Height: p.Height, Background: p.Background}

	for _, e := range timeline.Active(p, t) {
		layer, ok := c.layer(ctx, p, e, t)
		if !ok {
			continue
		}
		f.Layers = append(f.Layers, layer)
	}
	f.Hash = Hash(f)
	return f
}

func (c *Compositor) layer(ctx context.Context, p domain.Project, e domain.Element, t float64) (Layer, bool) {
	if err := e.Validate(); err != nil {
		c.log.Warn().Err(err).Str("element", e.ID).Msg("skipping invalid element")
		return Layer{}, false
	}
	relative := t - e.PositionStart

	l := Layer{
		ElementID: e.ID,
		Kind:      e.Kind,
		Z:         e.Z(),
		Rect:      placement(e, p),
		Rotation:  e.Rotation,
		Opacity:   e.Alpha(),
	}

	switch e.Kind {
	case domain.KindMedia:
		m := e.Media
		if !m.HasVisual() {
			return l, false
		}
		if c.resolve != nil && !c.resolve(m.Src) {
			c.log.Warn().Str("element", e.ID).Str("asset", string(m.Src)).Msg("skipping element with unresolved source")
			return l, false
		}
		l.Media = &MediaLayer{
			Type:       m.Type,
			Source:     m.Src,
			SourceTime: timeline.SourceTime(*m, relative),
			ChromaKey:  c.chromaKey(m),
		}

	case domain.KindText:
		style := *e.Text
		m := c.measurer(style)
		block := textfx.Layout(style.Text, l.Rect.W, style.FontSize, style.LineHeight, style.Background.Padding, m)
		tl := &TextLayer{
			Style: style,
			Block: block,
			State: textfx.Animate(style, relative, e.Duration(), utf8.RuneCountInString(style.Text)),
		}
		if rule, ok := textfx.Rule(style.Background.Shape); ok {
			tl.Clip = &rule
		}
		l.Text = tl

	case domain.KindCaption:
		r, ok := caption.RenderAt(*e.Caption, t, c.wps)
		if !ok {
			return l, false
		}
		l.Caption = &r

	case domain.KindConversation:
		if c.conv == nil {
			c.log.Warn().Str("element", e.ID).Msg("no conversation renderer configured")
			return l, false
		}
		size := image.Pt(int(l.Rect.W), int(l.Rect.H))
		img, err := c.conv.Render(ctx, *e.Conversation, relative, e.Duration(), size)
		if err != nil {
			c.log.Warn().Err(err).Str("element", e.ID).Msg("conversation render failed")
			return l, false
		}
		l.Conversation = &ConversationLayer{Image: img}

	default:
		return l, false
	}

	l.Transition = transition.ParamsAt(p, e, t)
	l.Filters = filters(e, l)
	return l, true
}

func placement(e domain.Element, p domain.Project) Rect {
	r := Rect{X: e.X, Y: e.Y, W: e.Width, H: e.Height}
	if r.W <= 0 {
		r.W = float64(p.Width)
	}
	if r.H <= 0 {
		r.H = float64(p.Height)
	}
	return r
}

// filters lists the layer filters in application order: geometric transform,
// colour effects, transition, then the opacity composite.
func filters(e domain.Element, l Layer) []Filter {
	var out []Filter
	tp := l.Transition

	if e.Rotation != 0 {
		out = append(out, Filter{Stage: StageTransform, Name: "rotate", Value: e.Rotation})
	}

	if e.Media != nil {
		fx := e.Media.Effects
		if fx.Blur > 0 {
			out = append(out, Filter{Stage: StageColor, Name: "blur", Value: fx.Blur})
		}
		if fx.Brightness != 0 {
			out = append(out, Filter{Stage: StageColor, Name: "brightness", Value: fx.Brightness})
		}
		if fx.Contrast != 0 && fx.Contrast != 100 {
			out = append(out, Filter{Stage: StageColor, Name: "contrast", Value: fx.Contrast})
		}
		if fx.Saturation != 0 && fx.Saturation != 100 {
			out = append(out, Filter{Stage: StageColor, Name: "saturate", Value: fx.Saturation})
		}
	}

	if !tp.IsIdentity() {
		if tp.TranslateX != 0 || tp.TranslateY != 0 {
			out = append(out, Filter{Stage: StageTransition, Name: "translate", Value: tp.TranslateX + tp.TranslateY})
		}
		if tp.ScaleX != 1 || tp.ScaleY != 1 {
			out = append(out, Filter{Stage: StageTransition, Name: "scale", Value: tp.ScaleX * tp.ScaleY})
		}
		if tp.Rotation != 0 {
			out = append(out, Filter{Stage: StageTransition, Name: "rotate", Value: tp.Rotation})
		}
		if tp.Blur != 0 {
			out = append(out, Filter{Stage: StageTransition, Name: "blur", Value: tp.Blur})
		}
		if tp.Pixelate != 0 {
			out = append(out, Filter{Stage: StageTransition, Name: "pixelate", Value: tp.Pixelate})
		}
		if tp.Mask != transition.MaskNone {
			out = append(out, Filter{Stage: StageTransition, Name: "mask-" + string(tp.Mask), Value: tp.MaskCoverage})
		}
		if tp.Clip != transition.Identity().Clip {
			out = append(out, Filter{Stage: StageTransition, Name: "clip", Value: tp.Clip.W * tp.Clip.H})
		}
	}

	if alpha := l.Opacity * tp.Opacity; alpha != 1 {
		out = append(out, Filter{Stage: StageOpacity, Name: "opacity", Value: alpha})
	}
	return out
}

// Hash fingerprints the layer tree so identical frames can share cached
// pixels. Conversation images are identified by pointer so they are never
// shared.
func Hash(f Frame) uint64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%dx%d|%s|", f.Width, f.Height, f.Background)
	for _, l := range f.Layers {
		_, _ = fmt.Fprintf(h, "%s|%d|%v|%v|%v|%v|%v|", l.ElementID, l.Z, l.Rect, l.Rotation, l.Opacity, l.Transition, l.Filters)
		if m := l.Media; m != nil {
			_, _ = fmt.Fprintf(h, "m%s|%s|%v|", m.Type, m.Source, m.SourceTime)
			if m.ChromaKey != nil {
				_, _ = fmt.Fprintf(h, "k%v|", *m.ChromaKey)
			}
		}
		if l.Text != nil {
			_, _ = fmt.Fprintf(h, "t%v|%v|%v|", l.Text.Block.Lines, l.Text.State, l.Text.Style.Color)
		}
		if l.Caption != nil {
			_, _ = fmt.Fprintf(h, "c%s|%v|", l.Caption.CaptionID, l.Caption.Words)
		}
		if l.Conversation != nil && l.Conversation.Image != nil {
			_, _ = fmt.Fprintf(h, "v%v|%p|", l.Conversation.Image.Bounds(), l.Conversation.Image)
		}
	}
	return h.Sum64()
}
