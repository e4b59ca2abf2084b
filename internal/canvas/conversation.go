package canvas

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/eleven-am/montage/internal/compositor"
	"github.com/eleven-am/montage/internal/domain"
	"github.com/eleven-am/montage/internal/textfx"
)

const (
	bubbleFontSize = 28.0
	bubblePadding  = 14.0
	bubbleGap      = 12.0
	bubbleReveal   = 0.25
)

var (
	bubbleLeft  = color.NRGBA{R: 0xe5, G: 0xe5, B: 0xea, A: 0xff}
	bubbleRight = color.NRGBA{R: 0x0a, G: 0x84, B: 0xff, A: 0xff}
	inkLeft     = color.NRGBA{A: 0xff}
	inkRight    = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// ChatRenderer draws a conversation as chat bubbles. Message i appears after
// the sum of the delays up to and including it, fading in over a quarter
// second. It is pure in (conversation, t).
type ChatRenderer struct {
	canvas *Canvas
}

func NewChatRenderer(c *Canvas) *ChatRenderer {
	return &ChatRenderer{canvas: c}
}

var _ compositor.ConversationRenderer = (*ChatRenderer)(nil)

func (r *ChatRenderer) Render(ctx context.Context, conv domain.Conversation, t, duration float64, size image.Point) (image.Image, error) {
	out := image.NewNRGBA(image.Rectangle{Max: size})
	if size.X <= 0 || size.Y <= 0 {
		return out, nil
	}

	sides := make(map[string]string, len(conv.Participants))
	for _, p := range conv.Participants {
		sides[p.ID] = p.Side
	}

	type bubble struct {
		img   *image.NRGBA
		right bool
		alpha float64
	}
	var bubbles []bubble
	var at float64
	maxWidth := float64(size.X) * 0.7
	m := r.canvas.fonts.Measurer(domain.Text{FontSize: bubbleFontSize})

	for _, msg := range conv.Messages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		at += math.Max(msg.Delay, 0)
		if t < at {
			break
		}
		right := sides[msg.ParticipantID] == "right"
		bg, ink := bubbleLeft, inkLeft
		if right {
			bg, ink = bubbleRight, inkRight
		}
		block := textfx.Layout(msg.Text, maxWidth, bubbleFontSize, 1.2, bubblePadding, m)
		img := r.bubble(block, bg, ink)
		bubbles = append(bubbles, bubble{img: img, right: right, alpha: math.Min(1, (t-at)/bubbleReveal)})
	}

	// newest message sits at the bottom; older ones scroll up
	y := float64(size.Y) - bubbleGap
	for i := len(bubbles) - 1; i >= 0 && y > 0; i-- {
		b := bubbles[i]
		bh := float64(b.img.Bounds().Dy())
		y -= bh
		x := bubbleGap
		if b.right {
			x = float64(size.X) - float64(b.img.Bounds().Dx()) - bubbleGap
		}
		if b.alpha < 1 {
			scaleAlpha(b.img, b.alpha)
		}
		pos := image.Pt(int(math.Round(x)), int(math.Round(y)))
		draw.Draw(out, b.img.Bounds().Add(pos), b.img, image.Point{}, draw.Over)
		y -= bubbleGap
	}
	return out, nil
}

func (r *ChatRenderer) bubble(block textfx.Block, bg, ink color.NRGBA) *image.NRGBA {
	w, h := int(math.Ceil(block.Width)), int(math.Ceil(block.Height))
	img := image.NewNRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	rule, _ := textfx.Rule(domain.ShapeRounded)
	fillShape(img, rule, bg, 0, 0, block.Width, block.Height)
	for i, line := range block.Lines {
		g := r.canvas.glyphs(line, "", bubbleFontSize, ink)
		if g == nil {
			continue
		}
		y := bubblePadding + float64(i)*block.LineHeight + (block.LineHeight-float64(g.Bounds().Dy()))/2
		pos := image.Pt(int(bubblePadding), int(math.Round(y)))
		draw.Draw(img, g.Bounds().Add(pos), g, image.Point{}, draw.Over)
	}
	return img
}

// RenderSequence writes one PNG per frame of a conversation element into dir
// and returns the image2 pattern that reads them back.
func RenderSequence(ctx context.Context, r compositor.ConversationRenderer, e domain.Element, fps float64, dir string) (string, error) {
	if e.Conversation == nil {
		return "", fmt.Errorf("element %s is not a conversation", e.ID)
	}
	if fps <= 0 {
		fps = 30
	}
	size := image.Pt(int(math.Round(e.Width)), int(math.Round(e.Height)))
	if size.X <= 0 || size.Y <= 0 {
		return "", fmt.Errorf("element %s has no size", e.ID)
	}

	prefix := filepath.Join(dir, "conv-"+e.ID)
	if err := os.MkdirAll(prefix, 0755); err != nil {
		return "", fmt.Errorf("create sequence dir: %w", err)
	}

	duration := e.Duration()
	frames := int(math.Ceil(duration * fps))
	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		img, err := r.Render(ctx, *e.Conversation, float64(i)/fps, duration, size)
		if err != nil {
			return "", fmt.Errorf("render conversation frame %d: %w", i, err)
		}
		if err := writePNG(filepath.Join(prefix, fmt.Sprintf("%06d.png", i)), img); err != nil {
			return "", err
		}
	}
	return filepath.Join(prefix, "%06d.png"), nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create frame: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode frame: %w", err)
	}
	return f.Close()
}
