package canvas

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/eleven-am/montage/internal/caption"
	"github.com/eleven-am/montage/internal/compositor"
	"github.com/eleven-am/montage/internal/textfx"
)

const (
	defaultFontSize = 48.0
	captionMargin   = 0.08
)

// glyphs renders s in the given face onto a tight transparent image. The
// image is sized for size pixels even when the face is the bitmap fallback.
func (c *Canvas) glyphs(s, family string, size float64, col color.NRGBA) *image.NRGBA {
	var out *image.NRGBA
	c.fonts.Use(family, size, func(face font.Face, scale float64) {
		m := face.Metrics()
		ascent := m.Ascent.Ceil()
		height := ascent + m.Descent.Ceil()
		width := font.MeasureString(face, s).Ceil()
		if width <= 0 || height <= 0 {
			return
		}
		img := image.NewNRGBA(image.Rect(0, 0, width, height))
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(col),
			Face: face,
			Dot:  fixed.P(0, ascent),
		}
		d.DrawString(s)
		out = img
		if scale != 1 {
			w := int(math.Round(float64(width) * scale))
			h := int(math.Round(float64(height) * scale))
			if w > 0 && h > 0 {
				out = imaging.Resize(img, w, h, imaging.Linear)
			}
		}
	})
	return out
}

// stroked renders s with an outline of width px drawn behind it.
func (c *Canvas) stroked(s, family string, size float64, fill, stroke color.NRGBA, width float64) *image.NRGBA {
	front := c.glyphs(s, family, size, fill)
	if front == nil || width <= 0 {
		return front
	}
	back := c.glyphs(s, family, size, stroke)
	pad := int(math.Ceil(width))
	b := front.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx()+2*pad, b.Dy()+2*pad))
	for dy := -pad; dy <= pad; dy++ {
		for dx := -pad; dx <= pad; dx++ {
			if dx*dx+dy*dy > pad*pad {
				continue
			}
			draw.Draw(out, b.Add(image.Pt(pad+dx, pad+dy)), back, image.Point{}, draw.Over)
		}
	}
	draw.Draw(out, b.Add(image.Pt(pad, pad)), front, image.Point{}, draw.Over)
	return out
}

func alignOffset(align string, container, content float64) float64 {
	switch align {
	case "center":
		return (container - content) / 2
	case "right":
		return container - content
	default:
		return 0
	}
}

// visibleLines truncates lines to the first chars runes; -1 keeps everything.
func visibleLines(lines []string, chars int) []string {
	if chars < 0 {
		return lines
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		r := []rune(l)
		if chars <= 0 {
			break
		}
		if len(r) > chars {
			out = append(out, string(r[:chars]))
			break
		}
		out = append(out, l)
		chars -= len(r)
	}
	return out
}

func (c *Canvas) drawText(tl *compositor.TextLayer, w, h int) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	st := tl.Style
	size := st.FontSize
	if size <= 0 {
		size = defaultFontSize
	}
	block := tl.Block
	pad := st.Background.Padding
	bx := alignOffset(st.Align, float64(w), block.Width)

	if tl.Clip != nil && st.Background.Color != "" {
		fillShape(out, *tl.Clip, ParseColor(st.Background.Color), bx, 0, block.Width, block.Height)
	}

	fill := ParseColor(st.Color)
	if st.Color == "" {
		fill = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
	stroke := ParseColor(st.StrokeColor)

	for i, line := range visibleLines(block.Lines, tl.State.Chars) {
		g := c.stroked(line, st.FontFamily, size, fill, stroke, st.StrokeWidth)
		if g == nil {
			continue
		}
		lw := float64(g.Bounds().Dx())
		x := bx + pad + alignOffset(st.Align, block.Width-2*pad, lw)
		y := pad + float64(i)*block.LineHeight + (block.LineHeight-float64(g.Bounds().Dy()))/2
		at := image.Pt(int(math.Round(x)), int(math.Round(y)))
		draw.Draw(out, g.Bounds().Add(at), g, image.Point{}, draw.Over)
	}

	return animate(out, tl.State)
}

func fillShape(dst *image.NRGBA, rule textfx.ClipRule, col color.NRGBA, x0, y0, w, h float64) {
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if rule.Contains(float64(x)+0.5-x0, float64(y)+0.5-y0, w, h) {
				blend(dst, x, y, col)
			}
		}
	}
}

// blend composites col over the pixel at (x, y).
func blend(dst *image.NRGBA, x, y int, col color.NRGBA) {
	i := dst.PixOffset(x, y)
	sa := float64(col.A) / 255
	da := float64(dst.Pix[i+3]) / 255
	oa := sa + da*(1-sa)
	if oa <= 0 {
		return
	}
	for k, sc := range []uint8{col.R, col.G, col.B} {
		dc := float64(dst.Pix[i+k])
		dst.Pix[i+k] = uint8(math.Round((float64(sc)*sa + dc*da*(1-sa)) / oa))
	}
	dst.Pix[i+3] = uint8(math.Round(oa * 255))
}

// animate applies a text animation state around the layer centre.
func animate(img *image.NRGBA, st textfx.State) *image.NRGBA {
	if st.Opacity < 1 {
		scaleAlpha(img, math.Max(st.Opacity, 0))
	}
	if st.Scale == 1 && st.Rotation == 0 && st.TranslateX == 0 && st.TranslateY == 0 {
		return img
	}

	b := img.Bounds()
	moved := img
	if st.Scale != 1 {
		w := int(math.Round(float64(b.Dx()) * st.Scale))
		h := int(math.Round(float64(b.Dy()) * st.Scale))
		if w <= 0 || h <= 0 {
			return image.NewNRGBA(b)
		}
		moved = imaging.Resize(moved, w, h, imaging.Linear)
	}
	if st.Rotation != 0 {
		moved = imaging.Rotate(moved, -st.Rotation, color.Transparent)
	}

	out := image.NewNRGBA(b)
	mb := moved.Bounds()
	at := image.Pt(
		int(math.Round(float64(b.Dx()-mb.Dx())/2+st.TranslateX)),
		int(math.Round(float64(b.Dy()-mb.Dy())/2+st.TranslateY)),
	)
	draw.Draw(out, mb.Sub(mb.Min).Add(at), moved, mb.Min, draw.Over)
	return out
}

type placedWord struct {
	img *image.NRGBA
	w   caption.Word
	x   float64
}

func (c *Canvas) drawCaption(r *caption.Render, w, h int) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	style := r.Style
	size := style.FontSize
	if size <= 0 {
		size = defaultFontSize
	}
	stroke := ParseColor(style.StrokeColor)
	space := size * 0.3
	maxWidth := float64(w) * 0.9

	var lines [][]placedWord
	var line []placedWord
	var lineWidth float64
	for _, word := range r.Words {
		text := word.Text
		if word.Chars >= 0 {
			runes := []rune(text)
			if word.Chars < len(runes) {
				text = string(runes[:word.Chars])
			}
		}
		fill := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		switch {
		case word.Color != "":
			fill = ParseColor(word.Color)
		case style.Color != "":
			fill = ParseColor(style.Color)
		}
		img := c.stroked(text, style.FontFamily, size, fill, stroke, style.StrokeWidth)
		ww := float64(len([]rune(word.Text))) * size * 0.6
		if img != nil {
			ww = float64(img.Bounds().Dx())
		}
		if len(line) > 0 && lineWidth+space+ww > maxWidth {
			lines = append(lines, line)
			line, lineWidth = nil, 0
		}
		if len(line) > 0 {
			lineWidth += space
		}
		line = append(line, placedWord{img: img, w: word, x: lineWidth})
		lineWidth += ww
	}
	if len(line) > 0 {
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return out
	}

	lh := size * 1.2
	blockH := float64(len(lines)) * lh
	var top float64
	switch style.Position {
	case "top":
		top = float64(h) * captionMargin
	case "center":
		top = (float64(h) - blockH) / 2
	default:
		top = float64(h) - blockH - float64(h)*captionMargin
	}

	for i, ln := range lines {
		last := ln[len(ln)-1]
		width := last.x
		if last.img != nil {
			width += float64(last.img.Bounds().Dx())
		}
		left := (float64(w) - width) / 2
		y := top + float64(i)*lh

		if style.Background != "" {
			bg := image.Rect(int(left-12), int(y-6), int(left+width+12), int(y+lh+6))
			draw.Draw(out, bg, image.NewUniform(ParseColor(style.Background)), image.Point{}, draw.Over)
		}

		for _, pw := range ln {
			if pw.img == nil || pw.w.Opacity <= 0 {
				continue
			}
			drawWord(out, pw, left, y, lh)
		}
	}
	return out
}

func drawWord(dst *image.NRGBA, pw placedWord, left, top, lh float64) {
	img := pw.img
	b := img.Bounds()
	cx := left + pw.x + float64(b.Dx())/2 + pw.w.OffsetX
	cy := top + lh/2 + pw.w.OffsetY

	if pw.w.Scale > 0 && pw.w.Scale != 1 {
		w := int(math.Round(float64(b.Dx()) * pw.w.Scale))
		h := int(math.Round(float64(b.Dy()) * pw.w.Scale))
		if w <= 0 || h <= 0 {
			return
		}
		img = imaging.Resize(img, w, h, imaging.Linear)
		b = img.Bounds()
	} else {
		img = imaging.Clone(img)
	}
	if pw.w.Opacity < 1 {
		scaleAlpha(img, pw.w.Opacity)
	}

	at := image.Pt(int(math.Round(cx-float64(b.Dx())/2)), int(math.Round(cy-float64(b.Dy())/2)))
	if pw.w.Glow > 0 {
		glow := imaging.Blur(img, pw.w.Glow)
		draw.Draw(dst, b.Add(at), glow, image.Point{}, draw.Over)
	}
	draw.Draw(dst, b.Add(at), img, image.Point{}, draw.Over)
}
