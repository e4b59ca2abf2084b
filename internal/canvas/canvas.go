// Package canvas rasterizes compositor frames into RGBA pixels for the
// preview and the streaming encoder.
package canvas

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/eleven-am/montage/internal/compositor"
	"github.com/eleven-am/montage/internal/framecache"
)

type Options struct {
	Logger zerolog.Logger
	Source Source
	Fonts  *FontBook
	// Cache, when set, keeps rasterized preview frames.
	Cache *framecache.Cache
}

type Canvas struct {
	logger zerolog.Logger
	source Source
	fonts  *FontBook
	cache  *framecache.Cache
}

func New(opts Options) *Canvas {
	fonts := opts.Fonts
	if fonts == nil {
		fonts = NewFontBook()
	}
	return &Canvas{
		logger: opts.Logger.With().Str("component", "canvas").Logger(),
		source: opts.Source,
		fonts:  fonts,
		cache:  opts.Cache,
	}
}

func (c *Canvas) Fonts() *FontBook { return c.fonts }

// Rasterize draws f into a new image, reusing cached pixels when the frame
// hash matches. The returned image must not be modified.
func (c *Canvas) Rasterize(ctx context.Context, f compositor.Frame) (*image.RGBA, error) {
	if c.cache != nil {
		if px, ok := c.cache.Get(f.Time, f.Hash); ok {
			return px, nil
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	if err := c.RasterizeInto(ctx, f, dst); err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Put(f.Time, f.Hash, dst)
	}
	return dst, nil
}

// RasterizeInto draws f into dst, which must match the frame size. Layers
// that fail to draw are logged and skipped.
func (c *Canvas) RasterizeInto(ctx context.Context, f compositor.Frame, dst *image.RGBA) error {
	bg := ParseColor(f.Background)
	if f.Background == "" {
		bg = color.NRGBA{A: 255}
	}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	for _, l := range f.Layers {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := c.layerImage(ctx, l)
		if err != nil {
			c.logger.Warn().Err(err).Str("element", l.ElementID).Msg("skipping layer")
			continue
		}
		if img == nil {
			continue
		}
		composite(dst, f, l, img)
	}
	return nil
}

func (c *Canvas) layerImage(ctx context.Context, l compositor.Layer) (*image.NRGBA, error) {
	w, h := int(math.Round(l.Rect.W)), int(math.Round(l.Rect.H))
	if w <= 0 || h <= 0 {
		return nil, nil
	}

	var img *image.NRGBA
	switch {
	case l.Media != nil:
		if c.source == nil {
			return nil, nil
		}
		src, err := c.source.Image(ctx, *l.Media)
		if err != nil {
			return nil, err
		}
		if l.Media.ChromaKey != nil {
			keyed := imaging.Clone(src)
			keyOut(keyed, *l.Media.ChromaKey)
			src = keyed
		}
		img = imaging.Resize(src, w, h, imaging.Lanczos)
		img = colorFilters(img, l.Filters)
	case l.Text != nil:
		img = c.drawText(l.Text, w, h)
	case l.Caption != nil:
		img = c.drawCaption(l.Caption, w, h)
	case l.Conversation != nil && l.Conversation.Image != nil:
		img = imaging.Resize(l.Conversation.Image, w, h, imaging.Linear)
	default:
		return nil, nil
	}

	return applyTransition(img, l.Transition), nil
}

func colorFilters(img *image.NRGBA, filters []compositor.Filter) *image.NRGBA {
	for _, f := range filters {
		if f.Stage != compositor.StageColor {
			continue
		}
		switch f.Name {
		case "blur":
			img = imaging.Blur(img, f.Value)
		case "brightness":
			img = imaging.AdjustBrightness(img, f.Value)
		case "contrast":
			img = imaging.AdjustContrast(img, f.Value-100)
		case "saturate":
			img = imaging.AdjustSaturation(img, f.Value-100)
		}
	}
	return img
}

// composite places img at the layer position. Scale and rotation keep the
// layer centre fixed; translation is in frame fractions.
func composite(dst *image.RGBA, f compositor.Frame, l compositor.Layer, img *image.NRGBA) {
	tp := l.Transition

	if tp.ScaleX != 1 || tp.ScaleY != 1 {
		w := int(math.Round(float64(img.Bounds().Dx()) * tp.ScaleX))
		h := int(math.Round(float64(img.Bounds().Dy()) * tp.ScaleY))
		if w <= 0 || h <= 0 {
			return
		}
		img = imaging.Resize(img, w, h, imaging.Linear)
	}

	if rot := l.Rotation + tp.Rotation; rot != 0 {
		img = imaging.Rotate(img, -rot, color.Transparent)
	}

	alpha := l.Opacity * tp.Opacity
	if alpha <= 0 {
		return
	}
	if alpha < 1 {
		scaleAlpha(img, alpha)
	}

	cx := l.Rect.X + l.Rect.W/2 + tp.TranslateX*float64(f.Width)
	cy := l.Rect.Y + l.Rect.H/2 + tp.TranslateY*float64(f.Height)
	b := img.Bounds()
	at := image.Pt(int(math.Round(cx-float64(b.Dx())/2)), int(math.Round(cy-float64(b.Dy())/2)))

	draw.Draw(dst, b.Sub(b.Min).Add(at), img, b.Min, draw.Over)
}

func scaleAlpha(img *image.NRGBA, a float64) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(math.Round(float64(img.Pix[i]) * a))
	}
}
