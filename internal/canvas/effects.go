package canvas

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/eleven-am/montage/internal/domain"
	"github.com/eleven-am/montage/internal/transition"
)

// keyOut clears pixels close to the key colour. Similarity and blend are
// fractions of the maximum RGB distance.
func keyOut(img *image.NRGBA, k domain.ChromaKey) {
	key := ParseColor(k.Color)
	sim := k.Similarity
	if sim <= 0 {
		sim = 0.1
	}
	const maxDist = 441.673 // sqrt(3 * 255^2)

	for i := 0; i+3 < len(img.Pix); i += 4 {
		dr := float64(img.Pix[i]) - float64(key.R)
		dg := float64(img.Pix[i+1]) - float64(key.G)
		db := float64(img.Pix[i+2]) - float64(key.B)
		d := math.Sqrt(dr*dr+dg*dg+db*db) / maxDist

		switch {
		case d < sim:
			img.Pix[i+3] = 0
		case k.Blend > 0 && d < sim+k.Blend:
			img.Pix[i+3] = uint8(float64(img.Pix[i+3]) * (d - sim) / k.Blend)
		}
	}
}

func applyTransition(img *image.NRGBA, tp transition.Params) *image.NRGBA {
	if tp.Blur > 0 {
		img = imaging.Blur(img, tp.Blur)
	}
	if tp.Pixelate >= 2 {
		img = pixelate(img, int(tp.Pixelate))
	}
	if tp.Ripple > 0 {
		img = ripple(img, tp.Ripple)
	}
	if tp.Clip != (transition.Rect{W: 1, H: 1}) && tp.Clip != (transition.Rect{}) {
		clipTo(img, tp.Clip)
	}
	if tp.Mask != transition.MaskNone {
		maskTo(img, tp.Mask, tp.MaskCoverage)
	}
	return img
}

func pixelate(img *image.NRGBA, block int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx()/block, b.Dy()/block
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	small := imaging.Resize(img, w, h, imaging.Box)
	return imaging.Resize(small, b.Dx(), b.Dy(), imaging.NearestNeighbor)
}

// ripple shifts each row sideways along a sine wave of amplitude a (fraction
// of the width).
func ripple(img *image.NRGBA, a float64) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewNRGBA(b)
	amp := a * float64(w)
	for y := 0; y < h; y++ {
		shift := int(math.Round(amp * math.Sin(float64(y)/float64(h)*4*math.Pi)))
		for x := 0; x < w; x++ {
			sx := x - shift
			if sx < 0 || sx >= w {
				continue
			}
			copy(out.Pix[y*out.Stride+x*4:y*out.Stride+x*4+4], img.Pix[y*img.Stride+sx*4:y*img.Stride+sx*4+4])
		}
	}
	return out
}

func clipTo(img *image.NRGBA, r transition.Rect) {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	x0, x1 := r.X*w, (r.X+r.W)*w
	y0, y1 := r.Y*h, (r.Y+r.H)*h
	for y := 0; y < b.Dy(); y++ {
		fy := float64(y) + 0.5
		for x := 0; x < b.Dx(); x++ {
			fx := float64(x) + 0.5
			if fx < x0 || fx >= x1 || fy < y0 || fy >= y1 {
				img.Pix[y*img.Stride+x*4+3] = 0
			}
		}
	}
}

func maskTo(img *image.NRGBA, m transition.Mask, coverage float64) {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	for y := 0; y < b.Dy(); y++ {
		v := (float64(y)+0.5)/h*2 - 1
		for x := 0; x < b.Dx(); x++ {
			u := (float64(x)+0.5)/w*2 - 1
			if !InMask(m, coverage, u, v) {
				img.Pix[y*img.Stride+x*4+3] = 0
			}
		}
	}
}

// InMask reports whether the point (u, v) in -1..1 layer coordinates is
// revealed by mask m grown to coverage.
func InMask(m transition.Mask, coverage, u, v float64) bool {
	if coverage >= 1 {
		return true
	}
	if coverage <= 0 {
		return false
	}
	switch m {
	case transition.MaskCircle:
		r := coverage * math.Sqrt2
		return u*u+v*v <= r*r
	case transition.MaskRectangle:
		return math.Abs(u) <= coverage && math.Abs(v) <= coverage
	case transition.MaskDiamond:
		return math.Abs(u)+math.Abs(v) <= 2*coverage
	case transition.MaskStar:
		r, theta := math.Hypot(u, v), math.Atan2(v, u)
		spike := 0.6 + 0.4*math.Cos(5*(theta+math.Pi/2))
		return r <= coverage*2.2*spike
	case transition.MaskHeart:
		s := coverage * 1.8
		x, y := u/s, -(v/s)+0.25
		q := x*x + y*y - 1
		return q*q*q-x*x*y*y*y <= 0
	case transition.MaskClock:
		// sweep clockwise from twelve o'clock
		a := math.Atan2(u, -v)
		if a < 0 {
			a += 2 * math.Pi
		}
		return a <= coverage*2*math.Pi
	default:
		return true
	}
}
