package canvas

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"

	"github.com/eleven-am/montage/internal/domain"
	"github.com/eleven-am/montage/internal/textfx"
)

// fallbackSize is the pixel height of basicfont.Face7x13.
const fallbackSize = 13.0

type faceKey struct {
	family string
	size   float64
}

type lockedFace struct {
	mu   sync.Mutex
	face font.Face
	// scale maps the face's native size to the requested size. Only the
	// bitmap fallback needs it.
	scale float64
}

// FontBook holds parsed fonts by family and hands out sized faces. Faces are
// not safe for concurrent use so every use goes through Use.
type FontBook struct {
	mu    sync.RWMutex
	fonts map[string]*opentype.Font
	faces map[faceKey]*lockedFace
}

func NewFontBook() *FontBook {
	return &FontBook{
		fonts: make(map[string]*opentype.Font),
		faces: make(map[faceKey]*lockedFace),
	}
}

func (b *FontBook) Register(family string, data []byte) error {
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font %s: %w", family, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fonts[family] = f
	for k := range b.faces {
		if k.family == family {
			delete(b.faces, k)
		}
	}
	return nil
}

func (b *FontBook) RegisterFile(family, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %s: %w", family, err)
	}
	return b.Register(family, data)
}

// RegisterAll registers every family to path entry, returning the first
// error after trying all of them.
func (b *FontBook) RegisterAll(paths map[string]string) error {
	var first error
	for family, path := range paths {
		if err := b.RegisterFile(family, path); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (b *FontBook) Has(family string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.fonts[family]
	return ok
}

func (b *FontBook) face(family string, size float64) *lockedFace {
	if size <= 0 {
		size = 48
	}
	key := faceKey{family: family, size: size}

	b.mu.RLock()
	lf, ok := b.faces[key]
	fnt, known := b.fonts[family]
	b.mu.RUnlock()
	if ok {
		return lf
	}

	lf = &lockedFace{face: basicfont.Face7x13, scale: size / fallbackSize}
	if known {
		face, err := opentype.NewFace(fnt, &opentype.FaceOptions{
			Size:    size,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err == nil {
			lf = &lockedFace{face: face, scale: 1}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.faces[key]; ok {
		return existing
	}
	b.faces[key] = lf
	return lf
}

// Use runs fn with exclusive access to the face for family at size. scale is
// the factor the drawn glyphs must be resized by.
func (b *FontBook) Use(family string, size float64, fn func(face font.Face, scale float64)) {
	lf := b.face(family, size)
	lf.mu.Lock()
	defer lf.mu.Unlock()
	fn(lf.face, lf.scale)
}

// Measurer measures text in the style's font, for the compositor's wrapping.
func (b *FontBook) Measurer(t domain.Text) textfx.Measurer {
	return faceMeasurer{book: b, family: t.FontFamily, size: t.FontSize}
}

type faceMeasurer struct {
	book   *FontBook
	family string
	size   float64
}

func (m faceMeasurer) Measure(s string) float64 {
	var w float64
	m.book.Use(m.family, m.size, func(face font.Face, scale float64) {
		w = float64(font.MeasureString(face, s)) / 64 * scale
	})
	return w
}
