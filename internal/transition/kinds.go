// Package transition computes transition timing and per-kind visual
// parameters. Both the preview compositor and the filter graph compiler
// derive their progress ratios from the same Window math.
package transition

import (
	"math"
	"sync"
)

type Kind string

const (
	Fade      Kind = "fade"
	Slide     Kind = "slide"
	Wipe      Kind = "wipe"
	Flip      Kind = "flip"
	ClockWipe Kind = "clock-wipe"
	Star      Kind = "star"
	Heart     Kind = "heart"
	Diamond   Kind = "diamond"
	Circle    Kind = "circle"
	Rectangle Kind = "rectangle"
	ZoomIn    Kind = "zoom-in"
	ZoomOut   Kind = "zoom-out"
	Blur      Kind = "blur"
	Pixelate  Kind = "pixelate"
	Dissolve  Kind = "dissolve"
	Spin      Kind = "spin"
	Squeeze   Kind = "squeeze"
	Rotate    Kind = "rotate"
	Ripple    Kind = "ripple"
)

type Role int

const (
	// RoleIn is the clip appearing.
	RoleIn Role = iota
	// RoleOut is the clip disappearing.
	RoleOut
)

type Mask string

const (
	MaskNone      Mask = ""
	MaskCircle    Mask = "circle"
	MaskRectangle Mask = "rectangle"
	MaskStar      Mask = "star"
	MaskHeart     Mask = "heart"
	MaskDiamond   Mask = "diamond"
	MaskClock     Mask = "clock"
)

// Rect is expressed in fractions of the layer size.
type Rect struct {
	X, Y, W, H float64
}

var fullRect = Rect{W: 1, H: 1}

type Params struct {
	Opacity float64
	Clip    Rect

	// Mask reveals the layer through a shape grown to MaskCoverage (0..1).
	Mask         Mask
	MaskCoverage float64

	// Translate is in fractions of the frame size.
	TranslateX float64
	TranslateY float64
	ScaleX     float64
	ScaleY     float64
	Rotation   float64
	Blur       float64
	Pixelate   float64
	Ripple     float64
}

func Identity() Params {
	return Params{Opacity: 1, Clip: fullRect, ScaleX: 1, ScaleY: 1, MaskCoverage: 1}
}

func (p Params) IsIdentity() bool {
	return p == Identity()
}

// Combine stacks two parameter sets, e.g. an entrance envelope and a
// clip-to-clip transition active at the same instant.
func Combine(a, b Params) Params {
	out := a
	out.Opacity = a.Opacity * b.Opacity
	out.Clip = intersect(a.Clip, b.Clip)
	if b.Mask != MaskNone {
		out.Mask = b.Mask
		out.MaskCoverage = b.MaskCoverage
	}
	out.TranslateX += b.TranslateX
	out.TranslateY += b.TranslateY
	out.ScaleX *= b.ScaleX
	out.ScaleY *= b.ScaleY
	out.Rotation += b.Rotation
	out.Blur += b.Blur
	out.Pixelate = math.Max(a.Pixelate, b.Pixelate)
	out.Ripple += b.Ripple
	return out
}

func intersect(a, b Rect) Rect {
	x0 := math.Max(a.X, b.X)
	y0 := math.Max(a.Y, b.Y)
	x1 := math.Min(a.X+a.W, b.X+b.W)
	y1 := math.Min(a.Y+a.H, b.Y+b.H)
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Func maps a progress ratio to visual parameters for one role.
type Func func(progress float64, direction string, role Role) Params

var (
	mu       sync.RWMutex
	registry = map[Kind]Func{}
)

// Register adds or replaces a kind.
func Register(kind Kind, fn Func) {
	mu.Lock()
	defer mu.Unlock()
	registry[kind] = fn
}

func Lookup(kind Kind) (Func, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[kind]
	return fn, ok
}

// Compute evaluates kind at progress. Unknown kinds render as a fade.
func Compute(kind Kind, progress float64, direction string, role Role) Params {
	fn, ok := Lookup(kind)
	if !ok {
		fn = fade
	}
	return fn(clamp01(progress), direction, role)
}

// Offline returns the kind the batch encoder renders for kind. Kinds whose
// geometry has no filter expression degrade to a fade.
func Offline(kind Kind) Kind {
	switch kind {
	case Fade, Dissolve:
		return Fade
	case Slide:
		return Slide
	case Rotate:
		return Rotate
	default:
		return Fade
	}
}

// visibility is the share of the layer that is shown at progress for role.
func visibility(p float64, role Role) float64 {
	if role == RoleIn {
		return p
	}
	return 1 - p
}

func init() {
	Register(Fade, fade)
	Register(Dissolve, dissolve)
	Register(Slide, slide)
	Register(Wipe, wipe)
	Register(Flip, flip)
	Register(ClockWipe, masked(MaskClock))
	Register(Star, masked(MaskStar))
	Register(Heart, masked(MaskHeart))
	Register(Diamond, masked(MaskDiamond))
	Register(Circle, masked(MaskCircle))
	Register(Rectangle, masked(MaskRectangle))
	Register(ZoomIn, zoomIn)
	Register(ZoomOut, zoomOut)
	Register(Blur, blur)
	Register(Pixelate, pixelate)
	Register(Spin, spin)
	Register(Squeeze, squeeze)
	Register(Rotate, rotate)
	Register(Ripple, ripple)
}
