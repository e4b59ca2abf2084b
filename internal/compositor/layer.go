package compositor

import (
	"image"

	"github.com/eleven-am/montage/internal/caption"
	"github.com/eleven-am/montage/internal/domain"
	"github.com/eleven-am/montage/internal/textfx"
	"github.com/eleven-am/montage/internal/transition"
)

// Stage orders the filters applied to a layer.
type Stage int

const (
	StageTransform Stage = iota
	StageColor
	StageTransition
	StageOpacity
)

func (s Stage) String() string {
	switch s {
	case StageTransform:
		return "transform"
	case StageColor:
		return "color"
	case StageTransition:
		return "transition"
	case StageOpacity:
		return "opacity"
	default:
		return "unknown"
	}
}

type Filter struct {
	Stage Stage
	Name  string
	Value float64
}

// Rect is a placement in output pixels.
type Rect struct {
	X, Y, W, H float64
}

type MediaLayer struct {
	Type       domain.MediaType
	Source     domain.AssetID
	SourceTime float64
	ChromaKey  *domain.ChromaKey
}

type TextLayer struct {
	Style domain.Text
	Block textfx.Block
	State textfx.State
	Clip  *textfx.ClipRule
}

type ConversationLayer struct {
	Image image.Image
}

// Layer is one element resolved at a frame time.
type Layer struct {
	ElementID  string
	Kind       domain.ElementKind
	Z          int
	Rect       Rect
	Rotation   float64
	Opacity    float64
	Transition transition.Params
	Filters    []Filter

	Media        *MediaLayer
	Text         *TextLayer
	Caption      *caption.Render
	Conversation *ConversationLayer
}

// Frame is the layer tree at one instant, back to front.
type Frame struct {
	Time       float64
	Width      int
	Height     int
	Background string
	Layers     []Layer
	Hash       uint64
}
