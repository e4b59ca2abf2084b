package domain

import "fmt"

type AssetID string

type ElementKind string

const (
	KindMedia        ElementKind = "media"
	KindText         ElementKind = "text"
	KindCaption      ElementKind = "caption"
	KindConversation ElementKind = "conversation"
)

type MediaType string

const (
	MediaVideo    MediaType = "video"
	MediaImage    MediaType = "image"
	MediaAudio    MediaType = "audio"
	MediaAnimated MediaType = "animated"
)

const (
	ZBaseline = 1000
	ZRowStep  = 10
)

// Element is one timed item on the timeline. Exactly one of Media, Text,
// Caption or Conversation is set, matching Kind.
type Element struct {
	ID            string
	Kind          ElementKind
	PositionStart float64
	PositionEnd   float64
	Row           int
	ZIndex        *int

	// Opacity is a percentage. The zero value renders fully opaque unless
	// OpacitySet is true.
	Opacity    float64
	OpacitySet bool
	Rotation   float64

	X      float64
	Y      float64
	Width  float64
	Height float64

	Media        *Media
	Text         *Text
	Caption      *CaptionTrack
	Conversation *Conversation
}

func (e Element) Duration() float64 {
	return e.PositionEnd - e.PositionStart
}

func (e Element) Z() int {
	if e.ZIndex != nil {
		return *e.ZIndex
	}
	return ZBaseline - e.Row*ZRowStep
}

// Alpha returns the element opacity as a 0..1 factor.
func (e Element) Alpha() float64 {
	if !e.OpacitySet {
		return 1
	}
	a := e.Opacity / 100
	if a < 0 {
		return 0
	}
	if a > 1 {
		return 1
	}
	return a
}

func (e Element) Contains(t float64) bool {
	return e.PositionStart <= t && t < e.PositionEnd
}

func (e Element) Validate() error {
	set := 0
	if e.Media != nil {
		set++
	}
	if e.Text != nil {
		set++
	}
	if e.Caption != nil {
		set++
	}
	if e.Conversation != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("element %s: expected exactly one payload, got %d", e.ID, set)
	}

	var ok bool
	switch e.Kind {
	case KindMedia:
		ok = e.Media != nil
	case KindText:
		ok = e.Text != nil
	case KindCaption:
		ok = e.Caption != nil
	case KindConversation:
		ok = e.Conversation != nil
	}
	if !ok {
		return fmt.Errorf("element %s: payload does not match kind %q", e.ID, e.Kind)
	}
	return nil
}

type Effects struct {
	Blur       float64
	Brightness float64
	Contrast   float64
	Saturation float64
}

// IsZero reports whether the effects leave the image untouched. Contrast and
// saturation are percentages where 100 (or unset) is neutral.
func (f Effects) IsZero() bool {
	return f.Blur == 0 && f.Brightness == 0 && neutralPercent(f.Contrast) && neutralPercent(f.Saturation)
}

func neutralPercent(v float64) bool {
	return v == 0 || v == 100
}

type Envelope struct {
	Kind      string
	Duration  float64
	Direction string
}

type ChromaKey struct {
	Color      string
	Similarity float64
	Blend      float64
}

type Media struct {
	Type          MediaType
	Src           AssetID
	StartTime     float64
	EndTime       float64
	PlaybackSpeed float64
	Volume        float64
	VolumeSet     bool
	Muted         bool
	Effects       Effects
	Entrance      *Envelope
	Exit          *Envelope
	ChromaKey     *ChromaKey
	FadeIn        float64
	FadeOut       float64
	Loop          bool
}

func (m Media) Speed() float64 {
	if m.PlaybackSpeed <= 0 {
		return 1
	}
	return m.PlaybackSpeed
}

func (m Media) Gain() float64 {
	if !m.VolumeSet {
		return 1
	}
	if m.Volume < 0 {
		return 0
	}
	return m.Volume
}

func (m Media) HasVisual() bool {
	return m.Type != MediaAudio
}

func (m Media) HasAudio() bool {
	return !m.Muted && (m.Type == MediaVideo || m.Type == MediaAudio)
}

type BackgroundShape string

const (
	ShapeNone      BackgroundShape = ""
	ShapeRectangle BackgroundShape = "rectangle"
	ShapeRounded   BackgroundShape = "rounded"
	ShapePill      BackgroundShape = "pill"
	ShapeBubble    BackgroundShape = "bubble"
	ShapeMarker    BackgroundShape = "marker"
	ShapeUnderline BackgroundShape = "underline"
	ShapeSpeech    BackgroundShape = "speech"
)

type TextBackground struct {
	Shape   BackgroundShape
	Color   string
	Padding float64
}

type TextAnimation struct {
	Kind     string
	Duration float64
}

type Text struct {
	Text          string
	FontFamily    string
	FontSize      float64
	FontWeight    int
	Color         string
	StrokeColor   string
	StrokeWidth   float64
	Background    TextBackground
	Align         string
	LineHeight    float64
	AnimationIn   *TextAnimation
	AnimationOut  *TextAnimation
	AnimationLoop *TextAnimation
}

type Conversation struct {
	Participants []Participant
	Messages     []Message
}

type Participant struct {
	ID     string
	Name   string
	Avatar AssetID
	Side   string
}

type Message struct {
	ParticipantID string
	Text          string
	Delay         float64
}
