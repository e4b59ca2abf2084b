package domain

type Transition struct {
	FromID    string
	ToID      string
	Kind      string
	Duration  float64 // milliseconds
	Direction string
}

func (t Transition) Seconds() float64 {
	return t.Duration / 1000
}

// Project is the timeline model snapshot every render and export operates on.
type Project struct {
	Width       int
	Height      int
	FPS         float64
	Background  string
	Elements    []Element
	Transitions []Transition
}

func (p Project) Element(id string) (Element, bool) {
	for _, e := range p.Elements {
		if e.ID == id {
			return e, true
		}
	}
	return Element{}, false
}

func (p Project) Duration() float64 {
	var d float64
	for _, e := range p.Elements {
		if e.PositionEnd > d {
			d = e.PositionEnd
		}
	}
	return d
}

// Clone returns a deep copy so an export can hold a snapshot while the
// caller keeps editing.
func (p Project) Clone() Project {
	out := p
	out.Elements = make([]Element, len(p.Elements))
	for i, e := range p.Elements {
		out.Elements[i] = e.Clone()
	}
	out.Transitions = append([]Transition(nil), p.Transitions...)
	return out
}

// Clone returns a deep copy of the element and its payload.
func (e Element) Clone() Element {
	out := e
	if e.ZIndex != nil {
		z := *e.ZIndex
		out.ZIndex = &z
	}
	if e.Media != nil {
		m := *e.Media
		if m.Entrance != nil {
			v := *m.Entrance
			m.Entrance = &v
		}
		if m.Exit != nil {
			v := *m.Exit
			m.Exit = &v
		}
		if m.ChromaKey != nil {
			v := *m.ChromaKey
			m.ChromaKey = &v
		}
		out.Media = &m
	}
	if e.Text != nil {
		t := *e.Text
		for _, a := range []**TextAnimation{&t.AnimationIn, &t.AnimationOut, &t.AnimationLoop} {
			if *a != nil {
				v := **a
				*a = &v
			}
		}
		out.Text = &t
	}
	if e.Caption != nil {
		c := *e.Caption
		c.Captions = make([]Caption, len(e.Caption.Captions))
		for i, cue := range e.Caption.Captions {
			cue.Words = append([]WordToken(nil), cue.Words...)
			cue.Highlights = append([]HighlightSpan(nil), cue.Highlights...)
			c.Captions[i] = cue
		}
		out.Caption = &c
	}
	if e.Conversation != nil {
		c := Conversation{
			Participants: append([]Participant(nil), e.Conversation.Participants...),
			Messages:     append([]Message(nil), e.Conversation.Messages...),
		}
		out.Conversation = &c
	}
	return out
}
