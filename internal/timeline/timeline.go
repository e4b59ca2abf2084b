// Package timeline holds the pure operations over a project snapshot:
// activity tests, stacking order, trim mapping, splitting and transition
// bookkeeping. Nothing here mutates its input.
package timeline

import (
	"fmt"
	"math"
	"sort"

	"github.com/eleven-am/montage/internal/domain"
)

// MaxTransitionGap is the largest gap, in seconds, two clips may have and
// still be joined by a transition.
const MaxTransitionGap = 1.0

type Interval struct {
	Start float64
	End   float64
}

func (i Interval) Len() float64 { return i.End - i.Start }

func IntervalOf(e domain.Element) Interval {
	return Interval{Start: e.PositionStart, End: e.PositionEnd}
}

// Active returns the elements visible at t in ascending stacking order.
func Active(p domain.Project, t float64) []domain.Element {
	var out []domain.Element
	for _, e := range p.Elements {
		if e.Contains(t) {
			out = append(out, e)
		}
	}
	SortByZ(out)
	return out
}

// SortByZ orders elements back to front. Ties fall back to row, start time and
// id so the order never depends on input order.
func SortByZ(els []domain.Element) {
	sort.SliceStable(els, func(i, j int) bool {
		a, b := els[i], els[j]
		if a.Z() != b.Z() {
			return a.Z() < b.Z()
		}
		if a.Row != b.Row {
			return a.Row > b.Row
		}
		if a.PositionStart != b.PositionStart {
			return a.PositionStart < b.PositionStart
		}
		return a.ID < b.ID
	})
}

// SourceTime maps a time relative to the element start onto the media trim
// window. The absolute timeline position never enters the computation.
func SourceTime(m domain.Media, relative float64) float64 {
	if relative < 0 {
		relative = 0
	}
	st := m.StartTime + relative*m.Speed()
	if m.EndTime > m.StartTime && st > m.EndTime {
		st = m.EndTime
	}
	return st
}

// Split cuts a media element at timeline time at. The second half's trim
// window starts where the first one ends so playback stays continuous.
func Split(e domain.Element, at float64, rightID string) (domain.Element, domain.Element, error) {
	if e.Media == nil {
		return e, e, fmt.Errorf("element %s: only media elements can be split", e.ID)
	}
	if at <= e.PositionStart || at >= e.PositionEnd {
		return e, e, fmt.Errorf("element %s: split point %.3f outside (%.3f, %.3f)", e.ID, at, e.PositionStart, e.PositionEnd)
	}

	left, right := e.Clone(), e.Clone()

	offset := SourceTime(*e.Media, at-e.PositionStart)

	left.PositionEnd = at
	left.Media.EndTime = offset
	left.Media.Exit = nil

	right.ID = rightID
	right.PositionStart = at
	right.Media.StartTime = offset
	right.Media.Entrance = nil

	return left, right, nil
}

// Normalize clamps degenerate intervals and trim windows to one frame so
// downstream math never divides by zero.
func Normalize(p domain.Project, fps float64) domain.Project {
	if fps <= 0 {
		fps = 30
	}
	frame := 1 / fps

	out := p.Clone()
	for i := range out.Elements {
		e := &out.Elements[i]
		if e.PositionStart < 0 {
			e.PositionStart = 0
		}
		if e.PositionEnd-e.PositionStart < frame {
			e.PositionEnd = e.PositionStart + frame
		}
		if e.Media != nil {
			m := e.Media
			if m.StartTime < 0 {
				m.StartTime = 0
			}
			if m.EndTime > 0 && m.EndTime-m.StartTime < frame {
				m.EndTime = m.StartTime + frame
			}
		}
	}
	return out
}

// Adjacent reports whether two media clips on the same row are close enough
// to be joined by a transition.
func Adjacent(a, b domain.Element) bool {
	if a.Media == nil || b.Media == nil || a.Row != b.Row || a.ID == b.ID {
		return false
	}
	if a.PositionStart > b.PositionStart {
		a, b = b, a
	}
	gap := b.PositionStart - a.PositionEnd
	return gap <= MaxTransitionGap
}

// Link returns a copy of p with a transition between from and to. Kind "none"
// removes any existing transition instead.
func Link(p domain.Project, t domain.Transition) (domain.Project, error) {
	if t.Kind == "" || t.Kind == "none" {
		return Unlink(p, t.FromID, t.ToID), nil
	}

	from, ok := p.Element(t.FromID)
	if !ok {
		return p, fmt.Errorf("transition: element %s not found", t.FromID)
	}
	to, ok := p.Element(t.ToID)
	if !ok {
		return p, fmt.Errorf("transition: element %s not found", t.ToID)
	}
	if !Adjacent(from, to) {
		return p, fmt.Errorf("transition: %s and %s are not adjacent", t.FromID, t.ToID)
	}

	out := Unlink(p, t.FromID, t.ToID)
	out.Transitions = append(out.Transitions, t)
	return out, nil
}

func Unlink(p domain.Project, fromID, toID string) domain.Project {
	out := p.Clone()
	kept := out.Transitions[:0]
	for _, t := range out.Transitions {
		if t.FromID == fromID && t.ToID == toID {
			continue
		}
		kept = append(kept, t)
	}
	out.Transitions = kept
	return out
}

// RemoveElement drops an element and every transition referencing it.
func RemoveElement(p domain.Project, id string) domain.Project {
	out := p.Clone()
	els := out.Elements[:0]
	for _, e := range out.Elements {
		if e.ID != id {
			els = append(els, e)
		}
	}
	out.Elements = els

	trs := out.Transitions[:0]
	for _, t := range out.Transitions {
		if t.FromID != id && t.ToID != id {
			trs = append(trs, t)
		}
	}
	out.Transitions = trs
	return out
}

// DropInvalid removes every element whose payload does not match its kind,
// along with the transitions referencing it. The ids of dropped elements are
// returned in project order with their validation errors.
func DropInvalid(p domain.Project) (domain.Project, []string, []error) {
	var ids []string
	var errs []error
	for _, e := range p.Elements {
		if err := e.Validate(); err != nil {
			ids = append(ids, e.ID)
			errs = append(errs, err)
		}
	}
	for _, id := range ids {
		p = RemoveElement(p, id)
	}
	return p, ids, errs
}

// TransitionsFor returns the transitions an element participates in, split by
// role.
func TransitionsFor(p domain.Project, id string) (incoming, outgoing []domain.Transition) {
	for _, t := range p.Transitions {
		if t.ToID == id {
			incoming = append(incoming, t)
		}
		if t.FromID == id {
			outgoing = append(outgoing, t)
		}
	}
	return incoming, outgoing
}

// FrameCount returns the number of whole frames in duration at fps.
func FrameCount(duration, fps float64) int {
	if duration <= 0 || fps <= 0 {
		return 0
	}
	return int(math.Ceil(duration*fps - 1e-9))
}
