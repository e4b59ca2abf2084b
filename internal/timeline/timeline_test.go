package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/montage/internal/domain"
)

func clip(id string, row int, start, end, trimStart, trimEnd float64) domain.Element {
	return domain.Element{
		ID:            id,
		Kind:          domain.KindMedia,
		Row:           row,
		PositionStart: start,
		PositionEnd:   end,
		Media: &domain.Media{
			Type:      domain.MediaVideo,
			Src:       domain.AssetID(id + ".mp4"),
			StartTime: trimStart,
			EndTime:   trimEnd,
		},
	}
}

func TestActiveBoundaries(t *testing.T) {
	p := domain.Project{Elements: []domain.Element{clip("a", 0, 2, 5, 0, 3)}}

	assert.Len(t, Active(p, 2), 1, "start is inclusive")
	assert.Len(t, Active(p, 4.999), 1)
	assert.Empty(t, Active(p, 5), "end is exclusive")
	assert.Empty(t, Active(p, 1.999))
}

func TestActiveOrdersByEffectiveZ(t *testing.T) {
	z := 5000
	top := clip("top", 3, 0, 10, 0, 10)
	top.ZIndex = &z
	p := domain.Project{Elements: []domain.Element{
		top,
		clip("front", 0, 0, 10, 0, 10),
		clip("back", 2, 0, 10, 0, 10),
	}}

	active := Active(p, 1)
	require.Len(t, active, 3)
	assert.Equal(t, []string{"back", "front", "top"}, []string{active[0].ID, active[1].ID, active[2].ID})
}

func TestSourceTimeIgnoresTimelinePosition(t *testing.T) {
	for _, start := range []float64{0, 10, 42.5, 300} {
		e := clip("c", 0, start, start+3, 2, 5)
		got := SourceTime(*e.Media, start+1-e.PositionStart)
		assert.InDelta(t, 3.0, got, 1e-9, "position start %v", start)
	}
}

func TestSourceTimeSpeedAndClamp(t *testing.T) {
	m := domain.Media{StartTime: 1, EndTime: 4, PlaybackSpeed: 2}
	assert.InDelta(t, 3.0, SourceTime(m, 1), 1e-9)
	assert.InDelta(t, 4.0, SourceTime(m, 10), 1e-9)
	assert.InDelta(t, 1.0, SourceTime(m, -1), 1e-9)
}

func TestSplitKeepsSourceContinuous(t *testing.T) {
	original := clip("orig", 0, 0, 10, 0, 10)

	left, right, err := Split(original, 5, "orig-2")
	require.NoError(t, err)

	assert.Equal(t, 5.0, left.PositionEnd)
	assert.Equal(t, 5.0, left.Media.EndTime)
	assert.Equal(t, 5.0, right.PositionStart)
	assert.Equal(t, 5.0, right.Media.StartTime)
	assert.Equal(t, "orig-2", right.ID)

	want := SourceTime(*original.Media, 5)
	assert.InDelta(t, want, SourceTime(*right.Media, 0), 1e-9)
	assert.InDelta(t, SourceTime(*original.Media, 7), SourceTime(*right.Media, 2), 1e-9)

	assert.Equal(t, 0.0, original.Media.StartTime, "split must not mutate its input")
}

func TestSplitRejectsOutOfRange(t *testing.T) {
	_, _, err := Split(clip("a", 0, 0, 4, 0, 4), 4, "b")
	assert.Error(t, err)
}

func TestNormalizeClampsDegenerateIntervals(t *testing.T) {
	p := domain.Project{Elements: []domain.Element{clip("z", 0, 3, 3, 1, 1)}}

	out := Normalize(p, 25)
	e := out.Elements[0]
	assert.InDelta(t, 3.04, e.PositionEnd, 1e-9)
	assert.InDelta(t, 1.04, e.Media.EndTime, 1e-9)
	assert.Equal(t, 3.0, p.Elements[0].PositionEnd)
}

func TestLinkRequiresAdjacency(t *testing.T) {
	p := domain.Project{Elements: []domain.Element{
		clip("a", 0, 0, 10, 0, 10),
		clip("b", 0, 10.5, 20, 0, 9.5),
		clip("c", 0, 25, 30, 0, 5),
		clip("d", 1, 10, 20, 0, 10),
	}}

	linked, err := Link(p, domain.Transition{FromID: "a", ToID: "b", Kind: "fade", Duration: 500})
	require.NoError(t, err)
	assert.Len(t, linked.Transitions, 1)
	assert.Empty(t, p.Transitions)

	_, err = Link(p, domain.Transition{FromID: "b", ToID: "c", Kind: "fade", Duration: 500})
	assert.Error(t, err, "gap larger than one second")

	_, err = Link(p, domain.Transition{FromID: "a", ToID: "d", Kind: "fade", Duration: 500})
	assert.Error(t, err, "different rows")

	relinked, err := Link(linked, domain.Transition{FromID: "a", ToID: "b", Kind: "wipe", Duration: 800})
	require.NoError(t, err)
	require.Len(t, relinked.Transitions, 1)
	assert.Equal(t, "wipe", relinked.Transitions[0].Kind)

	cleared, err := Link(relinked, domain.Transition{FromID: "a", ToID: "b", Kind: "none"})
	require.NoError(t, err)
	assert.Empty(t, cleared.Transitions)
}

func TestRemoveElementDropsTransitions(t *testing.T) {
	p := domain.Project{
		Elements:    []domain.Element{clip("a", 0, 0, 10, 0, 10), clip("b", 0, 9, 20, 0, 11)},
		Transitions: []domain.Transition{{FromID: "a", ToID: "b", Kind: "fade", Duration: 1000}},
	}

	out := RemoveElement(p, "b")
	assert.Len(t, out.Elements, 1)
	assert.Empty(t, out.Transitions)
	assert.Len(t, p.Transitions, 1)
}

func TestDropInvalidRemovesMismatchedElements(t *testing.T) {
	a := clip("a", 0, 0, 10, 0, 10)
	b := clip("b", 0, 9, 20, 0, 11)
	broken := domain.Element{ID: "broken", Kind: domain.KindText, PositionStart: 0, PositionEnd: 3}
	p := domain.Project{
		Elements:    []domain.Element{a, broken, b},
		Transitions: []domain.Transition{{FromID: "a", ToID: "b", Kind: "fade", Duration: 500}, {FromID: "broken", ToID: "b", Kind: "fade", Duration: 500}},
	}

	out, ids, problems := DropInvalid(p)
	assert.Equal(t, []string{"broken"}, ids)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0].Error(), "broken")
	require.Len(t, out.Elements, 2)
	require.Len(t, out.Transitions, 1)
	assert.Equal(t, "a", out.Transitions[0].FromID)
	assert.Len(t, p.Elements, 3, "input is not modified")
}

func TestFrameCount(t *testing.T) {
	assert.Equal(t, 300, FrameCount(10, 30))
	assert.Equal(t, 31, FrameCount(1.01, 30))
	assert.Equal(t, 0, FrameCount(0, 30))
}
