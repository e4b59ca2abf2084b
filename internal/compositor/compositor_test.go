package compositor

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/montage/internal/domain"
)

func video(id string, start, end, trimStart, trimEnd float64) domain.Element {
	return domain.Element{
		ID:            id,
		Kind:          domain.KindMedia,
		PositionStart: start,
		PositionEnd:   end,
		Media: &domain.Media{
			Type:      domain.MediaVideo,
			Src:       domain.AssetID(id),
			StartTime: trimStart,
			EndTime:   trimEnd,
		},
	}
}

func newCompositor() *Compositor {
	return New(Options{Logger: zerolog.Nop()})
}

func TestRenderFrameIntervalContainment(t *testing.T) {
	p := domain.Project{Width: 640, Height: 360, Elements: []domain.Element{video("a", 2, 5, 0, 3)}}
	c := newCompositor()

	cases := map[float64]int{1.999: 0, 2: 1, 4.999: 1, 5: 0}
	for at, want := range cases {
		f := c.RenderFrame(context.Background(), p, at)
		assert.Len(t, f.Layers, want, "t=%v", at)
	}
}

func TestRenderFrameSkipsMismatchedPayload(t *testing.T) {
	broken := domain.Element{ID: "broken", Kind: domain.KindMedia, PositionStart: 0, PositionEnd: 5}
	text := domain.Element{ID: "text", Kind: domain.KindText, PositionStart: 0, PositionEnd: 5, Media: &domain.Media{Type: domain.MediaImage, Src: "x"}}
	p := domain.Project{Width: 640, Height: 360, Elements: []domain.Element{broken, text, video("ok", 0, 5, 0, 5)}}

	f := newCompositor().RenderFrame(context.Background(), p, 1)
	require.Len(t, f.Layers, 1)
	assert.Equal(t, "ok", f.Layers[0].ElementID)
}

func TestRenderFrameAppliesGlobalChromaKey(t *testing.T) {
	global := &domain.ChromaKey{Color: "#00ff00", Similarity: 0.2}
	own := &domain.ChromaKey{Color: "#0000ff", Similarity: 0.1}

	keyed := video("keyed", 0, 5, 0, 5)
	keyed.Media.ChromaKey = own
	p := domain.Project{Elements: []domain.Element{video("plain", 0, 5, 0, 5), keyed}}

	c := New(Options{Logger: zerolog.Nop(), ChromaKey: global})
	f := c.RenderFrame(context.Background(), p, 1)
	require.Len(t, f.Layers, 2)
	for _, l := range f.Layers {
		switch l.ElementID {
		case "plain":
			assert.Equal(t, global, l.Media.ChromaKey)
		case "keyed":
			assert.Equal(t, own, l.Media.ChromaKey)
		}
	}

	plain := newCompositor().RenderFrame(context.Background(), p, 1)
	assert.NotEqual(t, plain.Hash, f.Hash)
}

func TestRenderFrameTrimIndependence(t *testing.T) {
	c := newCompositor()
	for _, start := range []float64{0, 10, 77} {
		p := domain.Project{Elements: []domain.Element{video("a", start, start+3, 2, 5)}}
		f := c.RenderFrame(context.Background(), p, start+1)
		require.Len(t, f.Layers, 1)
		assert.InDelta(t, 3.0, f.Layers[0].Media.SourceTime, 1e-9)
	}
}

func TestRenderFrameStacking(t *testing.T) {
	back := video("back", 0, 10, 0, 10)
	back.Row = 2
	front := video("front", 0, 10, 0, 10)
	p := domain.Project{Elements: []domain.Element{front, back}}

	f := newCompositor().RenderFrame(context.Background(), p, 1)
	require.Len(t, f.Layers, 2)
	assert.Equal(t, "back", f.Layers[0].ElementID)
	assert.Equal(t, "front", f.Layers[1].ElementID)
}

func TestRenderFrameSkipsUnresolvedSource(t *testing.T) {
	p := domain.Project{Elements: []domain.Element{video("ok", 0, 5, 0, 5), video("gone", 0, 5, 0, 5)}}
	c := New(Options{
		Logger:   zerolog.Nop(),
		Resolver: func(id domain.AssetID) bool { return id != "gone" },
	})

	f := c.RenderFrame(context.Background(), p, 1)
	require.Len(t, f.Layers, 1)
	assert.Equal(t, "ok", f.Layers[0].ElementID)
}

func TestRenderFrameSkipsAudio(t *testing.T) {
	a := video("music", 0, 5, 0, 5)
	a.Media.Type = domain.MediaAudio
	f := newCompositor().RenderFrame(context.Background(), domain.Project{Elements: []domain.Element{a}}, 1)
	assert.Empty(t, f.Layers)
}

func TestFilterOrder(t *testing.T) {
	e := video("a", 0, 10, 0, 10)
	e.Rotation = 15
	e.Opacity = 50
	e.OpacitySet = true
	e.Media.Effects = domain.Effects{Blur: 2, Saturation: 150}
	e.Media.Entrance = &domain.Envelope{Kind: "zoom-in", Duration: 2}

	f := newCompositor().RenderFrame(context.Background(), domain.Project{Elements: []domain.Element{e}}, 1)
	require.Len(t, f.Layers, 1)

	var stages []Stage
	for _, fl := range f.Layers[0].Filters {
		stages = append(stages, fl.Stage)
	}
	require.NotEmpty(t, stages)
	for i := 1; i < len(stages); i++ {
		assert.LessOrEqual(t, int(stages[i-1]), int(stages[i]), "filters out of order: %v", f.Layers[0].Filters)
	}
	assert.Equal(t, StageTransform, stages[0])
	assert.Equal(t, StageOpacity, stages[len(stages)-1])
	assert.InDelta(t, 0.25, f.Layers[0].Filters[len(stages)-1].Value, 1e-9)
}

func TestEmptyCaptionTrackRendersNothing(t *testing.T) {
	e := domain.Element{ID: "cap", Kind: domain.KindCaption, PositionEnd: 5, Caption: &domain.CaptionTrack{}}
	f := newCompositor().RenderFrame(context.Background(), domain.Project{Elements: []domain.Element{e}}, 1)
	assert.Empty(t, f.Layers)
}

func TestCaptionLayer(t *testing.T) {
	e := domain.Element{ID: "cap", Kind: domain.KindCaption, PositionEnd: 5, Caption: &domain.CaptionTrack{
		Captions: []domain.Caption{{ID: "c1", Text: "hello world", StartMs: 0, EndMs: 2000}},
	}}
	f := newCompositor().RenderFrame(context.Background(), domain.Project{Elements: []domain.Element{e}}, 1)
	require.Len(t, f.Layers, 1)
	require.NotNil(t, f.Layers[0].Caption)
	assert.Equal(t, "c1", f.Layers[0].Caption.CaptionID)
}

func TestTextLayerWrapsToWidth(t *testing.T) {
	e := domain.Element{ID: "txt", Kind: domain.KindText, PositionEnd: 5, Width: 60, Text: &domain.Text{
		Text: "the quick brown fox", FontSize: 10,
		Background: domain.TextBackground{Shape: domain.ShapePill},
	}}
	f := newCompositor().RenderFrame(context.Background(), domain.Project{Width: 100, Height: 100, Elements: []domain.Element{e}}, 1)
	require.Len(t, f.Layers, 1)
	assert.Equal(t, []string{"the quick", "brown fox"}, f.Layers[0].Text.Block.Lines)
	require.NotNil(t, f.Layers[0].Text.Clip)
	assert.Equal(t, domain.ShapePill, f.Layers[0].Text.Clip.Shape)
}

type fakeConversation struct {
	err  error
	seen float64
}

func (f *fakeConversation) Render(_ context.Context, _ domain.Conversation, t, _ float64, size image.Point) (image.Image, error) {
	f.seen = t
	if f.err != nil {
		return nil, f.err
	}
	return image.NewRGBA(image.Rectangle{Max: size}), nil
}

func TestConversationDelegates(t *testing.T) {
	e := domain.Element{ID: "chat", Kind: domain.KindConversation, PositionStart: 2, PositionEnd: 8, Width: 200, Height: 100, Conversation: &domain.Conversation{}}
	p := domain.Project{Elements: []domain.Element{e}}

	r := &fakeConversation{}
	f := New(Options{Logger: zerolog.Nop(), Conversations: r}).RenderFrame(context.Background(), p, 3)
	require.Len(t, f.Layers, 1)
	assert.InDelta(t, 1.0, r.seen, 1e-9)
	assert.Equal(t, image.Rect(0, 0, 200, 100), f.Layers[0].Conversation.Image.Bounds())

	r.err = errors.New("boom")
	f = New(Options{Logger: zerolog.Nop(), Conversations: r}).RenderFrame(context.Background(), p, 3)
	assert.Empty(t, f.Layers)
}

func TestHashStableAndSensitive(t *testing.T) {
	p := domain.Project{Elements: []domain.Element{video("a", 0, 10, 0, 10)}}
	c := newCompositor()

	a := c.RenderFrame(context.Background(), p, 1)
	b := c.RenderFrame(context.Background(), p.Clone(), 1)
	assert.Equal(t, a.Hash, b.Hash)

	later := c.RenderFrame(context.Background(), p, 2)
	assert.NotEqual(t, a.Hash, later.Hash)
}
