package montage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/montage/internal/config"
	"github.com/eleven-am/montage/internal/domain"
)

type stubAssets struct {
	mu    sync.Mutex
	data  map[domain.AssetID][]byte
	calls map[domain.AssetID]int
}

func newStubAssets() *stubAssets {
	return &stubAssets{data: make(map[domain.AssetID][]byte), calls: make(map[domain.AssetID]int)}
}

func (s *stubAssets) Fetch(ctx context.Context, id domain.AssetID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[id]++
	data, ok := s.data[id]
	if !ok {
		return nil, fmt.Errorf("asset %s not found", id)
	}
	return data, nil
}

func (s *stubAssets) count(id domain.AssetID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func solidPNG(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// installFakeFFmpeg writes ffmpeg and ffprobe stubs. ffmpeg answers hardware
// detection queries and otherwise writes a small file to its last argument.
func installFakeFFmpeg(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	ffmpeg := filepath.Join(dir, "ffmpeg")
	content := `#!/bin/sh
if [ "$2" = "-hwaccels" ]; then
echo "Hardware acceleration methods:"; echo cuda; echo videotoolbox; exit 0; fi
if [ "$2" = "-encoders" ]; then
echo " V....D h264_nvenc           NVIDIA NVENC H.264 encoder"; exit 0; fi
for a; do out="$a"; done
echo "progress=end" >&2
printf 'exported' > "$out"
`
	require.NoError(t, os.WriteFile(ffmpeg, []byte(content), 0755))

	ffprobe := filepath.Join(dir, "ffprobe")
	probe := `#!/bin/sh
echo '{"streams":[{"index":0,"codec_name":"h264","codec_type":"video","width":320,"height":180,"r_frame_rate":"30/1"}],"format":{"duration":"5.0"}}'
`
	require.NoError(t, os.WriteFile(ffprobe, []byte(probe), 0755))
	return ffmpeg, ffprobe
}

func testOptions(t *testing.T, assets AssetSource) Options {
	t.Helper()
	ffmpeg, ffprobe := installFakeFFmpeg(t)
	dir := t.TempDir()
	logger := zerolog.Nop()
	return Options{
		Assets:      assets,
		Logger:      &logger,
		FFmpegPath:  ffmpeg,
		FFprobePath: ffprobe,
		Threads:     1,
		WorkDir:     filepath.Join(dir, "work"),
		OutputDir:   filepath.Join(dir, "out"),
	}
}

func imageClip(id string, src domain.AssetID, row int, w, h float64) domain.Element {
	return domain.Element{
		ID:            id,
		Kind:          domain.KindMedia,
		PositionStart: 0,
		PositionEnd:   2,
		Row:           row,
		Width:         w,
		Height:        h,
		Media:         &domain.Media{Type: domain.MediaImage, Src: src},
	}
}

func TestRenderFrameWorksWithoutStart(t *testing.T) {
	svc := NewController(testOptions(t, newStubAssets()))

	p := Project{
		Width:  16,
		Height: 16,
		FPS:    30,
		Elements: []Element{
			imageClip("back", "a", 1, 16, 16),
			imageClip("front", "b", 0, 8, 8),
		},
	}

	f := svc.RenderFrame(p, 1)
	require.Len(t, f.Layers, 2)
	assert.Equal(t, "back", f.Layers[0].ElementID)
	assert.Equal(t, "front", f.Layers[1].ElementID)
	assert.NotZero(t, f.Hash)

	assert.Equal(t, f.Hash, svc.RenderFrame(p, 1).Hash, "render is not deterministic")
	assert.Empty(t, svc.RenderFrame(p, 3).Layers, "no layers after the last element")
}

func TestRasterizeFrameRequiresStart(t *testing.T) {
	svc := NewController(testOptions(t, newStubAssets()))

	_, err := svc.RasterizeFrame(context.Background(), Project{}, 0)
	assert.Error(t, err)
	_, err = svc.StartExport(context.Background(), Project{}, RenderSettings{})
	assert.Error(t, err)
}

func TestRasterizeFrameLoadsAssetsOnce(t *testing.T) {
	assets := newStubAssets()
	assets.data["red"] = solidPNG(t, color.NRGBA{R: 255, A: 255})

	svc := NewController(testOptions(t, assets))
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	p := Project{
		Width:      8,
		Height:     8,
		FPS:        30,
		Background: "#000000",
		Elements: []Element{
			imageClip("clip", "red", 0, 8, 8),
			imageClip("broken", "gone", 1, 8, 8),
		},
	}

	for _, at := range []float64{0, 0.5} {
		img, err := svc.RasterizeFrame(context.Background(), p, at)
		require.NoError(t, err, "rasterize at %v", at)
		got := img.RGBAAt(4, 4)
		assert.GreaterOrEqual(t, int(got.R), 250, "red pixel at %v", at)
		assert.Zero(t, got.G)
		assert.Zero(t, got.B)
	}

	assert.Equal(t, 1, assets.count("red"), "a broken neighbour must not force a refetch")
	assert.Equal(t, 1, assets.count("gone"), "a broken asset is tried once")
}

func TestExportLifecycle(t *testing.T) {
	assets := newStubAssets()
	assets.data["clip"] = []byte("video bytes")

	opts := testOptions(t, assets)
	svc := NewController(opts)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	p := Project{
		Width:  320,
		Height: 180,
		FPS:    30,
		Elements: []Element{{
			ID:            "v",
			Kind:          domain.KindMedia,
			PositionStart: 0,
			PositionEnd:   1,
			Width:         320,
			Height:        180,
			Media:         &domain.Media{Type: domain.MediaVideo, Src: "clip"},
		}},
	}

	job, err := svc.StartExport(context.Background(), p, RenderSettings{Format: FormatMP4})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	res, err := job.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, opts.OutputDir, filepath.Dir(res.Path))
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "exported", string(data))
	assert.Equal(t, "video/mp4", res.MIME)
	assert.Equal(t, int64(len(data)), res.Size)
	assert.Equal(t, domain.JobSucceeded, job.State())

	assert.ErrorIs(t, svc.CancelExport(job.ID()), ErrJobNotFound, "a finished job cannot be cancelled")
}

func TestStartDetectsHardwareEncoder(t *testing.T) {
	opts := testOptions(t, newStubAssets())
	opts.HWAccel = true

	svc := NewController(opts)
	assert.Equal(t, domain.AccelNone, svc.Accelerator(), "software before Start")
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	assert.Equal(t, domain.AccelCUDA, svc.Accelerator())
	assert.Error(t, svc.Start(context.Background()), "second Start")
}

func TestStopRemovesPreviewWorkspace(t *testing.T) {
	assets := newStubAssets()
	assets.data["red"] = solidPNG(t, color.NRGBA{R: 255, A: 255})
	opts := testOptions(t, assets)

	svc := NewController(opts)
	require.NoError(t, svc.Start(context.Background()))
	p := Project{Width: 8, Height: 8, Elements: []Element{imageClip("clip", "red", 0, 8, 8)}}
	_, err := svc.RasterizeFrame(context.Background(), p, 0)
	require.NoError(t, err)
	svc.Stop()

	entries, err := os.ReadDir(opts.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	svc.Stop()
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.FFmpeg.BinaryPath = "/opt/ffmpeg"
	cfg.FFmpeg.HWAccel = true
	cfg.Stream.MaxElements = 12
	cfg.Fonts.TTL = time.Hour

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "/opt/ffmpeg", opts.FFmpegPath)
	assert.True(t, opts.HWAccel)
	assert.Equal(t, 12, opts.StreamMaxElements)
	assert.Equal(t, time.Hour, opts.FontTTL)
	assert.Equal(t, cfg.WorkDir, opts.WorkDir)
	assert.Equal(t, cfg.Preview.FrameCacheSize, opts.FrameCacheSize)
}

func TestNewControllerPanicsWithoutAssets(t *testing.T) {
	assert.Panics(t, func() { NewController(Options{}) })
}

func TestTimelineHelpers(t *testing.T) {
	a := imageClip("a", "x", 0, 8, 8)
	a.PositionEnd = 4

	left, right, err := Split(a, 1.5, "a2")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, left.PositionEnd, 1e-9)
	assert.InDelta(t, 1.5, right.PositionStart, 1e-9)
	assert.Equal(t, "a2", right.ID)

	p := Project{Elements: []Element{left, right}}
	linked, err := Link(p, Transition{FromID: "a", ToID: "a2", Kind: "fade", Duration: 500})
	require.NoError(t, err)
	assert.Len(t, linked.Transitions, 1)
	assert.Empty(t, Unlink(linked, "a", "a2").Transitions)

	removed := RemoveElement(linked, "a2")
	assert.Len(t, removed.Elements, 1)
	assert.Empty(t, removed.Transitions)
}
