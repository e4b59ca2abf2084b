package stream

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/montage/internal/compositor"
	"github.com/eleven-am/montage/internal/domain"
	"github.com/eleven-am/montage/internal/errs"
	"github.com/eleven-am/montage/internal/ffmpeg"
	"github.com/eleven-am/montage/internal/hwaccel"
)

type stubRenderer struct{ calls atomic.Int32 }

func (r *stubRenderer) RenderFrame(ctx context.Context, p domain.Project, t float64) compositor.Frame {
	r.calls.Add(1)
	return compositor.Frame{Time: t, Width: p.Width, Height: p.Height}
}

type fillRasterizer struct{}

func (fillRasterizer) RasterizeInto(ctx context.Context, f compositor.Frame, dst *image.RGBA) error {
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = 10, 20, 30, 255
	}
	return nil
}

func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"+body), 0755))
	return script
}

func project(seconds float64) domain.Project {
	return domain.Project{
		Width:  4,
		Height: 2,
		FPS:    10,
		Elements: []domain.Element{{
			ID:            "a",
			Kind:          domain.KindMedia,
			PositionStart: 0,
			PositionEnd:   seconds,
			Media:         &domain.Media{Type: domain.MediaImage, Src: "img"},
		}},
	}
}

func newStreamer(binary string, r Renderer) *Streamer {
	return New(Options{
		Logger:     zerolog.Nop(),
		Executor:   ffmpeg.New(zerolog.Nop(), binary, 1, "error"),
		Renderer:   r,
		Rasterizer: fillRasterizer{},
	})
}

func TestEligible(t *testing.T) {
	cuda := hwaccel.NewConfig(domain.AccelCUDA)
	mp4 := domain.RenderSettings{Format: domain.FormatMP4, HWAccel: true}

	ok, _ := Eligible(project(5), mp4, cuda, DefaultLimits())
	assert.True(t, ok)

	ok, reason := Eligible(project(5), mp4, hwaccel.Software(), DefaultLimits())
	assert.False(t, ok)
	assert.Contains(t, reason, "hardware")

	ok, _ = Eligible(project(5), domain.RenderSettings{Format: domain.FormatMP4}, cuda, DefaultLimits())
	assert.False(t, ok)

	ok, _ = Eligible(project(5), domain.RenderSettings{Format: domain.FormatWebM, HWAccel: true}, cuda, DefaultLimits())
	assert.True(t, ok)

	ok, _ = Eligible(project(5), domain.RenderSettings{Format: domain.FormatWebM, HWAccel: true, AlphaChannel: true}, cuda, DefaultLimits())
	assert.False(t, ok)

	ok, _ = Eligible(project(5), domain.RenderSettings{Format: domain.FormatGIF, HWAccel: true}, cuda, DefaultLimits())
	assert.False(t, ok)

	ok, reason = Eligible(project(121), mp4, cuda, DefaultLimits())
	assert.False(t, ok)
	assert.Contains(t, reason, "element a")

	many := project(1)
	for len(many.Elements) < 40 {
		many.Elements = append(many.Elements, many.Elements[0])
	}
	ok, _ = Eligible(many, mp4, cuda, DefaultLimits())
	assert.False(t, ok)
}

func TestEncode_PipesRawFramesAndCopiesOutput(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "in.raw")
	argsFile := filepath.Join(dir, "args")
	bin := fakeFFmpeg(t, `echo "$@" > "`+argsFile+`"
cat > "`+raw+`"
printf 'FMP4DATA'
`)

	r := &stubRenderer{}
	s := newStreamer(bin, r)

	var out bytes.Buffer
	var last [2]int
	usedHW, err := s.Encode(context.Background(), project(0.5), domain.RenderSettings{}, nil, &out, func(frame, total int) {
		last = [2]int{frame, total}
	})
	require.NoError(t, err)

	assert.False(t, usedHW)
	assert.Equal(t, "FMP4DATA", out.String())
	assert.Equal(t, [2]int{5, 5}, last)
	assert.EqualValues(t, 5, r.calls.Load())

	data, err := os.ReadFile(raw)
	require.NoError(t, err)
	require.Len(t, data, 5*4*2*4)
	assert.Equal(t, []byte{10, 20, 30, 255}, data[:4])

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(args), "-f rawvideo -pix_fmt rgba -s 4x2 -r 10 -i pipe:0")
	assert.Contains(t, string(args), "-c:v libx264")
	assert.Contains(t, string(args), "-g 30")
	assert.Contains(t, string(args), "frag_keyframe+empty_moov")
}

func TestEncode_HardwareFailureFallsBackToSoftware(t *testing.T) {
	bin := fakeFFmpeg(t, `case "$*" in
*h264_nvenc*) echo "Cannot load libcuda.so.1" >&2; exit 1;;
esac
cat > /dev/null
printf 'soft'
`)
	s := newStreamer(bin, &stubRenderer{})

	var out bytes.Buffer
	settings := domain.RenderSettings{Format: domain.FormatMP4, HWAccel: true}
	usedHW, err := s.Encode(context.Background(), project(0.3), settings, hwaccel.NewConfig(domain.AccelCUDA), &out, nil)
	require.NoError(t, err)

	assert.False(t, usedHW)
	assert.Equal(t, "soft", out.String())
}

func TestEncode_NoRetryAfterOutputStarted(t *testing.T) {
	bin := fakeFFmpeg(t, `printf 'partial'
echo "device lost" >&2
exit 1
`)
	s := newStreamer(bin, &stubRenderer{})

	var out bytes.Buffer
	settings := domain.RenderSettings{Format: domain.FormatMP4, HWAccel: true}
	usedHW, err := s.Encode(context.Background(), project(0.3), settings, hwaccel.NewConfig(domain.AccelCUDA), &out, nil)
	require.Error(t, err)

	assert.True(t, usedHW)
	assert.Equal(t, errs.TypeEngine, errs.TypeOf(err))
	assert.Equal(t, "partial", out.String())
}

func TestEncode_CancelStopsAtChunkBoundary(t *testing.T) {
	bin := fakeFFmpeg(t, "exec cat > /dev/null\n")
	r := &stubRenderer{}
	s := newStreamer(bin, r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := s.Encode(ctx, project(10), domain.RenderSettings{}, nil, &bytes.Buffer{}, func(frame, total int) {
		if frame == 1 {
			cancel()
		}
	})
	require.Error(t, err)

	assert.ErrorIs(t, err, errs.ErrCancelled)
	assert.LessOrEqual(t, int(r.calls.Load()), 30)
}

func TestEncode_EmptyProject(t *testing.T) {
	s := newStreamer("ffmpeg", &stubRenderer{})

	_, err := s.Encode(context.Background(), domain.Project{}, domain.RenderSettings{}, nil, &bytes.Buffer{}, nil)
	require.Error(t, err)

	assert.ErrorIs(t, err, errs.ErrNothingToRender)
}

func TestEncode_HardwareBitrate(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	bin := fakeFFmpeg(t, `echo "$@" > "`+argsFile+`"
cat > /dev/null
`)
	s := newStreamer(bin, &stubRenderer{})

	settings := domain.RenderSettings{Format: domain.FormatMP4, HWAccel: true, Bitrate: 4000000}
	usedHW, err := s.Encode(context.Background(), project(0.1), settings, hwaccel.NewConfig(domain.AccelCUDA), &bytes.Buffer{}, nil)
	require.NoError(t, err)
	assert.True(t, usedHW)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	line := strings.TrimSpace(string(args))
	assert.Contains(t, line, "-b:v 4000000 -maxrate 6000000 -bufsize 20000000")
	assert.Contains(t, line, "-forced-idr 1")
}

