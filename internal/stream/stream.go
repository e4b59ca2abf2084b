// Package stream encodes a project frame by frame: each frame is composited
// and rasterized in process and piped as raw RGBA into an H.264 encoder that
// writes fragmented MP4 to the caller.
package stream

import (
	"context"
	"fmt"
	"image"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/eleven-am/montage/internal/compositor"
	"github.com/eleven-am/montage/internal/domain"
	"github.com/eleven-am/montage/internal/errs"
	"github.com/eleven-am/montage/internal/ffmpeg"
	"github.com/eleven-am/montage/internal/format"
	"github.com/eleven-am/montage/internal/hwaccel"
	"github.com/eleven-am/montage/internal/timeline"
)

type Limits struct {
	MaxElementSeconds float64
	MaxElements       int
}

func DefaultLimits() Limits {
	return Limits{MaxElementSeconds: 120, MaxElements: 40}
}

// Eligible reports whether p can take the streaming path, and why not.
func Eligible(p domain.Project, s domain.RenderSettings, hw *domain.HWAccelConfig, l Limits) (bool, string) {
	if !s.HWAccel {
		return false, "hardware acceleration not requested"
	}
	if !hw.Hardware() {
		return false, "no hardware encoder available"
	}
	switch s.Format {
	case domain.FormatMP4:
	case domain.FormatWebM:
		if s.AlphaChannel {
			return false, "transparent webm needs the filter graph path"
		}
	default:
		return false, fmt.Sprintf("format %s is not streamable", s.Format)
	}
	if l.MaxElements > 0 && len(p.Elements) >= l.MaxElements {
		return false, fmt.Sprintf("%d elements exceeds the streaming limit", len(p.Elements))
	}
	for _, e := range p.Elements {
		if l.MaxElementSeconds > 0 && e.Duration() > l.MaxElementSeconds {
			return false, fmt.Sprintf("element %s is longer than %.0fs", e.ID, l.MaxElementSeconds)
		}
	}
	return true, ""
}

// Renderer resolves the layer tree at a time.
type Renderer interface {
	RenderFrame(ctx context.Context, p domain.Project, t float64) compositor.Frame
}

// Rasterizer draws a layer tree into a caller-owned buffer.
type Rasterizer interface {
	RasterizeInto(ctx context.Context, f compositor.Frame, dst *image.RGBA) error
}

type Options struct {
	Logger           zerolog.Logger
	Executor         *ffmpeg.Executor
	Renderer         Renderer
	Rasterizer       Rasterizer
	KeyframeInterval int
	ChunkFrames      int
}

type Streamer struct {
	logger   zerolog.Logger
	exec     *ffmpeg.Executor
	render   Renderer
	raster   Rasterizer
	keyframe int
	chunk    int
}

func New(opts Options) *Streamer {
	s := &Streamer{
		logger:   opts.Logger.With().Str("component", "stream").Logger(),
		exec:     opts.Executor,
		render:   opts.Renderer,
		raster:   opts.Rasterizer,
		keyframe: opts.KeyframeInterval,
		chunk:    opts.ChunkFrames,
	}
	if s.keyframe <= 0 {
		s.keyframe = 30
	}
	if s.chunk <= 0 {
		s.chunk = 30
	}
	return s
}

// ProgressFunc receives the number of frames written out of total.
type ProgressFunc func(frame, total int)

// Encode streams p to w. When the hardware encoder fails before producing
// any output the encode is retried once in software.
func (s *Streamer) Encode(ctx context.Context, p domain.Project, settings domain.RenderSettings, hw *domain.HWAccelConfig, w io.Writer, progress ProgressFunc) (bool, error) {
	settings = settings.WithDefaults(p)
	if hw == nil || !settings.HWAccel {
		hw = hwaccel.Software()
	}

	cw := &countingWriter{w: w}
	err := s.encode(ctx, p, settings, hw, cw, progress)
	if err == nil || !hw.Hardware() || !errs.Retryable(err) || cw.n.Load() > 0 {
		return hw.Hardware(), err
	}

	s.logger.Warn().Err(err).Str("accelerator", string(hw.Accelerator)).Msg("hardware encoder failed, retrying in software")
	return false, s.encode(ctx, p, settings, hwaccel.Software(), cw, progress)
}

func (s *Streamer) encode(ctx context.Context, p domain.Project, settings domain.RenderSettings, hw *domain.HWAccelConfig, w io.Writer, progress ProgressFunc) error {
	width, height := format.EvenSize(settings.Width, settings.Height)
	duration := p.Duration()
	total := timeline.FrameCount(duration, settings.FPS)
	if total == 0 {
		return errs.Validation("stream", errs.ErrNothingToRender)
	}

	params := ffmpeg.RawVideoParams{
		Width:            width,
		Height:           height,
		FPS:              settings.FPS,
		KeyframeInterval: s.keyframe,
	}
	if hw.Hardware() {
		params.Bitrate = settings.Bitrate
		if params.Bitrate <= 0 {
			params.Bitrate = format.EstimateBitrate(width, height, settings.Quality)
		}
	}

	pr, pw := io.Pipe()
	proc, err := s.exec.Start(ctx, ffmpeg.RunOptions{
		Args:     ffmpeg.NewCommandBuilder(hw).RawVideo(params),
		Duration: duration,
		Stdin:    pr,
		Stdout:   w,
	})
	if err != nil {
		pr.Close()
		return err
	}

	frameProject := p
	frameProject.Width, frameProject.Height = width, height

	pool := &sync.Pool{New: func() any {
		return image.NewRGBA(image.Rect(0, 0, width, height))
	}}

	exited := make(chan error, 1)
	go func() {
		err := proc.Wait()
		pr.CloseWithError(io.ErrClosedPipe)
		exited <- err
	}()

	writeErr := s.feed(ctx, frameProject, settings.FPS, total, pool, pw, progress)
	pw.CloseWithError(writeErr)
	if ctx.Err() != nil {
		proc.Kill()
	}

	procErr := <-exited
	switch {
	case ctx.Err() != nil:
		return errs.Cancelled("stream")
	case procErr != nil:
		return procErr
	case writeErr != nil:
		return errs.Engine("stream", writeErr)
	}
	s.logger.Debug().Int("frames", total).Str("encoder", hw.Encoder).Msg("stream encode finished")
	return nil
}

// feed writes every frame to the encoder's stdin. Buffers go back to the
// pool as soon as they are written.
func (s *Streamer) feed(ctx context.Context, p domain.Project, fps float64, total int, pool *sync.Pool, w io.Writer, progress ProgressFunc) error {
	for i := 0; i < total; i++ {
		if i%s.chunk == 0 {
			runtime.Gosched()
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		t := float64(i) / fps
		f := s.render.RenderFrame(ctx, p, t)

		buf := pool.Get().(*image.RGBA)
		err := s.raster.RasterizeInto(ctx, f, buf)
		if err == nil {
			_, err = w.Write(buf.Pix)
		}
		pool.Put(buf)
		if err != nil {
			return err
		}

		if progress != nil {
			progress(i+1, total)
		}
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}
