package canvas

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/png"
	"math"
	"os"
	"strconv"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/eleven-am/montage/internal/compositor"
	"github.com/eleven-am/montage/internal/domain"
	"github.com/eleven-am/montage/internal/errs"
	"github.com/eleven-am/montage/internal/ffmpeg"
)

// Source supplies the pixels of a media layer at its source time.
type Source interface {
	Image(ctx context.Context, m compositor.MediaLayer) (image.Image, error)
}

// Resolve maps an asset to a file in the workspace.
type Resolve func(domain.AssetID) (string, bool)

type animation struct {
	frames []image.Image
	// ends holds the cumulative end time of each frame in seconds.
	ends []float64
}

// FileSource decodes workspace files. Stills and GIF frames are decoded once;
// video frames are extracted with ffmpeg and kept in a small LRU.
type FileSource struct {
	logger  zerolog.Logger
	resolve Resolve
	exec    *ffmpeg.Executor

	stills *lru.Cache[string, image.Image]
	anims  *lru.Cache[string, *animation]
	frames *lru.Cache[string, image.Image]
}

func NewFileSource(logger zerolog.Logger, resolve Resolve, exec *ffmpeg.Executor) *FileSource {
	stills, _ := lru.New[string, image.Image](64)
	anims, _ := lru.New[string, *animation](16)
	frames, _ := lru.New[string, image.Image](256)
	return &FileSource{
		logger:  logger.With().Str("component", "canvas-source").Logger(),
		resolve: resolve,
		exec:    exec,
		stills:  stills,
		anims:   anims,
		frames:  frames,
	}
}

func (s *FileSource) Image(ctx context.Context, m compositor.MediaLayer) (image.Image, error) {
	path, ok := s.resolve(m.Source)
	if !ok {
		return nil, errs.Asset("rasterize", string(m.Source), errs.ErrAssetMissing)
	}

	switch m.Type {
	case domain.MediaImage:
		return s.still(path)
	case domain.MediaAnimated:
		if a, err := s.animation(path); err == nil {
			return a.at(m.SourceTime), nil
		}
		return s.videoFrame(ctx, path, m.SourceTime)
	case domain.MediaVideo:
		return s.videoFrame(ctx, path, m.SourceTime)
	default:
		return nil, fmt.Errorf("media type %q has no pixels", m.Type)
	}
}

func (s *FileSource) still(path string) (image.Image, error) {
	if img, ok := s.stills.Get(path); ok {
		return img, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	s.stills.Add(path, img)
	return img, nil
}

// Decode reads PNG, JPEG, GIF, BMP, TIFF and WebP data.
func Decode(data []byte) (image.Image, error) {
	if isWebP(data) {
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode webp: %w", err)
		}
		return img, nil
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

func (s *FileSource) animation(path string) (*animation, error) {
	if a, ok := s.anims.Get(path); ok {
		return a, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	a := composeGIF(g)
	s.anims.Add(path, a)
	return a, nil
}

// composeGIF flattens partial GIF frames onto a running canvas.
func composeGIF(g *gif.GIF) *animation {
	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() && len(g.Image) > 0 {
		bounds = g.Image[0].Bounds()
	}
	acc := image.NewNRGBA(bounds)
	a := &animation{}
	var end float64
	for i, frame := range g.Image {
		draw.Draw(acc, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		a.frames = append(a.frames, imaging.Clone(acc))
		delay := 0.1
		if i < len(g.Delay) && g.Delay[i] > 0 {
			delay = float64(g.Delay[i]) / 100
		}
		end += delay
		a.ends = append(a.ends, end)
		if i < len(g.Disposal) && g.Disposal[i] == gif.DisposalBackground {
			draw.Draw(acc, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		}
	}
	return a
}

// at returns the frame showing at t, looping the animation.
func (a *animation) at(t float64) image.Image {
	if len(a.frames) == 0 {
		return image.NewNRGBA(image.Rect(0, 0, 1, 1))
	}
	total := a.ends[len(a.ends)-1]
	if total <= 0 {
		return a.frames[0]
	}
	t = math.Mod(math.Max(t, 0), total)
	for i, end := range a.ends {
		if t < end {
			return a.frames[i]
		}
	}
	return a.frames[len(a.frames)-1]
}

func (s *FileSource) videoFrame(ctx context.Context, path string, t float64) (image.Image, error) {
	key := path + "@" + strconv.FormatInt(int64(math.Round(t*1000)), 10)
	if img, ok := s.frames.Get(key); ok {
		return img, nil
	}
	if s.exec == nil {
		return nil, errs.Engine("extract frame", errs.ErrEncoderUnavailable)
	}

	var out bytes.Buffer
	err := s.exec.Run(ctx, ffmpeg.RunOptions{
		Args: []string{
			"-ss", strconv.FormatFloat(math.Max(t, 0), 'f', 3, 64),
			"-i", path,
			"-frames:v", "1",
			"-f", "image2pipe",
			"-c:v", "png",
			"pipe:1",
		},
		Stdout: &out,
	})
	if err != nil {
		return nil, err
	}

	img, err := png.Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("decode extracted frame: %w", err)
	}
	s.frames.Add(key, img)
	return img, nil
}
