// Package probe reads stream information from workspace files with ffprobe.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/eleven-am/montage/internal/domain"
)

const cacheSize = 256

type Prober struct {
	binary string
	cache  *lru.Cache[string, domain.SourceInfo]
}

func NewProber(binary string) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	cache, _ := lru.New[string, domain.SourceInfo](cacheSize)
	return &Prober{binary: binary, cache: cache}
}

// Probe returns stream information for path. Results are cached per path.
func (p *Prober) Probe(ctx context.Context, path string) (domain.SourceInfo, error) {
	if info, ok := p.cache.Get(path); ok {
		return info, nil
	}

	info, err := p.probeStreams(ctx, path)
	if err != nil {
		return domain.SourceInfo{}, err
	}

	p.cache.Add(path, info)
	return info, nil
}

// ProbeAll probes every handle, keyed by asset id.
func (p *Prober) ProbeAll(ctx context.Context, handles map[domain.AssetID]domain.Handle) (map[domain.AssetID]domain.SourceInfo, error) {
	out := make(map[domain.AssetID]domain.SourceInfo, len(handles))
	for id, h := range handles {
		info, err := p.Probe(ctx, h.Path)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", id, err)
		}
		out[id] = info
	}
	return out, nil
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	Index      int               `json:"index"`
	CodecName  string            `json:"codec_name"`
	CodecType  string            `json:"codec_type"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	PixFmt     string            `json:"pix_fmt"`
	RFrameRate string            `json:"r_frame_rate"`
	Duration   string            `json:"duration"`
	Tags       map[string]string `json:"tags"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

func (p *Prober) probeStreams(ctx context.Context, path string) (domain.SourceInfo, error) {
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return domain.SourceInfo{}, err
	}

	var ff ffprobeOutput
	if err := json.Unmarshal(output, &ff); err != nil {
		return domain.SourceInfo{}, err
	}

	var info domain.SourceInfo

	if dur, err := strconv.ParseFloat(ff.Format.Duration, 64); err == nil {
		info.Duration = dur
	}

	for _, s := range ff.Streams {
		switch s.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.Codec = s.CodecName
			info.Width = s.Width
			info.Height = s.Height
			info.PixFmt = s.PixFmt
			info.FrameRate = parseFrameRate(s.RFrameRate)
			info.HasAlpha = hasAlpha(s)
			if info.Duration == 0 {
				if dur, err := strconv.ParseFloat(s.Duration, 64); err == nil {
					info.Duration = dur
				}
			}
		case "audio":
			info.HasAudio = true
		}
	}

	return info, nil
}

// hasAlpha detects an alpha plane from the pixel format, or from the
// ALPHA_MODE tag VP8/VP9 in Matroska uses since the decoder reports yuv420p.
func hasAlpha(s ffprobeStream) bool {
	for k, v := range s.Tags {
		if strings.EqualFold(k, "alpha_mode") && v == "1" {
			return true
		}
	}
	f := s.PixFmt
	return strings.HasPrefix(f, "yuva") ||
		strings.HasPrefix(f, "gbrap") ||
		strings.Contains(f, "rgba") ||
		strings.Contains(f, "argb") ||
		strings.Contains(f, "bgra") ||
		strings.Contains(f, "abgr") ||
		strings.HasPrefix(f, "ya") ||
		f == "pal8"
}

func parseFrameRate(s string) float64 {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0
	}
	num, _ := strconv.ParseFloat(parts[0], 64)
	den, _ := strconv.ParseFloat(parts[1], 64)
	if den == 0 {
		return 0
	}
	return num / den
}
