// Package format maps render settings to container, codec and quality
// parameters. Everything here is a pure table lookup.
package format

import (
	"fmt"
	"strconv"

	"github.com/eleven-am/montage/internal/domain"
)

type Spec struct {
	Format        domain.Format
	Extension     string
	MIME          string
	Container     string
	SupportsAlpha bool
	HasAudio      bool
	PixFmt        string
	AlphaPixFmt   string
	VideoArgs     []string
	AudioArgs     []string
	MuxArgs       []string
}

var specs = map[domain.Format]Spec{
	domain.FormatWebM: {
		Format:        domain.FormatWebM,
		Extension:     ".webm",
		MIME:          "video/webm",
		Container:     "webm",
		SupportsAlpha: true,
		HasAudio:      true,
		PixFmt:        "yuv420p",
		AlphaPixFmt:   "yuva420p",
		VideoArgs:     []string{"-c:v", "libvpx-vp9", "-b:v", "0", "-row-mt", "1", "-auto-alt-ref", "0", "-lag-in-frames", "0"},
		AudioArgs:     []string{"-c:a", "libopus", "-b:a", "128k"},
	},
	domain.FormatMP4: {
		Format:      domain.FormatMP4,
		Extension:   ".mp4",
		MIME:        "video/mp4",
		Container:   "mp4",
		HasAudio:    true,
		PixFmt:      "yuv420p",
		AlphaPixFmt: "yuv420p",
		VideoArgs:   []string{"-c:v", "libx264"},
		AudioArgs:   []string{"-c:a", "aac", "-b:a", "192k"},
		MuxArgs:     []string{"-movflags", "+faststart"},
	},
	domain.FormatGIF: {
		Format:        domain.FormatGIF,
		Extension:     ".gif",
		MIME:          "image/gif",
		Container:     "gif",
		SupportsAlpha: true,
		PixFmt:        "rgb24",
		AlphaPixFmt:   "rgba",
		MuxArgs:       []string{"-loop", "0"},
	},
	domain.FormatMOV: {
		Format:        domain.FormatMOV,
		Extension:     ".mov",
		MIME:          "video/quicktime",
		Container:     "mov",
		SupportsAlpha: true,
		HasAudio:      true,
		PixFmt:        "yuv444p10le",
		AlphaPixFmt:   "yuva444p10le",
		VideoArgs:     []string{"-c:v", "prores_ks", "-profile:v", "4", "-vendor", "apl0"},
		AudioArgs:     []string{"-c:a", "pcm_s16le"},
	},
}

func Lookup(f domain.Format) (Spec, error) {
	s, ok := specs[f]
	if !ok {
		return Spec{}, fmt.Errorf("unsupported format %q", f)
	}
	return s, nil
}

type QualitySpec struct {
	CRF        int
	Preset     string
	ScaleFlags string
	GIFColors  int
	// BitrateFactor scales the resolution ladder estimate.
	BitrateFactor float64
}

var qualities = map[domain.Quality]QualitySpec{
	domain.QualityLow:    {CRF: 32, Preset: "veryfast", ScaleFlags: "fast_bilinear", GIFColors: 64, BitrateFactor: 0.6},
	domain.QualityMedium: {CRF: 26, Preset: "medium", ScaleFlags: "bicubic", GIFColors: 128, BitrateFactor: 1},
	domain.QualityHigh:   {CRF: 20, Preset: "slow", ScaleFlags: "lanczos", GIFColors: 256, BitrateFactor: 1.5},
	domain.QualityUltra:  {CRF: 16, Preset: "slower", ScaleFlags: "lanczos+accurate_rnd+full_chroma_int", GIFColors: 256, BitrateFactor: 2},
}

// Quality returns the quality parameters, defaulting to medium.
func Quality(q domain.Quality) QualitySpec {
	if s, ok := qualities[q]; ok {
		return s
	}
	return qualities[domain.QualityMedium]
}

// WantsAlpha reports whether the output keeps a transparent background.
func WantsAlpha(s domain.RenderSettings) bool {
	spec, err := Lookup(s.Format)
	return err == nil && s.AlphaChannel && spec.SupportsAlpha
}

func PixFmt(s domain.RenderSettings) string {
	spec, err := Lookup(s.Format)
	if err != nil {
		return "yuv420p"
	}
	if WantsAlpha(s) {
		return spec.AlphaPixFmt
	}
	return spec.PixFmt
}

// UseHardware reports whether the hardware encoder replaces the software one.
// Only H.264 in mp4 has a hardware path.
func UseHardware(s domain.RenderSettings, hw *domain.HWAccelConfig) bool {
	return s.HWAccel && hw.Hardware() && s.Format == domain.FormatMP4
}

// VideoArgs returns the encoder arguments for the final pass.
func VideoArgs(s domain.RenderSettings, hw *domain.HWAccelConfig) ([]string, error) {
	spec, err := Lookup(s.Format)
	if err != nil {
		return nil, err
	}
	q := Quality(s.Quality)

	if s.Format == domain.FormatGIF {
		return append([]string{}, spec.MuxArgs...), nil
	}

	var args []string
	if UseHardware(s, hw) {
		bitrate := s.Bitrate
		if bitrate <= 0 {
			bitrate = EstimateBitrate(s.Width, s.Height, s.Quality)
		}
		args = append(args, hw.EncodeFlags...)
		args = append(args,
			"-b:v", strconv.Itoa(bitrate),
			"-maxrate", strconv.Itoa(int(float64(bitrate)*1.5)),
			"-bufsize", strconv.Itoa(bitrate*5),
		)
		if hw.RateControl != "" {
			args = append(args, "-rc", hw.RateControl)
		}
		return append(args, spec.MuxArgs...), nil
	}

	args = append(args, spec.VideoArgs...)
	switch s.Format {
	case domain.FormatMP4:
		args = append(args, "-preset", q.Preset, "-crf", strconv.Itoa(q.CRF), "-pix_fmt", PixFmt(s))
		if s.Bitrate > 0 {
			args = append(args, "-maxrate", strconv.Itoa(s.Bitrate), "-bufsize", strconv.Itoa(s.Bitrate*2))
		}
	case domain.FormatWebM:
		args = append(args, "-crf", strconv.Itoa(vp9CRF(q.CRF)), "-pix_fmt", PixFmt(s))
		if WantsAlpha(s) {
			args = append(args, "-metadata:s:v:0", "alpha_mode=1")
		}
	case domain.FormatMOV:
		args = append(args, "-pix_fmt", PixFmt(s))
	}
	return append(args, spec.MuxArgs...), nil
}

// AudioArgs returns the audio encoder arguments, or nil when the format
// carries no audio.
func AudioArgs(s domain.RenderSettings) []string {
	spec, err := Lookup(s.Format)
	if err != nil || !spec.HasAudio {
		return nil
	}
	return append([]string{}, spec.AudioArgs...)
}

// vp9CRF maps the x264 scale onto libvpx's 0-63 range.
func vp9CRF(crf int) int {
	v := crf + 8
	if v > 63 {
		return 63
	}
	return v
}

// PaletteGen and PaletteUse are the two halves of the GIF pipeline.
func PaletteGen(s domain.RenderSettings) string {
	q := Quality(s.Quality)
	reserve := 0
	if WantsAlpha(s) {
		reserve = 1
	}
	return fmt.Sprintf("palettegen=max_colors=%d:reserve_transparent=%d:stats_mode=diff", q.GIFColors, reserve)
}

func PaletteUse(s domain.RenderSettings) string {
	f := "paletteuse=dither=sierra2_4a:diff_mode=rectangle"
	if WantsAlpha(s) {
		f += ":alpha_threshold=128"
	}
	return f
}
