package ffmpeg

import (
	"fmt"
	"strconv"

	"github.com/eleven-am/montage/internal/domain"
)

// GlobalArgs are the flags every invocation starts with. Progress is written
// as key=value blocks on stderr next to the regular log output.
func GlobalArgs(level string, threads int) []string {
	if level == "" {
		level = "warning"
	}
	args := []string{"-y", "-hide_banner", "-nostats", "-loglevel", level}
	if threads > 0 {
		args = append(args, "-threads", strconv.Itoa(threads))
	}
	return append(args, "-progress", "pipe:2")
}

// RawVideoParams describes raw RGBA frames written to stdin and a
// fragmented MP4 written to stdout.
type RawVideoParams struct {
	Width            int
	Height           int
	FPS              float64
	KeyframeInterval int
	Bitrate          int
}

type CommandBuilder struct {
	HWAccel *domain.HWAccelConfig
}

func NewCommandBuilder(hwAccel *domain.HWAccelConfig) *CommandBuilder {
	return &CommandBuilder{HWAccel: hwAccel}
}

// RawVideo returns the arguments of a streaming encode fed by raw frames.
func (b *CommandBuilder) RawVideo(p RawVideoParams) []string {
	args := append([]string{}, b.HWAccel.InitFlags...)

	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-r", formatRate(p.FPS),
		"-i", "pipe:0",
	)

	if b.HWAccel.UploadFilter != "" {
		args = append(args, "-vf", b.HWAccel.UploadFilter)
	}

	args = append(args, b.encodeArgs(p)...)

	args = append(args,
		"-movflags", "frag_keyframe+empty_moov+default_base_moof",
		"-f", "mp4", "pipe:1",
	)

	return args
}

func (b *CommandBuilder) encodeArgs(p RawVideoParams) []string {
	args := make([]string, len(b.HWAccel.EncodeFlags))
	copy(args, b.HWAccel.EncodeFlags)

	if p.Bitrate > 0 {
		args = append(args,
			"-b:v", strconv.Itoa(p.Bitrate),
			"-maxrate", strconv.Itoa(int(float64(p.Bitrate)*1.5)),
			"-bufsize", strconv.Itoa(p.Bitrate*5),
		)
	}

	interval := p.KeyframeInterval
	if interval <= 0 {
		interval = 30
	}
	args = append(args, "-g", strconv.Itoa(interval))

	if b.HWAccel.Accelerator == domain.AccelCUDA {
		args = append(args, "-forced-idr", "1")
	}

	return args
}

func formatRate(fps float64) string {
	if fps <= 0 {
		fps = 30
	}
	return strconv.FormatFloat(fps, 'f', -1, 64)
}
