package export

import (
	"fmt"
	"io"
	"os"

	"github.com/eleven-am/montage/internal/ffmpeg"
	"github.com/eleven-am/montage/internal/filtergraph"
)

// ffmpegOptions runs one pass and reports its own completion percentage.
func ffmpegOptions(pass filtergraph.Pass, duration float64, onPercent func(float64)) ffmpeg.RunOptions {
	return ffmpeg.RunOptions{
		Args:     pass.Args,
		Duration: duration,
		OnProgress: func(p ffmpeg.Progress) {
			onPercent(p.Percent)
		},
	}
}

// moveFile renames src to dst, copying when they live on different
// filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy output: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("close %s: %w", dst, err)
	}
	os.Remove(src)
	return nil
}
