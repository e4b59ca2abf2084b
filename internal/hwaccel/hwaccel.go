// Package hwaccel discovers which hardware H.264 encoders the local ffmpeg
// build can drive and describes how to feed them.
package hwaccel

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/eleven-am/montage/internal/domain"
)

var encoderNames = map[domain.Accelerator]string{
	domain.AccelCUDA:         "h264_nvenc",
	domain.AccelVideoToolbox: "h264_videotoolbox",
	domain.AccelVAAPI:        "h264_vaapi",
	domain.AccelQSV:          "h264_qsv",
}

// Detect lists the accelerators usable through binary. The software path is
// always last.
func Detect(ctx context.Context, binary string) ([]domain.Accelerator, error) {
	if binary == "" {
		binary = "ffmpeg"
	}

	hwaccels, err := detectHWAccels(ctx, binary)
	if err != nil {
		return nil, err
	}

	encoders, err := detectEncoders(ctx, binary)
	if err != nil {
		return nil, err
	}

	var available []domain.Accelerator
	for _, accel := range []domain.Accelerator{domain.AccelCUDA, domain.AccelVideoToolbox, domain.AccelVAAPI, domain.AccelQSV} {
		if hwaccels[string(accel)] && encoders[encoderNames[accel]] {
			available = append(available, accel)
		}
	}

	available = append(available, domain.AccelNone)

	return available, nil
}

func Select(available []domain.Accelerator) domain.Accelerator {
	priority := []domain.Accelerator{domain.AccelCUDA, domain.AccelQSV, domain.AccelVideoToolbox, domain.AccelVAAPI}

	for _, accel := range priority {
		for _, a := range available {
			if a == accel {
				return accel
			}
		}
	}

	return domain.AccelNone
}

// DetectBest probes binary and returns the preferred config, falling back to
// software encoding when probing fails.
func DetectBest(ctx context.Context, binary string) *domain.HWAccelConfig {
	available, err := Detect(ctx, binary)
	if err != nil {
		return NewConfig(domain.AccelNone)
	}
	return NewConfig(Select(available))
}

// Software returns the config used when a hardware encoder fails to start.
func Software() *domain.HWAccelConfig {
	return NewConfig(domain.AccelNone)
}

// NewConfig describes an encoder fed with software frames (decoded inputs or
// raw RGBA on stdin). UploadFilter moves those frames into device memory.
func NewConfig(accel domain.Accelerator) *domain.HWAccelConfig {
	switch accel {
	case domain.AccelCUDA:
		return &domain.HWAccelConfig{
			Accelerator:  domain.AccelCUDA,
			InitFlags:    []string{"-init_hw_device", "cuda=hw", "-filter_hw_device", "hw"},
			EncodeFlags:  []string{"-c:v", "h264_nvenc", "-preset", "p4", "-tune", "ll"},
			Encoder:      "h264_nvenc",
			KeyframeFlag: "-force_idr",
			UploadFilter: "format=nv12,hwupload_cuda",
			RateControl:  "vbr",
		}
	case domain.AccelVideoToolbox:
		return &domain.HWAccelConfig{
			Accelerator:  domain.AccelVideoToolbox,
			InitFlags:    []string{},
			EncodeFlags:  []string{"-c:v", "h264_videotoolbox", "-realtime", "true", "-prio_speed", "true"},
			Encoder:      "h264_videotoolbox",
			KeyframeFlag: "-force_key_frames",
			UploadFilter: "format=nv12",
		}
	case domain.AccelVAAPI:
		return &domain.HWAccelConfig{
			Accelerator:  domain.AccelVAAPI,
			InitFlags:    []string{"-vaapi_device", "/dev/dri/renderD128"},
			EncodeFlags:  []string{"-c:v", "h264_vaapi"},
			Encoder:      "h264_vaapi",
			KeyframeFlag: "-force_key_frames",
			UploadFilter: "format=nv12,hwupload",
		}
	case domain.AccelQSV:
		return &domain.HWAccelConfig{
			Accelerator:  domain.AccelQSV,
			InitFlags:    []string{"-init_hw_device", "qsv=hw", "-filter_hw_device", "hw"},
			EncodeFlags:  []string{"-c:v", "h264_qsv", "-preset", "veryfast"},
			Encoder:      "h264_qsv",
			KeyframeFlag: "-force_key_frames",
			UploadFilter: "format=nv12,hwupload=extra_hw_frames=64",
		}
	default:
		return &domain.HWAccelConfig{
			Accelerator:  domain.AccelNone,
			InitFlags:    []string{},
			EncodeFlags:  []string{"-c:v", "libx264", "-preset", "ultrafast"},
			Encoder:      "libx264",
			KeyframeFlag: "-force_key_frames",
			UploadFilter: "format=yuv420p",
		}
	}
}

func detectHWAccels(ctx context.Context, binary string) (map[string]bool, error) {
	cmd := exec.CommandContext(ctx, binary, "-hide_banner", "-hwaccels")
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	result := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && line != "Hardware acceleration methods:" {
			result[line] = true
		}
	}

	return result, nil
}

func detectEncoders(ctx context.Context, binary string) (map[string]bool, error) {
	cmd := exec.CommandContext(ctx, binary, "-hide_banner", "-encoders")
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	result := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		for _, name := range encoderNames {
			if fields[1] == name {
				result[name] = true
			}
		}
	}

	return result, nil
}
