package domain

type Accelerator string

const (
	AccelNone         Accelerator = "none"
	AccelCUDA         Accelerator = "cuda"
	AccelVideoToolbox Accelerator = "videotoolbox"
	AccelVAAPI        Accelerator = "vaapi"
	AccelQSV          Accelerator = "qsv"
)

// HWAccelConfig describes how frames reach an H.264 encoder. UploadFilter is
// appended to the software filter chain when the encoder needs frames in
// device memory.
type HWAccelConfig struct {
	Accelerator  Accelerator
	InitFlags    []string
	EncodeFlags  []string
	Encoder      string
	KeyframeFlag string
	UploadFilter string
	RateControl  string
}

func (c *HWAccelConfig) Hardware() bool {
	return c != nil && c.Accelerator != AccelNone
}
