package domain

type Format string

const (
	FormatWebM Format = "webm"
	FormatMP4  Format = "mp4"
	FormatGIF  Format = "gif"
	FormatMOV  Format = "mov"
)

type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
	QualityUltra  Quality = "ultra"
)

type RenderSettings struct {
	Format         Format
	Quality        Quality
	Width          int
	Height         int
	FPS            float64
	AlphaChannel   bool
	ChromaKey      *ChromaKey
	HWAccel        bool
	Bitrate        int
	CaptionSidecar bool
}

// WithDefaults fills unset dimensions and rate from the project.
func (s RenderSettings) WithDefaults(p Project) RenderSettings {
	if s.Format == "" {
		s.Format = FormatMP4
	}
	if s.Quality == "" {
		s.Quality = QualityMedium
	}
	if s.Width <= 0 {
		s.Width = p.Width
	}
	if s.Height <= 0 {
		s.Height = p.Height
	}
	if s.Width <= 0 || s.Height <= 0 {
		s.Width, s.Height = 1920, 1080
	}
	if s.FPS <= 0 {
		s.FPS = p.FPS
	}
	if s.FPS <= 0 {
		s.FPS = 30
	}
	return s
}

// SourceInfo is what the engine knows about a loaded asset.
type SourceInfo struct {
	Duration  float64
	Width     int
	Height    int
	FrameRate float64
	Codec     string
	PixFmt    string
	HasVideo  bool
	HasAudio  bool
	HasAlpha  bool
}
