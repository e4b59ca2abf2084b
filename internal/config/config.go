package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the library defaults. Every field has a working default so an
// empty or missing file is valid.
type Config struct {
	WorkDir   string `yaml:"work_dir"`
	OutputDir string `yaml:"output_dir"`
	LogLevel  string `yaml:"log_level"`

	FFmpeg   FFmpegConfig  `yaml:"ffmpeg"`
	Fonts    FontConfig    `yaml:"fonts"`
	Preview  PreviewConfig `yaml:"preview"`
	Stream   StreamConfig  `yaml:"stream"`
	Captions CaptionConfig `yaml:"captions"`
	Loader   LoaderConfig  `yaml:"loader"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path"`
	ProbePath  string `yaml:"probe_path"`
	Threads    int    `yaml:"threads"`
	HWAccel    bool   `yaml:"hwaccel"`
	LogLevel   string `yaml:"log_level"`
}

type FontConfig struct {
	CachePath     string        `yaml:"cache_path"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type PreviewConfig struct {
	FrameCacheSize int `yaml:"frame_cache_size"`
}

type StreamConfig struct {
	MaxElementSeconds float64 `yaml:"max_element_seconds"`
	MaxElements       int     `yaml:"max_elements"`
	KeyframeInterval  int     `yaml:"keyframe_interval"`
	ChunkFrames       int     `yaml:"chunk_frames"`
}

type CaptionConfig struct {
	WordsPerSecond float64 `yaml:"words_per_second"`
}

type LoaderConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// Load reads configuration from path, returning defaults when path is empty
// or the file does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func Default() *Config {
	tmp := os.TempDir()
	return &Config{
		WorkDir:   filepath.Join(tmp, "montage"),
		OutputDir: filepath.Join(tmp, "montage", "exports"),
		LogLevel:  "info",
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
			Threads:    0,
			LogLevel:   "warning",
		},
		Fonts: FontConfig{
			CachePath:     filepath.Join(tmp, "montage", "fonts.db"),
			TTL:           7 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Preview: PreviewConfig{
			FrameCacheSize: 120,
		},
		Stream: StreamConfig{
			MaxElementSeconds: 120,
			MaxElements:       40,
			KeyframeInterval:  30,
			ChunkFrames:       30,
		},
		Captions: CaptionConfig{
			WordsPerSecond: 2.5,
		},
		Loader: LoaderConfig{
			Concurrency: 8,
		},
	}
}
