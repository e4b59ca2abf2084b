package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Stream, cfg.Stream)
	assert.Equal(t, 2.5, cfg.Captions.WordsPerSecond)
}

func TestLoadOverridesOnlyGivenFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "montage.yaml")
	yamlData := `
output_dir: /srv/exports
ffmpeg:
  binary_path: /opt/ffmpeg/bin/ffmpeg
  hwaccel: true
fonts:
  ttl: 2h
stream:
  max_elements: 10
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/exports", cfg.OutputDir)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpeg.BinaryPath)
	assert.True(t, cfg.FFmpeg.HWAccel)
	assert.Equal(t, "ffprobe", cfg.FFmpeg.ProbePath)
	assert.Equal(t, 2*time.Hour, cfg.Fonts.TTL)
	assert.Equal(t, 10, cfg.Stream.MaxElements)
	assert.Equal(t, 30, cfg.Stream.KeyframeInterval)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.LogLevel = "debug"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", loaded.LogLevel)
}
