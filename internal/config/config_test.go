package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("KIRKIFIER_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.WorkDir)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, 2, cfg.FrameQuality)
	assert.Equal(t, []string{"kirks/kirk_0.jpg", "kirks/kirk_1.jpg", "kirks/kirk_2.jpg"}, cfg.ReferenceImages)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := writeFile(t, dir, "custom.toml", `
work_dir = "/tmp/kirk"
frame_quality = 5
log_level = "debug"
reference_images = ["a.jpg", "b.jpg"]
`)
	t.Setenv("KIRKIFIER_FRAME_QUALITY", "3")
	t.Setenv("KIRKIFIER_REFERENCE_IMAGES", "x.jpg, y.jpg,")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/kirk", cfg.WorkDir, "file overrides default")
	assert.Equal(t, "debug", cfg.LogLevel, "file overrides default")
	assert.Equal(t, 3, cfg.FrameQuality, "env overrides file")
	assert.Equal(t, []string{"x.jpg", "y.jpg"}, cfg.ReferenceImages, "env overrides file, blanks dropped")
}

func TestLoadConfigEnvPath(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := writeFile(t, dir, "env.toml", `swap_model = "inswapper_custom.onnx"`)
	t.Setenv("KIRKIFIER_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "inswapper_custom.onnx", cfg.SwapModel)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := writeFile(t, dir, "bad.toml", "frame_quality = [")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty pool", func(c *Config) { c.ReferenceImages = nil }, true},
		{"quality too low", func(c *Config) { c.FrameQuality = 0 }, true},
		{"quality too high", func(c *Config) { c.FrameQuality = 32 }, true},
		{"detection size", func(c *Config) { c.DetectionSize = 0 }, true},
		{"no ffmpeg", func(c *Config) { c.FFmpegPath = "" }, true},
		{"no worker script", func(c *Config) { c.WorkerScript = "" }, true},
		{"bad level", func(c *Config) { c.LogLevel = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
