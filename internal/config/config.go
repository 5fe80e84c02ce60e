package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// DefaultFile is looked up in the working directory when KIRKIFIER_CONFIG is unset.
const DefaultFile = "kirkifier.toml"

// Config holds every tunable of a kirkifier run.
// The reference pool is deliberately absent from the CLI flags; it comes from here only.
type Config struct {
	WorkDir string `toml:"work_dir" env:"KIRKIFIER_WORK_DIR"`

	FFmpegPath  string `toml:"ffmpeg_path" env:"KIRKIFIER_FFMPEG"`
	FFprobePath string `toml:"ffprobe_path" env:"KIRKIFIER_FFPROBE"`
	// FrameQuality is ffmpeg's -q:v for extracted frames (1 best, 31 worst).
	FrameQuality int    `toml:"frame_quality" env:"KIRKIFIER_FRAME_QUALITY"`
	VideoCodec   string `toml:"video_codec" env:"KIRKIFIER_VIDEO_CODEC"`
	PixelFormat  string `toml:"pixel_format" env:"KIRKIFIER_PIXEL_FORMAT"`

	PythonPath      string   `toml:"python_path" env:"KIRKIFIER_PYTHON"`
	WorkerScript    string   `toml:"worker_script" env:"KIRKIFIER_WORKER_SCRIPT"`
	AnalysisModel   string   `toml:"analysis_model" env:"KIRKIFIER_ANALYSIS_MODEL"`
	SwapModel       string   `toml:"swap_model" env:"KIRKIFIER_SWAP_MODEL"`
	DetectionSize   int      `toml:"detection_size" env:"KIRKIFIER_DETECTION_SIZE"`
	DeviceID        int      `toml:"device_id" env:"KIRKIFIER_DEVICE_ID"`
	ReferenceImages []string `toml:"reference_images" env:"KIRKIFIER_REFERENCE_IMAGES" envSeparator:","`

	DatabaseURL string `toml:"database_url" env:"KIRKIFIER_DATABASE_URL"`
	LogLevel    string `toml:"log_level" env:"KIRKIFIER_LOG_LEVEL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		WorkDir:       ".",
		FFmpegPath:    "ffmpeg",
		FFprobePath:   "ffprobe",
		FrameQuality:  2,
		VideoCodec:    "libx264",
		PixelFormat:   "yuv420p",
		PythonPath:    "python3",
		WorkerScript:  "python/worker.py",
		AnalysisModel: "buffalo_l",
		SwapModel:     "inswapper_128.onnx",
		DetectionSize: 640,
		DeviceID:      0,
		ReferenceImages: []string{
			"kirks/kirk_0.jpg",
			"kirks/kirk_1.jpg",
			"kirks/kirk_2.jpg",
		},
		LogLevel: "info",
	}
}

// Load resolves the configuration: defaults, then the TOML file, then the environment
// (including a best-effort .env), then validation.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort: load .env if present

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("KIRKIFIER_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultFile
	}

	// A missing default file is fine; a missing explicit one is not.
	if err := loadFile(path, &cfg); err != nil && (explicit || !errors.Is(err, fs.ErrNotExist)) {
		return nil, err
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize() {
	c.WorkDir = strings.TrimSpace(c.WorkDir)
	if c.WorkDir == "" {
		c.WorkDir = "."
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	pool := c.ReferenceImages[:0]
	for _, p := range c.ReferenceImages {
		if p = strings.TrimSpace(p); p != "" {
			pool = append(pool, p)
		}
	}
	c.ReferenceImages = pool
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if len(c.ReferenceImages) == 0 {
		return errors.New("config: reference_images must list at least one image")
	}
	if c.FrameQuality < 1 || c.FrameQuality > 31 {
		return fmt.Errorf("config: frame_quality must be between 1 and 31, got %d", c.FrameQuality)
	}
	if c.DetectionSize <= 0 {
		return fmt.Errorf("config: detection_size must be positive, got %d", c.DetectionSize)
	}
	if c.FFmpegPath == "" || c.FFprobePath == "" {
		return errors.New("config: ffmpeg_path and ffprobe_path are required")
	}
	if c.PythonPath == "" || c.WorkerScript == "" {
		return errors.New("config: python_path and worker_script are required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	return nil
}
