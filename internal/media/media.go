// Package media wraps the ffmpeg/ffprobe invocations of a conversion:
// frame and audio extraction, frame-rate probing, and reassembly.
package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andresmejia3/kirkifier/internal/utils"
	"go.uber.org/zap"
)

// Runner executes an external tool and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandError is returned when an external tool exits non-zero.
type CommandError struct {
	Tool   string
	Args   []string
	Err    error
	Stderr string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExecRunner runs tools as child processes, capturing stderr for diagnostics.
type ExecRunner struct {
	Log *zap.Logger
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	cmd := utils.NewSafeCommand(ctx, name, args...)
	log.Debug("exec", zap.String("tool", name), zap.Strings("args", args))

	start := time.Now()
	out, err := cmd.Output()
	if err != nil {
		return out, &CommandError{Tool: name, Args: args, Err: err, Stderr: cmd.Stderr.String()}
	}
	log.Debug("exec done", zap.String("tool", name), zap.Duration("took", time.Since(start)))
	return out, nil
}

// Tool is the ffmpeg/ffprobe front end used by the orchestrator.
type Tool struct {
	FFmpeg       string
	FFprobe      string
	FrameQuality int
	VideoCodec   string
	PixelFormat  string

	Runner Runner
	Log    *zap.Logger
}

// New returns a Tool with the default encoding policy:
// -q:v 2 frames, libx264 / yuv420p output.
func New(ffmpegPath, ffprobePath string, runner Runner, log *zap.Logger) *Tool {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if runner == nil {
		runner = ExecRunner{Log: log}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tool{
		FFmpeg:       ffmpegPath,
		FFprobe:      ffprobePath,
		FrameQuality: 2,
		VideoCodec:   "libx264",
		PixelFormat:  "yuv420p",
		Runner:       runner,
		Log:          log,
	}
}
