package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/kirkifier/internal/config"
	"github.com/andresmejia3/kirkifier/internal/faceswap"
	"github.com/andresmejia3/kirkifier/internal/media"
	"github.com/andresmejia3/kirkifier/internal/store"
	"github.com/andresmejia3/kirkifier/internal/utils"
	"github.com/andresmejia3/kirkifier/internal/worker"
	"github.com/andresmejia3/kirkifier/internal/workspace"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// engine is a running inference backend.
type engine interface {
	faceswap.Engine
	Close() error
}

// historyRecorder is the slice of *store.Store a conversion needs.
type historyRecorder interface {
	RecordRun(ctx context.Context, r store.Run) (uuid.UUID, error)
	Close(ctx context.Context)
}

// converter runs one conversion. Every external dependency is a field so the
// whole flow can be driven with fakes.
type converter struct {
	cfg   *config.Config
	log   *zap.Logger
	media *media.Tool
	ws    *workspace.Workspace

	startEngine func(ctx context.Context) (engine, error)
	openHistory func(ctx context.Context, url string) (historyRecorder, error)
	pick        func(n int) int

	stdout   io.Writer
	stderr   io.Writer
	progress io.Writer
}

func newConverter(cfg *config.Config, log *zap.Logger) *converter {
	tool := media.New(cfg.FFmpegPath, cfg.FFprobePath, nil, log)
	tool.FrameQuality = cfg.FrameQuality
	tool.VideoCodec = cfg.VideoCodec
	tool.PixelFormat = cfg.PixelFormat

	return &converter{
		cfg:   cfg,
		log:   log,
		media: tool,
		ws:    workspace.New(cfg.WorkDir),
		startEngine: func(ctx context.Context) (engine, error) {
			return worker.NewPythonWorker(ctx, 0, workerConfig(cfg))
		},
		openHistory: func(ctx context.Context, url string) (historyRecorder, error) {
			return store.New(ctx, url)
		},
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

func workerConfig(cfg *config.Config) worker.Config {
	return worker.Config{
		Python:        cfg.PythonPath,
		Script:        cfg.WorkerScript,
		AnalysisModel: cfg.AnalysisModel,
		SwapModel:     cfg.SwapModel,
		DetectionSize: cfg.DetectionSize,
		DeviceID:      cfg.DeviceID,
	}
}

// validateConvertArgs rejects inputs before anything touches the disk.
func validateConvertArgs(input, output string) error {
	info, err := os.Stat(input)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("input video %q does not exist", input)
	}
	if err != nil {
		return fmt.Errorf("input video %q: %w", input, err)
	}
	if info.IsDir() {
		return fmt.Errorf("input video %q is a directory", input)
	}
	if output == "" {
		return errors.New("output path is empty")
	}

	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	absOut, err := filepath.Abs(output)
	if err != nil {
		return err
	}
	if absIn == absOut {
		return errors.New("input and output must be different files")
	}
	if outInfo, err := os.Stat(output); err == nil && os.SameFile(info, outInfo) {
		return errors.New("input and output must be different files")
	}
	return nil
}

// fail prints the error box and marks err as reported.
func (c *converter) fail(context string, err error, eng engine) error {
	var logs *utils.SafeCommand
	var startErr *worker.StartError
	switch {
	case errors.As(err, &startErr) && startErr.Logs != "":
		logs = &utils.SafeCommand{Stderr: bytes.NewBufferString(startErr.Logs)}
	default:
		if pw, ok := eng.(*worker.PythonWorker); ok {
			// Drain: wait for the process so its last stderr lines are captured.
			pw.Close()
			logs = pw.Cmd
		}
	}
	utils.ErrorOutput = c.stderr
	utils.ShowError(context, err, logs)
	return &reportedError{err: err}
}

func (c *converter) run(ctx context.Context, input, output string) error {
	if err := validateConvertArgs(input, output); err != nil {
		return err
	}
	started := time.Now()

	fmt.Fprintln(c.stderr, "🧠 Loading face models...")
	eng, err := c.startEngine(ctx)
	if err != nil {
		return c.fail("Worker startup failed", err, nil)
	}
	defer eng.Close()

	if err := c.ws.Acquire(); err != nil {
		return c.fail("Could not lock the working directory", err, nil)
	}
	defer func() {
		if err := c.ws.Release(); err != nil {
			c.log.Warn("failed to release workspace lock", zap.Error(err))
		}
	}()

	stale, err := c.ws.Prepare()
	if err != nil {
		return c.fail("Could not prepare the working directory", err, nil)
	}
	if len(stale) > 0 {
		c.log.Info("removed leftovers from a previous run", zap.Strings("paths", stale))
	}

	fmt.Fprintf(c.stderr, "🎞️  Extracting frames from %s...\n", input)
	frames, err := c.media.ExtractFrames(ctx, input, c.ws.UnprocessedPattern())
	if err != nil {
		return c.fail("Frame extraction failed", err, nil)
	}

	fmt.Fprintln(c.stderr, "🔊 Extracting audio...")
	if err := c.media.ExtractAudio(ctx, input, c.ws.AudioPath()); err != nil {
		return c.fail("Audio extraction failed", err, nil)
	}

	pipe := &faceswap.Pipeline{
		Engine:   eng,
		Pool:     c.cfg.ReferenceImages,
		Pick:     c.pick,
		Progress: c.progress,
		Log:      c.log,
	}
	stats, err := pipe.Run(ctx, c.ws.UnprocessedDir(), c.ws.ProcessedDir())
	if err != nil {
		return c.fail("Face swapping failed", err, eng)
	}
	if stats.Frames != frames {
		return c.fail("Face swapping failed", fmt.Errorf("extracted %d frames but processed %d", frames, stats.Frames), nil)
	}

	rate, err := c.media.ProbeFrameRate(ctx, input)
	if err != nil {
		return c.fail("Failed to determine video frame rate", err, nil)
	}

	fmt.Fprintf(c.stderr, "\n🎬 Reassembling video at %s fps...\n", rate)
	if err := c.media.Reassemble(ctx, rate, c.ws.ProcessedPattern(), c.ws.AudioPath(), output); err != nil {
		return c.fail("Reassembly failed", err, nil)
	}

	fmt.Fprintln(c.stderr, "🧹 Cleaning up...")
	if err := c.ws.Cleanup(); err != nil {
		return c.fail("Cleanup failed", err, nil)
	}

	c.recordHistory(ctx, store.Run{
		InputPath:    input,
		OutputPath:   output,
		Reference:    stats.Reference,
		FrameRate:    rate.String(),
		Frames:       stats.Frames,
		FacesSwapped: stats.FacesSwapped,
		StartedAt:    started,
		FinishedAt:   time.Now(),
	})

	fmt.Fprintf(c.stdout, "Done! Output saved to %s\n", output)
	return nil
}

// recordHistory is best effort: the output video already exists.
func (c *converter) recordHistory(ctx context.Context, run store.Run) {
	if c.cfg.DatabaseURL == "" || c.openHistory == nil {
		return
	}
	videoID, err := utils.GenerateVideoID(run.InputPath)
	if err != nil {
		c.log.Warn("could not fingerprint input, history not recorded", zap.Error(err))
		return
	}
	run.VideoID = videoID

	db, err := c.openHistory(ctx, c.cfg.DatabaseURL)
	if err != nil {
		c.log.Warn("could not open run history", zap.Error(err))
		return
	}
	// ctx may already be cancelled, the close must still go out.
	defer db.Close(context.Background())

	id, err := db.RecordRun(ctx, run)
	if err != nil {
		c.log.Warn("could not record run", zap.Error(err))
		return
	}
	c.log.Info("run recorded", zap.String("id", id.String()), zap.String("video_id", videoID[:12]))
}
