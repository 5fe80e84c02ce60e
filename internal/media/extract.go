package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/andresmejia3/kirkifier/internal/types"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

// quietArgs keeps ffmpeg's stderr down to real errors so the captured buffer stays small.
var quietArgs = []string{"-hide_banner", "-loglevel", "error"}

// ExtractFrames decodes every frame of videoPath into numbered PNGs following pattern
// (e.g. unprocessed_frames/frame_%04d.png) and returns how many were written.
func (t *Tool) ExtractFrames(ctx context.Context, videoPath, pattern string) (int, error) {
	dir := filepath.Dir(pattern)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create frames dir: %w", err)
	}

	args := t.extractFramesArgs(videoPath, pattern)
	if _, err := t.Runner.Run(ctx, t.FFmpeg, args...); err != nil {
		return 0, fmt.Errorf("extract frames: %w", err)
	}

	frames, err := ListFrames(dir)
	if err != nil {
		return 0, err
	}
	if len(frames) == 0 {
		return 0, fmt.Errorf("extract frames: no frames decoded from %s", videoPath)
	}
	t.Log.Info("frames extracted", zap.Int("count", len(frames)), zap.String("dir", dir))
	return len(frames), nil
}

func (t *Tool) extractFramesArgs(videoPath, pattern string) []string {
	return ffmpeg.Input(videoPath).
		Output(pattern, ffmpeg.KwArgs{"q:v": strconv.Itoa(t.FrameQuality)}).
		GlobalArgs(quietArgs...).
		OverWriteOutput().
		GetArgs()
}

// ExtractAudio copies the audio stream of videoPath into audioPath without re-encoding.
// Inputs without an audio stream fail here.
func (t *Tool) ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	args := t.extractAudioArgs(videoPath, audioPath)
	if _, err := t.Runner.Run(ctx, t.FFmpeg, args...); err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}
	t.Log.Info("audio extracted", zap.String("path", audioPath))
	return nil
}

func (t *Tool) extractAudioArgs(videoPath, audioPath string) []string {
	return ffmpeg.Input(videoPath).
		Audio().
		Output(audioPath, ffmpeg.KwArgs{"c:a": "copy"}).
		GlobalArgs(quietArgs...).
		OverWriteOutput().
		GetArgs()
}

// ListFrames returns the frame_<n>.png files in dir sorted by numeric index.
// Lexical order breaks past frame_9999, so the index is parsed.
func ListFrames(dir string) ([]types.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}

	var frames []types.Frame
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		idx, ok := frameIndex(e.Name())
		if !ok {
			continue
		}
		frames = append(frames, types.Frame{Index: idx, Name: e.Name()})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].Index < frames[j].Index })
	return frames, nil
}

func frameIndex(name string) (int, bool) {
	if !strings.HasPrefix(name, "frame_") || !strings.HasSuffix(name, ".png") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "frame_"), ".png"))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
