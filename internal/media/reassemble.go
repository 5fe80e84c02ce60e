package media

import (
	"context"
	"fmt"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

// Reassemble encodes the frames matching pattern at rate, muxes in the audio track
// and truncates the result to the shorter of the two streams.
func (t *Tool) Reassemble(ctx context.Context, rate FrameRate, pattern, audioPath, outPath string) error {
	if !rate.valid() {
		return fmt.Errorf("reassemble: invalid frame rate %s", rate)
	}

	args := t.reassembleArgs(rate, pattern, audioPath, outPath)
	if _, err := t.Runner.Run(ctx, t.FFmpeg, args...); err != nil {
		return fmt.Errorf("reassemble video: %w", err)
	}
	t.Log.Info("video reassembled", zap.String("output", outPath), zap.String("rate", rate.String()))
	return nil
}

func (t *Tool) reassembleArgs(rate FrameRate, pattern, audioPath, outPath string) []string {
	frames := ffmpeg.Input(pattern, ffmpeg.KwArgs{"framerate": rate.String()})
	audio := ffmpeg.Input(audioPath)

	return ffmpeg.Output([]*ffmpeg.Stream{frames, audio}, outPath, ffmpeg.KwArgs{
		"c:v":      t.VideoCodec,
		"pix_fmt":  t.PixelFormat,
		"c:a":      "copy",
		"shortest": "",
	}).
		GlobalArgs(quietArgs...).
		OverWriteOutput().
		GetArgs()
}
