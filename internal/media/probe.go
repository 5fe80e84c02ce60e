package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// FrameRate is an exact ffprobe rational such as 30000/1001.
type FrameRate struct {
	Num int
	Den int
}

// String renders the rate in the form ffmpeg accepts for -framerate.
func (r FrameRate) String() string {
	if r.Den == 1 {
		return strconv.Itoa(r.Num)
	}
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Float returns frames per second.
func (r FrameRate) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r FrameRate) valid() bool { return r.Num > 0 && r.Den > 0 }

// ParseFrameRate parses "num/den" or a plain decimal ("25", "29.97").
func ParseFrameRate(s string) (FrameRate, error) {
	s = strings.TrimSpace(s)
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.Atoi(num)
		if err != nil {
			return FrameRate{}, fmt.Errorf("parse frame rate %q: %w", s, err)
		}
		d, err := strconv.Atoi(den)
		if err != nil {
			return FrameRate{}, fmt.Errorf("parse frame rate %q: %w", s, err)
		}
		return FrameRate{Num: n, Den: d}, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return FrameRate{}, fmt.Errorf("parse frame rate %q: %w", s, err)
	}
	if f == float64(int(f)) {
		return FrameRate{Num: int(f), Den: 1}, nil
	}
	return FrameRate{Num: int(f*1000 + 0.5), Den: 1000}, nil
}

type ffprobeStreams struct {
	Streams []struct {
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
	} `json:"streams"`
}

// ProbeFrameRate reads the first video stream's frame rate with ffprobe.
// avg_frame_rate is preferred; r_frame_rate covers containers that report 0/0.
func (t *Tool) ProbeFrameRate(ctx context.Context, videoPath string) (FrameRate, error) {
	out, err := t.Runner.Run(ctx, t.FFprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate,r_frame_rate",
		"-of", "json",
		videoPath,
	)
	if err != nil {
		return FrameRate{}, fmt.Errorf("probe frame rate: %w", err)
	}

	var res ffprobeStreams
	if err := json.Unmarshal(out, &res); err != nil {
		return FrameRate{}, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return FrameRate{}, fmt.Errorf("probe frame rate: no video stream in %s", videoPath)
	}

	for _, candidate := range []string{res.Streams[0].AvgFrameRate, res.Streams[0].RFrameRate} {
		if candidate == "" {
			continue
		}
		rate, err := ParseFrameRate(candidate)
		if err == nil && rate.valid() {
			t.Log.Info("frame rate probed", zap.String("rate", rate.String()), zap.Float64("fps", rate.Float()))
			return rate, nil
		}
	}
	return FrameRate{}, fmt.Errorf("probe frame rate: no usable rate for %s (avg=%q r=%q)",
		videoPath, res.Streams[0].AvgFrameRate, res.Streams[0].RFrameRate)
}
