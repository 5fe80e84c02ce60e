package faceswap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/andresmejia3/kirkifier/internal/media"
	"github.com/andresmejia3/kirkifier/internal/types"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// ErrNoReferenceFace means the chosen reference image contains no detectable face.
var ErrNoReferenceFace = errors.New("no face detected in reference image")

// Pipeline swaps one reference identity into every frame of a run.
type Pipeline struct {
	Engine Engine
	// Pool holds the candidate reference images; one is chosen per run.
	Pool []string
	// Pick returns a uniform index in [0, n). Defaults to math/rand/v2.
	Pick func(n int) int
	// Progress receives the progress bar. Defaults to os.Stderr.
	Progress io.Writer
	Log      *zap.Logger
}

// Stats summarizes a finished run.
type Stats struct {
	Frames       int
	FacesSwapped int
	Reference    string
}

// SelectReference picks an image from the pool and returns its first detected face.
func (p *Pipeline) SelectReference() (types.Face, string, error) {
	if len(p.Pool) == 0 {
		return types.Face{}, "", errors.New("reference pool is empty")
	}
	pick := p.Pick
	if pick == nil {
		pick = rand.Intn
	}
	path := p.Pool[pick(len(p.Pool))]

	img, err := os.ReadFile(path)
	if err != nil {
		return types.Face{}, path, fmt.Errorf("read reference image: %w", err)
	}
	faces, err := p.Engine.Detect(img)
	if err != nil {
		return types.Face{}, path, fmt.Errorf("detect reference face: %w", err)
	}
	if len(faces) == 0 {
		return types.Face{}, path, fmt.Errorf("%w: %s", ErrNoReferenceFace, path)
	}

	p.logger().Info("reference face selected",
		zap.String("image", path),
		zap.Int("faces_in_image", len(faces)),
		zap.Float32("face_area", faces[0].Area()),
	)
	return faces[0], path, nil
}

// Run selects the reference face once, then transforms every frame of inDir into
// outDir under the same filename, in ascending frame order.
func (p *Pipeline) Run(ctx context.Context, inDir, outDir string) (Stats, error) {
	var stats Stats

	ref, refPath, err := p.SelectReference()
	if err != nil {
		return stats, err
	}
	stats.Reference = refPath

	frames, err := media.ListFrames(inDir)
	if err != nil {
		return stats, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return stats, fmt.Errorf("create output dir: %w", err)
	}

	progress := p.Progress
	if progress == nil {
		progress = os.Stderr
	}
	bar := progressbar.NewOptions(len(frames),
		progressbar.OptionSetDescription("🎭 Processing frames"),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("frame"),
		progressbar.OptionShowIts(),
	)

	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		src := filepath.Join(inDir, frame.Name)
		dst := filepath.Join(outDir, frame.Name)
		n, err := TransformFrame(p.Engine, src, dst, ref)
		stats.FacesSwapped += n
		if err != nil {
			return stats, err
		}
		stats.Frames++
		bar.Add(1)
	}
	bar.Finish()

	p.logger().Info("frames processed",
		zap.Int("frames", stats.Frames),
		zap.Int("faces_swapped", stats.FacesSwapped),
	)
	return stats, nil
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}
