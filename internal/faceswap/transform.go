// Package faceswap applies the reference face to every frame of a conversion.
package faceswap

import (
	"fmt"
	"os"

	"github.com/andresmejia3/kirkifier/internal/types"
)

// Detector finds faces in an encoded image.
type Detector interface {
	Detect(img []byte) ([]types.Face, error)
}

// Swapper pastes reference over target inside img and returns the new encoded image.
type Swapper interface {
	Swap(img []byte, target, reference types.Face) ([]byte, error)
}

// Engine is the inference capability a run needs. *worker.PythonWorker satisfies it.
type Engine interface {
	Detector
	Swapper
}

// TransformFrame writes src to dst with every detected face replaced by ref.
// Faces are swapped one after another in detection order, each swap building on
// the previous result. A frame without faces is copied byte for byte.
func TransformFrame(eng Engine, src, dst string, ref types.Face) (int, error) {
	img, err := os.ReadFile(src)
	if err != nil {
		return 0, fmt.Errorf("read frame: %w", err)
	}

	faces, err := eng.Detect(img)
	if err != nil {
		return 0, fmt.Errorf("detect faces in %s: %w", src, err)
	}

	res := img
	for i, face := range faces {
		res, err = eng.Swap(res, face, ref)
		if err != nil {
			return i, fmt.Errorf("swap face %d in %s: %w", i, src, err)
		}
	}

	if err := os.WriteFile(dst, res, 0644); err != nil {
		return len(faces), fmt.Errorf("write frame: %w", err)
	}
	return len(faces), nil
}
