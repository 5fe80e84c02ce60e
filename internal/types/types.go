package types

// Frame is one extracted still image, identified by its sequence index.
type Frame struct {
	Index int
	Name  string // e.g. frame_0001.png
}

// Face is a detection returned by the inference worker.
// The same shape is used for the per-run reference face.
type Face struct {
	Box   [4]float32    // [x1, y1, x2, y2] in source pixels
	Kps   [5][2]float32 // eyes, nose, mouth corners; drives swap alignment
	Score float32       // detector confidence
	Vec   []float64     // 512-d identity embedding
}

// Area returns the box area in pixels.
func (f Face) Area() float32 {
	w := f.Box[2] - f.Box[0]
	h := f.Box[3] - f.Box[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}
