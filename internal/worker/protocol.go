package worker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/andresmejia3/kirkifier/internal/types"
)

// Request opcodes. Every request body starts with one of these.
const (
	OpPing   byte = 0x00
	OpDetect byte = 0x01
	OpSwap   byte = 0x02
)

// Response status bytes.
const (
	StatusOK    byte = 0
	StatusError byte = 1
)

const (
	maxMessage   = 512 << 20 // 8K PNG frames stay well below this
	maxFaces     = 4096
	maxEmbedding = 4096
)

// Error is a failure reported by the Python side (as opposed to a crash).
type Error struct {
	Msg string
}

func (e *Error) Error() string { return "python worker error: " + e.Msg }

var errShort = errors.New("truncated worker response")

// EncodeDetect builds a Detect request body.
func EncodeDetect(img []byte) []byte {
	body := make([]byte, 0, 1+len(img))
	body = append(body, OpDetect)
	return append(body, img...)
}

// EncodeSwap builds a Swap request body: [op][imgLen][img][target][reference].
func EncodeSwap(img []byte, target, reference types.Face) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(1 + 4 + len(img) + 2*faceRecordSize(512))
	buf.WriteByte(OpSwap)
	binary.Write(buf, binary.BigEndian, uint32(len(img)))
	buf.Write(img)
	writeFace(buf, target)
	writeFace(buf, reference)
	return buf.Bytes()
}

func faceRecordSize(dim int) int {
	// box + kps + score + dim + vec
	return 4*4 + 10*4 + 4 + 4 + dim*4
}

func writeFace(buf *bytes.Buffer, f types.Face) {
	binary.Write(buf, binary.BigEndian, f.Box)
	binary.Write(buf, binary.BigEndian, f.Kps)
	binary.Write(buf, binary.BigEndian, f.Score)
	binary.Write(buf, binary.BigEndian, uint32(len(f.Vec)))
	for _, v := range f.Vec {
		binary.Write(buf, binary.BigEndian, float32(v))
	}
}

// parseStatus splits a response into its payload or the reported error.
// Protocol: [Status:0][Payload] or [Status:1][MsgLen][Msg]
func parseStatus(resp []byte) ([]byte, error) {
	if len(resp) == 0 {
		return nil, errShort
	}
	switch resp[0] {
	case StatusOK:
		return resp[1:], nil
	case StatusError:
		r := bytes.NewReader(resp[1:])
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, errShort
		}
		if int(n) > r.Len() {
			return nil, errShort
		}
		msg := make([]byte, n)
		r.Read(msg)
		return nil, &Error{Msg: string(msg)}
	default:
		return nil, fmt.Errorf("unknown worker status %d", resp[0])
	}
}

// DecodeFaces parses [NumFaces] followed by that many face records.
func DecodeFaces(body []byte) ([]types.Face, error) {
	r := bytes.NewReader(body)
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, errShort
	}
	if n > maxFaces {
		return nil, fmt.Errorf("worker reported %d faces", n)
	}

	faces := make([]types.Face, 0, n)
	for i := uint32(0); i < n; i++ {
		f, err := readFace(r)
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		faces = append(faces, f)
	}
	return faces, nil
}

func readFace(r *bytes.Reader) (types.Face, error) {
	var f types.Face
	if err := binary.Read(r, binary.BigEndian, &f.Box); err != nil {
		return f, errShort
	}
	if err := binary.Read(r, binary.BigEndian, &f.Kps); err != nil {
		return f, errShort
	}
	if err := binary.Read(r, binary.BigEndian, &f.Score); err != nil {
		return f, errShort
	}
	var dim uint32
	if err := binary.Read(r, binary.BigEndian, &dim); err != nil {
		return f, errShort
	}
	if dim > maxEmbedding {
		return f, fmt.Errorf("embedding dimension %d", dim)
	}
	raw := make([]float32, dim)
	if err := binary.Read(r, binary.BigEndian, raw); err != nil {
		return f, errShort
	}
	f.Vec = make([]float64, dim)
	for i, v := range raw {
		if math.IsNaN(float64(v)) {
			return f, errors.New("embedding contains NaN")
		}
		f.Vec[i] = float64(v)
	}
	return f, nil
}

// DecodeImage parses [ImgLen][Img].
func DecodeImage(body []byte) ([]byte, error) {
	r := bytes.NewReader(body)
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, errShort
	}
	if int(n) > r.Len() {
		return nil, errShort
	}
	if n == 0 {
		return nil, errors.New("worker returned an empty image")
	}
	img := make([]byte, n)
	r.Read(img)
	return img, nil
}
