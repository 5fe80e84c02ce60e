package worker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/andresmejia3/kirkifier/internal/types"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

func newMockWorker() (*PythonWorker, *MockCloser, *MockCloser) {
	// stdinMock simulates the pipe TO Python (we write to it)
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	// dataPipeMock simulates the pipe FROM Python (we read from it)
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}

	w := &PythonWorker{
		ID:       1,
		Stdin:    stdinMock,
		DataPipe: dataPipeMock,
		// Cmd is nil because we aren't testing process management, just the protocol
	}
	return w, stdinMock, dataPipeMock
}

// queueResponse writes a length-prefixed response as "Python" would.
func queueResponse(pipe io.Writer, payload []byte) {
	binary.Write(pipe, binary.BigEndian, uint32(len(payload)))
	pipe.Write(payload)
}

// readRequest pops one length-prefixed request that Go sent.
func readRequest(t *testing.T, r io.Reader) []byte {
	t.Helper()
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		t.Fatalf("reading request header: %v", err)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		t.Fatalf("reading request body: %v", err)
	}
	return body
}

func faceFixture(seed float32) types.Face {
	f := types.Face{
		Box:   [4]float32{10 + seed, 10, 20, 20},
		Score: 0.99,
		Vec:   make([]float64, 512),
	}
	for i := range f.Kps {
		f.Kps[i] = [2]float32{float32(i) + seed, float32(i) * 2}
	}
	f.Vec[0] = 0.5
	f.Vec[511] = -0.25
	return f
}

func encodeFaces(faces ...types.Face) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(StatusOK)
	binary.Write(buf, binary.BigEndian, uint32(len(faces)))
	for _, f := range faces {
		writeFace(buf, f)
	}
	return buf.Bytes()
}

func TestPing(t *testing.T) {
	w, stdin, data := newMockWorker()
	queueResponse(data, []byte{StatusOK})

	if err := w.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	req := readRequest(t, stdin)
	if len(req) != 1 || req[0] != OpPing {
		t.Errorf("Expected ping request, got %X", req)
	}
}

func TestDetect(t *testing.T) {
	w, stdin, data := newMockWorker()

	// Protocol: [Status:0] [NumFaces:2] [Face] [Face]
	queueResponse(data, encodeFaces(faceFixture(0), faceFixture(1)))

	inputFrame := []byte{0xDE, 0xAD, 0xBE, 0xEF} // Fake image bytes
	faces, err := w.Detect(inputFrame)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// Verify Go sent the correct data TO Python
	req := readRequest(t, stdin)
	if req[0] != OpDetect || !bytes.Equal(req[1:], inputFrame) {
		t.Errorf("Unexpected detect request %X", req)
	}

	// Verify Go read the correct data FROM Python
	if len(faces) != 2 {
		t.Fatalf("Expected 2 faces, got %d", len(faces))
	}
	// Use epsilon for float comparison
	if math.Abs(faces[0].Vec[0]-0.5) > 1e-9 || math.Abs(faces[0].Vec[511]+0.25) > 1e-9 {
		t.Errorf("Embedding mismatch: %v ... %v", faces[0].Vec[0], faces[0].Vec[511])
	}
	if faces[1].Box[0] != 11 || faces[1].Kps[4] != [2]float32{5, 8} {
		t.Errorf("Geometry mismatch: box %v kps %v", faces[1].Box, faces[1].Kps)
	}
}

func TestDetect_NoFaces(t *testing.T) {
	w, _, data := newMockWorker()
	queueResponse(data, encodeFaces())

	faces, err := w.Detect([]byte("frame"))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("Expected no faces, got %d", len(faces))
	}
}

func TestSwap(t *testing.T) {
	w, stdin, data := newMockWorker()

	swapped := []byte{0x89, 'P', 'N', 'G'}
	payload := new(bytes.Buffer)
	payload.WriteByte(StatusOK)
	binary.Write(payload, binary.BigEndian, uint32(len(swapped)))
	payload.Write(swapped)
	queueResponse(data, payload.Bytes())

	target, ref := faceFixture(0), faceFixture(7)
	img := []byte("frame-bytes")
	out, err := w.Swap(img, target, ref)
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	if !bytes.Equal(out, swapped) {
		t.Errorf("Expected %X, got %X", swapped, out)
	}

	// Decode what we sent: [op][imgLen][img][target][ref]
	req := bytes.NewReader(readRequest(t, stdin))
	op, _ := req.ReadByte()
	if op != OpSwap {
		t.Fatalf("Expected swap opcode, got %X", op)
	}
	var n uint32
	binary.Read(req, binary.BigEndian, &n)
	sentImg := make([]byte, n)
	req.Read(sentImg)
	if !bytes.Equal(sentImg, img) {
		t.Errorf("Image not forwarded intact: %q", sentImg)
	}
	gotTarget, err := readFace(req)
	if err != nil {
		t.Fatalf("target face: %v", err)
	}
	gotRef, err := readFace(req)
	if err != nil {
		t.Fatalf("reference face: %v", err)
	}
	if gotTarget.Box != target.Box || gotRef.Kps != ref.Kps {
		t.Errorf("Faces not forwarded intact")
	}
	if req.Len() != 0 {
		t.Errorf("Trailing %d bytes in swap request", req.Len())
	}
}

func TestDetect_Error(t *testing.T) {
	w, _, data := newMockWorker()

	// Protocol: [Status:1] [MsgLen] [Msg]
	payload := new(bytes.Buffer)
	payload.WriteByte(StatusError)
	errMsg := "cv2.imdecode returned None"
	binary.Write(payload, binary.BigEndian, uint32(len(errMsg)))
	payload.WriteString(errMsg)
	queueResponse(data, payload.Bytes())

	_, err := w.Detect([]byte("frame"))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	var werr *Error
	if !errors.As(err, &werr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if err.Error() != "python worker error: "+errMsg {
		t.Errorf("Expected error message '%s', got '%v'", "python worker error: "+errMsg, err)
	}
}

func TestCommunicate_Crash(t *testing.T) {
	// An empty data pipe is what we see when Python dies mid-request.
	w, _, _ := newMockWorker()
	if _, err := w.Detect([]byte("frame")); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF from a dead worker, got %v", err)
	}
}

func TestDecodeFaces_Truncated(t *testing.T) {
	full := encodeFaces(faceFixture(0))[1:] // strip status
	if _, err := DecodeFaces(full[:len(full)-3]); err == nil {
		t.Error("Expected error for truncated face record")
	}
}

func TestDecodeImage_Empty(t *testing.T) {
	if _, err := DecodeImage([]byte{0, 0, 0, 0}); err == nil {
		t.Error("Expected error for empty image")
	}
}

func TestParseStatus_Unknown(t *testing.T) {
	if _, err := parseStatus([]byte{7}); err == nil {
		t.Error("Expected error for unknown status")
	}
}

func TestStartError(t *testing.T) {
	err := &StartError{ID: 0, Err: io.EOF, Logs: "ModuleNotFoundError: insightface"}
	if !errors.Is(err, io.EOF) {
		t.Error("StartError should unwrap to the pipe error")
	}
	if got := tail("abcdef", 3); got != "...def" {
		t.Errorf("tail() = %q", got)
	}
}
