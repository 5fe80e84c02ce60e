package worker

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/andresmejia3/kirkifier/internal/types"
	"github.com/andresmejia3/kirkifier/internal/utils" // Using the SafeCommand wrapper
)

// Config describes how to launch the Python inference worker.
type Config struct {
	Python        string // interpreter, e.g. python3
	Script        string // path to worker.py
	AnalysisModel string // insightface analysis pack, e.g. buffalo_l
	SwapModel     string // swapper weights, e.g. inswapper_128.onnx
	DetectionSize int    // detector input edge in pixels
	DeviceID      int    // onnxruntime ctx_id; -1 forces CPU
}

// PythonWorker owns one insightface process. It is not safe for concurrent use.
type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
}

// NewPythonWorker starts the worker and blocks until its models are loaded.
// Model weights are fetched on first use, which is what `kirkifier init` relies on.
func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	// 1. Initialize the SafeCommand
	py := utils.NewSafeCommand(ctx, cfg.Python, "-u", cfg.Script,
		"--analysis-model", cfg.AnalysisModel,
		"--swap-model", cfg.SwapModel,
		"--det-size", strconv.Itoa(cfg.DetectionSize),
		"--ctx-id", strconv.Itoa(cfg.DeviceID),
	)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	pw := &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
	}

	// The worker only starts reading requests once both models are in memory,
	// so a successful Ping doubles as the readiness handshake.
	if err := pw.Ping(); err != nil {
		pw.Close()
		return nil, &StartError{ID: id, Err: err, Logs: tail(py.Stderr.String(), maxLogTail)}
	}
	return pw, nil
}

const maxLogTail = 4096

// StartError carries the Python logs of a worker that died during startup.
type StartError struct {
	ID   int
	Err  error
	Logs string
}

func (e *StartError) Error() string {
	return fmt.Sprintf("worker %d did not become ready: %v", e.ID, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// Ping round-trips an empty request.
func (w *PythonWorker) Ping() error {
	resp, err := w.Communicate([]byte{OpPing})
	if err != nil {
		return err
	}
	_, err = parseStatus(resp)
	return err
}

// Detect returns every face found in the encoded image, in detector order.
func (w *PythonWorker) Detect(img []byte) ([]types.Face, error) {
	resp, err := w.Communicate(EncodeDetect(img))
	if err != nil {
		return nil, err
	}
	body, err := parseStatus(resp)
	if err != nil {
		return nil, err
	}
	return DecodeFaces(body)
}

// Swap replaces target in img with the likeness of reference and pastes the
// result back into the full frame. The returned bytes are a PNG.
func (w *PythonWorker) Swap(img []byte, target, reference types.Face) ([]byte, error) {
	resp, err := w.Communicate(EncodeSwap(img, target, reference))
	if err != nil {
		return nil, err
	}
	body, err := parseStatus(resp)
	if err != nil {
		return nil, err
	}
	return DecodeImage(body)
}

// Communicate sends one framed request and reads one framed response.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	// Read Result from the clean DataPipe, Python's own prints stay on stdout/stderr.
	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch an import error or OOM crash
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxMessage {
		return nil, fmt.Errorf("worker response too large: %d bytes", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// Close shuts the worker down: closing stdin makes the Python loop exit.
func (w *PythonWorker) Close() error {
	if w.Stdin != nil {
		w.Stdin.Close()
	}
	if w.DataPipe != nil {
		w.DataPipe.Close()
	}
	if w.Cmd != nil {
		return w.Cmd.Wait()
	}
	return nil
}
