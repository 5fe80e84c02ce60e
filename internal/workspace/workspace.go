package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Fixed intermediate layout, relative to the workspace root.
const (
	UnprocessedDir = "unprocessed_frames"
	ProcessedDir   = "processed_frames"
	AudioFile      = "audio.aac"
	FramePattern   = "frame_%04d.png"
	lockFile       = ".kirkifier.lock"
)

// ErrBusy means another conversion holds the workspace.
var ErrBusy = errors.New("workspace is in use by another kirkifier run")

// Workspace owns the transient files of one conversion.
type Workspace struct {
	Root string
	lock *flock.Flock
}

func New(root string) *Workspace {
	return &Workspace{
		Root: root,
		lock: flock.New(filepath.Join(root, lockFile)),
	}
}

func (w *Workspace) UnprocessedDir() string { return filepath.Join(w.Root, UnprocessedDir) }
func (w *Workspace) ProcessedDir() string   { return filepath.Join(w.Root, ProcessedDir) }
func (w *Workspace) AudioPath() string      { return filepath.Join(w.Root, AudioFile) }

// UnprocessedPattern is the ffmpeg image2 pattern for extracted frames.
func (w *Workspace) UnprocessedPattern() string {
	return filepath.Join(w.UnprocessedDir(), FramePattern)
}

// ProcessedPattern is the ffmpeg image2 pattern for swapped frames.
func (w *Workspace) ProcessedPattern() string {
	return filepath.Join(w.ProcessedDir(), FramePattern)
}

// Acquire takes the workspace lock without blocking.
func (w *Workspace) Acquire() error {
	if err := os.MkdirAll(w.Root, 0755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	ok, err := w.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire workspace lock: %w", err)
	}
	if !ok {
		return ErrBusy
	}
	return nil
}

// Release drops the lock and removes the lock file.
func (w *Workspace) Release() error {
	if !w.lock.Locked() {
		return nil
	}
	if err := w.lock.Unlock(); err != nil {
		return fmt.Errorf("release workspace lock: %w", err)
	}
	if err := os.Remove(w.lock.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Prepare removes anything a failed run left behind and creates both frame directories.
// It returns the leftovers it removed.
func (w *Workspace) Prepare() ([]string, error) {
	stale := w.Leftovers()
	if err := w.Cleanup(); err != nil {
		return stale, err
	}
	for _, dir := range []string{w.UnprocessedDir(), w.ProcessedDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return stale, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return stale, nil
}

// Leftovers lists intermediates currently on disk.
func (w *Workspace) Leftovers() []string {
	var found []string
	for _, p := range []string{w.UnprocessedDir(), w.ProcessedDir(), w.AudioPath()} {
		if _, err := os.Stat(p); err == nil {
			found = append(found, p)
		}
	}
	return found
}

// Cleanup removes both frame directories and the audio track.
func (w *Workspace) Cleanup() error {
	var errs []error
	for _, dir := range []string{w.UnprocessedDir(), w.ProcessedDir()} {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.Remove(w.AudioPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
