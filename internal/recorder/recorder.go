// Package recorder appends forwarded media buffers to elementary-stream files.
//
// Each run writes into its own directory, <dir>/<run-id>/, with one file per
// stream type: video.es and audio.es. Payloads are appended back to back with
// no container framing, which is enough to inspect what the pipeline produced
// (for H.264 byte-stream output, video.es plays with ffplay -f h264).
package recorder

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	streamplayout "github.com/e7canasta/stream-playout"
)

// Recorder writes buffers to disk. Safe for concurrent use.
type Recorder struct {
	runID string
	dir   string

	mu      sync.Mutex
	files   map[streamplayout.StreamType]*streamFile
	closed  bool
	written atomic.Uint64
	bytes   atomic.Uint64
	failed  atomic.Uint64
}

type streamFile struct {
	f *os.File
	w *bufio.Writer
}

// New creates <dir>/<run-id>/ with a fresh random run id.
func New(dir string) (*Recorder, error) {
	runID := uuid.NewString()
	runDir := filepath.Join(dir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("recorder: failed to create output directory: %w", err)
	}

	slog.Info("recorder: recording enabled", "dir", runDir)

	return &Recorder{
		runID: runID,
		dir:   runDir,
		files: make(map[streamplayout.StreamType]*streamFile),
	}, nil
}

// RunID returns the id of this recording run.
func (r *Recorder) RunID() string { return r.runID }

// Dir returns the run directory.
func (r *Recorder) Dir() string { return r.dir }

// Path returns the file a stream is recorded to.
func (r *Recorder) Path(stream streamplayout.StreamType) string {
	return filepath.Join(r.dir, stream.String()+".es")
}

// Write appends buf's payload to its stream file, opening it on first use.
func (r *Recorder) Write(buf streamplayout.MediaBuffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("recorder: closed")
	}

	sf, err := r.fileLocked(buf.Stream)
	if err != nil {
		r.failed.Add(1)
		return err
	}

	if _, err := sf.w.Write(buf.Data); err != nil {
		r.failed.Add(1)
		return fmt.Errorf("recorder: failed to write %s buffer: %w", buf.Stream, err)
	}

	r.written.Add(1)
	r.bytes.Add(uint64(len(buf.Data)))
	return nil
}

func (r *Recorder) fileLocked(stream streamplayout.StreamType) (*streamFile, error) {
	if sf, ok := r.files[stream]; ok {
		return sf, nil
	}

	f, err := os.OpenFile(r.Path(stream), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("recorder: failed to open %s file: %w", stream, err)
	}

	sf := &streamFile{f: f, w: bufio.NewWriter(f)}
	r.files[stream] = sf
	return sf, nil
}

// Run writes every buffer received on ch until ch is closed or ctx is done.
// Write failures are logged and counted; they do not stop the recorder.
func (r *Recorder) Run(ctx context.Context, ch <-chan streamplayout.MediaBuffer) {
	for {
		select {
		case <-ctx.Done():
			return
		case buf, ok := <-ch:
			if !ok {
				return
			}
			if err := r.Write(buf); err != nil {
				slog.Warn("recorder: write failed", "stream", buf.Stream, "seq", buf.Seq, "error", err)
			}
		}
	}
}

// Close flushes and closes every stream file. Idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var firstErr error
	for stream, sf := range r.files {
		if err := sf.w.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("recorder: failed to flush %s file: %w", stream, err)
		}
		if err := sf.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("recorder: failed to close %s file: %w", stream, err)
		}
	}

	slog.Info("recorder: recording closed",
		"dir", r.dir,
		"buffers_written", r.written.Load(),
		"bytes_written", r.bytes.Load(),
		"failed", r.failed.Load(),
	)

	return firstErr
}

// Stats returns current write statistics.
func (r *Recorder) Stats() (written, failed uint64) {
	return r.written.Load(), r.failed.Load()
}
