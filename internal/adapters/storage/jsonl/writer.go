// Package jsonl persists flow records as JSON Lines: one record, one line,
// appended atomically to a single file.
package jsonl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/domain"
)

// ErrClosed is returned by Append once the writer has been closed.
var ErrClosed = errors.New("jsonl: writer closed")

// SyncMode selects the durability/throughput tradeoff.
type SyncMode string

const (
	// SyncAlways fsyncs after every append: a returned Append survives an
	// immediate process crash.
	SyncAlways SyncMode = "always"
	// SyncInterval batches fsyncs on a timer. Appends are still written to
	// the OS immediately, but the last interval's worth may be lost on a
	// hard crash.
	SyncInterval SyncMode = "interval"
)

// Options configures a Writer.
type Options struct {
	Mode          SyncMode
	FlushInterval time.Duration // used when Mode == SyncInterval; default 1s
}

// Writer owns the output file handle and serializes all appends. Each
// Append writes the full line with a single write(2) call under the mutex,
// so lines from concurrent callers never interleave and a kill mid-append
// can only truncate the final line, never corrupt earlier ones.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	closed bool

	mode    SyncMode
	dirty   bool
	stopCh  chan struct{}
	flushWG sync.WaitGroup
}

// Open opens (creating if absent) path for appending. The returned writer
// is ready for concurrent use.
func Open(path string, opts Options) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jsonl: open %s: %w", path, err)
	}
	if opts.Mode == "" {
		opts.Mode = SyncAlways
	}
	w := &Writer{f: f, path: path, mode: opts.Mode}
	if opts.Mode == SyncInterval {
		interval := opts.FlushInterval
		if interval <= 0 {
			interval = time.Second
		}
		w.stopCh = make(chan struct{})
		w.flushWG.Add(1)
		go w.flushLoop(interval)
	}
	return w, nil
}

// Path returns the file path this writer appends to.
func (w *Writer) Path() string { return w.path }

// Append serializes rec to one JSON line and appends it. When the writer
// runs in SyncAlways mode the data is durable once Append returns. The
// context is checked before the critical section only; a write already in
// flight always completes.
func (w *Writer) Append(ctx context.Context, rec *domain.FlowRecord) error {
	// json.Marshal escapes control characters, so the payload can never
	// contain a raw newline.
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("jsonl: marshal record %s: %w", rec.ID, err)
	}
	line = append(line, '\n')

	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, err := w.f.Write(line); err != nil {
		return fmt.Errorf("jsonl: write %s: %w", w.path, err)
	}
	if w.mode == SyncAlways {
		if err := w.f.Sync(); err != nil {
			return fmt.Errorf("jsonl: sync %s: %w", w.path, err)
		}
	} else {
		w.dirty = true
	}
	return nil
}

// Close flushes and closes the file. Safe to call more than once; appends
// racing with Close either complete before the handle closes or fail with
// ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	var err error
	if w.dirty {
		err = w.f.Sync()
		w.dirty = false
	}
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	w.mu.Unlock()

	if w.stopCh != nil {
		close(w.stopCh)
		w.flushWG.Wait()
	}
	if err != nil {
		return fmt.Errorf("jsonl: close %s: %w", w.path, err)
	}
	return nil
}

func (w *Writer) flushLoop(interval time.Duration) {
	defer w.flushWG.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			w.mu.Lock()
			if !w.closed && w.dirty {
				_ = w.f.Sync()
				w.dirty = false
			}
			w.mu.Unlock()
		case <-w.stopCh:
			return
		}
	}
}
