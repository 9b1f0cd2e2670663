package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/adapters/storage/jsonl"
	"github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/domain"
	obs "github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/infrastructure/observability"
)

// State is the capture lifecycle state. Transitions:
// Unconfigured -> Open (Configure), Open -> Open (reconfigure),
// any -> Closed (Shutdown), Closed -> Open (fresh Configure).
type State string

const (
	StateUnconfigured State = "unconfigured"
	StateOpen         State = "open"
	StateClosed       State = "closed"
)

// QueuePolicy controls behavior when the async queue is full.
type QueuePolicy string

const (
	// QueueBlock makes OnFlowCompleted wait for queue space.
	QueueBlock QueuePolicy = "block"
	// QueueDrop evicts the oldest queued record to make room, so slow
	// storage costs bounded memory instead of stalling the proxy path.
	QueueDrop QueuePolicy = "drop"
)

// ConfigError reports a Configure attempt that failed. The previously
// configured writer, if any, is untouched.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configure capture %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// CaptureOptions tunes the capture service.
type CaptureOptions struct {
	// QueueSize is the async queue capacity. 0 appends synchronously from
	// OnFlowCompleted.
	QueueSize int
	// Policy applies when QueueSize > 0 and the queue is full.
	Policy QueuePolicy
}

// Counters is a snapshot of capture activity for the status endpoint.
type Counters struct {
	Captured     int64 `json:"captured"`
	EncodeErrors int64 `json:"encodeErrors"`
	WriteErrors  int64 `json:"writeErrors"`
	Dropped      int64 `json:"dropped"`
}

// Capture is the lifecycle controller: it owns the current record writer,
// runs the flow pipeline (encode, timings, append) and contains every
// per-flow failure so one bad flow never stops capture of the next.
type Capture struct {
	open    OpenWriterFunc
	enc     FlowEncoder
	logger  *zerolog.Logger
	metrics *obs.Metrics

	// lifecycle serializes Configure and Shutdown against each other;
	// mu guards the fields they share with the hot path.
	lifecycle sync.Mutex
	mu        sync.Mutex
	state     State
	writer    RecordWriter
	intake    sync.WaitGroup // in-flight OnFlowCompleted calls

	queue      chan *domain.FlowRecord
	queueSize  int
	policy     QueuePolicy
	workerDone chan struct{}
	workerOnce sync.Once

	captured     atomic.Int64
	encodeErrors atomic.Int64
	writeErrors  atomic.Int64
	dropped      atomic.Int64

	// onRecord, when set, observes each successfully appended record id.
	onRecord func(id string)
}

// NewCapture builds an unconfigured capture service. Call Configure before
// flows arrive; flows completed while unconfigured are ignored, matching the
// engine hook contract.
func NewCapture(open OpenWriterFunc, enc FlowEncoder, logger *zerolog.Logger, metrics *obs.Metrics, opts CaptureOptions) *Capture {
	c := &Capture{
		open:      open,
		enc:       enc,
		logger:    logger,
		metrics:   metrics,
		state:     StateUnconfigured,
		policy:    opts.Policy,
		queueSize: opts.QueueSize,
	}
	if c.policy == "" {
		c.policy = QueueBlock
	}
	if c.queueSize > 0 {
		c.queue = make(chan *domain.FlowRecord, c.queueSize)
		c.workerDone = make(chan struct{})
		go c.worker(c.queue, c.workerDone)
	}
	return c
}

// SetRecordListener registers a callback invoked with the id of every
// durably appended record. Must be called before flows arrive.
func (c *Capture) SetRecordListener(fn func(id string)) { c.onRecord = fn }

// Configure opens path for appending and makes it the capture target,
// closing the previous writer only after the new one opened successfully.
// Records already queued keep draining; they land in whichever file their
// append reaches first, and none are lost or duplicated by the swap.
func (c *Capture) Configure(path string) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	w, err := c.open(path)
	if err != nil {
		c.metrics.RecordErrorsTotal.WithLabelValues("config").Inc()
		return &ConfigError{Path: path, Err: err}
	}

	c.mu.Lock()
	prev := c.writer
	c.writer = w
	if c.state == StateClosed && c.queueSize > 0 {
		// The drain worker exited with the old queue; start a fresh one.
		c.queue = make(chan *domain.FlowRecord, c.queueSize)
		c.workerDone = make(chan struct{})
		c.workerOnce = sync.Once{}
		go c.worker(c.queue, c.workerDone)
	}
	c.state = StateOpen
	c.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			c.logger.Error().Err(err).Str("path", prev.Path()).Msg("closing previous capture file")
		}
	}
	c.logger.Info().Str("path", path).Msg("capture configured")
	return nil
}

// OnFlowCompleted is the engine hook for one finished flow. It never returns
// an error to the engine: failures are logged, counted and contained.
func (c *Capture) OnFlowCompleted(ctx context.Context, flow domain.FlowSnapshot) {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return
	}
	c.intake.Add(1)
	q := c.queue
	c.mu.Unlock()
	defer c.intake.Done()

	rec, err := c.enc.Encode(flow)
	if err != nil {
		c.encodeErrors.Add(1)
		c.metrics.RecordErrorsTotal.WithLabelValues("encode").Inc()
		c.logger.Error().Err(err).Msg("dropping unencodable flow")
		return
	}

	if q == nil {
		c.append(ctx, rec)
		return
	}
	c.enqueue(q, rec)
}

func (c *Capture) enqueue(q chan *domain.FlowRecord, rec *domain.FlowRecord) {
	defer c.metrics.QueueDepth.Set(float64(len(q)))
	if c.policy == QueueBlock {
		q <- rec
		return
	}
	for {
		select {
		case q <- rec:
			return
		default:
		}
		// Full: evict the oldest queued record and retry.
		select {
		case old := <-q:
			c.dropped.Add(1)
			c.metrics.RecordsDroppedTotal.Inc()
			c.logger.Warn().Str("record", old.ID).Msg("capture queue full, dropping oldest record")
		default:
		}
	}
}

// Shutdown stops intake, drains queued records within the context deadline,
// then flushes and closes the file. Idempotent; after it returns the only
// way back is a fresh Configure.
func (c *Capture) Shutdown(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.mu.Unlock()

	// Producers past the state check finish their enqueue/append first.
	c.intake.Wait()

	c.mu.Lock()
	q, done := c.queue, c.workerDone
	c.mu.Unlock()
	if q != nil {
		c.workerOnce.Do(func() { close(q) })
		select {
		case <-done:
		case <-ctx.Done():
			c.logger.Warn().Int("pending", len(q)).Msg("shutdown deadline reached, abandoning queued records")
		}
	}

	c.mu.Lock()
	w := c.writer
	c.writer = nil
	c.mu.Unlock()
	if w == nil {
		return nil
	}
	if err := w.Close(); err != nil {
		c.logger.Error().Err(err).Str("path", w.Path()).Msg("final capture flush failed")
		return err
	}
	c.logger.Info().Str("path", w.Path()).Msg("capture file closed")
	return nil
}

// State returns the lifecycle state.
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Path returns the current target file path, empty when not open.
func (c *Capture) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer == nil {
		return ""
	}
	return c.writer.Path()
}

// Stats returns a snapshot of the activity counters.
func (c *Capture) Stats() Counters {
	return Counters{
		Captured:     c.captured.Load(),
		EncodeErrors: c.encodeErrors.Load(),
		WriteErrors:  c.writeErrors.Load(),
		Dropped:      c.dropped.Load(),
	}
}

func (c *Capture) worker(q chan *domain.FlowRecord, done chan struct{}) {
	defer close(done)
	for rec := range q {
		c.append(context.Background(), rec)
		c.metrics.QueueDepth.Set(float64(len(q)))
	}
}

func (c *Capture) append(ctx context.Context, rec *domain.FlowRecord) {
	c.mu.Lock()
	w := c.writer
	c.mu.Unlock()
	if w == nil {
		c.dropped.Add(1)
		c.metrics.RecordsDroppedTotal.Inc()
		return
	}

	start := time.Now()
	err := w.Append(ctx, rec)
	if errors.Is(err, jsonl.ErrClosed) {
		// Raced with a reconfigure: the handle we held was just closed.
		// Retry once against the current writer.
		c.mu.Lock()
		w = c.writer
		c.mu.Unlock()
		if w != nil {
			err = w.Append(ctx, rec)
		}
	}
	c.metrics.WriteSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		c.writeErrors.Add(1)
		c.metrics.RecordErrorsTotal.WithLabelValues("write").Inc()
		c.logger.Error().Err(err).Str("record", rec.ID).Msg("append failed, record lost")
		return
	}
	c.captured.Add(1)
	c.metrics.RecordsTotal.Inc()
	if c.onRecord != nil {
		c.onRecord(rec.ID)
	}
}
