package usecase

import (
	"context"

	"github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/domain"
)

// RecordWriter is the durable sink for flow records. Implementations must be
// safe for concurrent Append calls and must make each record one atomic,
// non-interleaved line from the file's point of view.
type RecordWriter interface {
	Append(ctx context.Context, rec *domain.FlowRecord) error
	Close() error
	Path() string
}

// OpenWriterFunc opens a RecordWriter for the given target path. Configure
// calls it before touching the previous writer, so a failed open leaves the
// running capture untouched.
type OpenWriterFunc func(path string) (RecordWriter, error)

// FlowEncoder turns a flow snapshot into a record. Implementations are pure
// and require no synchronization.
type FlowEncoder interface {
	Encode(flow domain.FlowSnapshot) (*domain.FlowRecord, error)
}
