package har

import (
	"time"

	"github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/domain"
)

// ReconstructTimings derives the seven HAR phases from whichever timestamp
// pairs the engine observed. A phase whose pair is incomplete stays 0, and a
// negative delta (clock skew, reordering) is clamped to 0 so durations are
// never negative. Blocked and dns stay zero-filled: the engine does not
// expose queueing or resolver timestamps, and the fields are kept in the
// schema so consumers see a stable shape.
func ReconstructTimings(flow domain.FlowSnapshot) domain.Timings {
	var t domain.Timings
	if sc := flow.Server; sc != nil {
		t.Connect = durationMs(sc.Start, sc.TCPSetup)
		t.SSL = durationMs(sc.TCPSetup, sc.TLSSetup)
	}
	req := flow.Request
	t.Send = durationMs(req.Start, req.End)
	if resp := flow.Response; resp != nil {
		t.Wait = durationMs(req.End, resp.Start)
		t.Receive = durationMs(resp.Start, resp.End)
	}
	return t
}

// durationMs returns to-from in whole milliseconds, 0 when either side is
// missing or the delta is negative.
func durationMs(from, to time.Time) int64 {
	if from.IsZero() || to.IsZero() {
		return 0
	}
	d := to.Sub(from).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}
