package har

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/domain"
)

func TestReconstructTimingsFullObservation(t *testing.T) {
	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	at := func(ms int64) time.Time { return base.Add(time.Duration(ms) * time.Millisecond) }

	flow := domain.FlowSnapshot{
		Request: domain.FlowRequest{
			Method: "GET", URL: "http://example.com/",
			Start: at(30), End: at(34),
		},
		Response: &domain.FlowResponse{
			Status: 200,
			Start:  at(80), End: at(95),
		},
		Server: &domain.ServerConn{
			Start: at(0), TCPSetup: at(12), TLSSetup: at(28),
		},
	}

	got := ReconstructTimings(flow)
	assert.Equal(t, domain.Timings{
		Connect: 12,
		SSL:     16,
		Send:    4,
		Wait:    46,
		Receive: 15,
	}, got)
}

func TestReconstructTimingsClampsNegativeWait(t *testing.T) {
	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	flow := domain.FlowSnapshot{
		Request: domain.FlowRequest{
			Method: "GET", URL: "http://example.com/",
			Start: base, End: base.Add(50 * time.Millisecond),
		},
		Response: &domain.FlowResponse{
			// First byte timestamped before the request finished sending.
			Start: base.Add(40 * time.Millisecond),
			End:   base.Add(60 * time.Millisecond),
		},
	}
	got := ReconstructTimings(flow)
	assert.Zero(t, got.Wait)
	assert.Equal(t, int64(20), got.Receive)
}

func TestReconstructTimingsMissingPairsStayZero(t *testing.T) {
	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		flow domain.FlowSnapshot
		want domain.Timings
	}{
		{
			name: "no observations at all",
			flow: domain.FlowSnapshot{Request: domain.FlowRequest{Method: "GET", URL: "http://x/"}},
			want: domain.Timings{},
		},
		{
			name: "plaintext connection has no ssl phase",
			flow: domain.FlowSnapshot{
				Request: domain.FlowRequest{Method: "GET", URL: "http://x/"},
				Server:  &domain.ServerConn{Start: base, TCPSetup: base.Add(5 * time.Millisecond)},
			},
			want: domain.Timings{Connect: 5},
		},
		{
			name: "reused connection reports no connect",
			flow: domain.FlowSnapshot{
				Request: domain.FlowRequest{
					Method: "GET", URL: "http://x/",
					Start: base, End: base.Add(2 * time.Millisecond),
				},
				Server: &domain.ServerConn{},
			},
			want: domain.Timings{Send: 2},
		},
		{
			name: "request end missing leaves send and wait zero",
			flow: domain.FlowSnapshot{
				Request: domain.FlowRequest{Method: "GET", URL: "http://x/", Start: base},
				Response: &domain.FlowResponse{
					Start: base.Add(10 * time.Millisecond),
					End:   base.Add(12 * time.Millisecond),
				},
			},
			want: domain.Timings{Receive: 2},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ReconstructTimings(tc.flow))
		})
	}
}

func TestReconstructTimingsBlockedAndDNSAlwaysZero(t *testing.T) {
	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	flow := domain.FlowSnapshot{
		Request:  domain.FlowRequest{Method: "GET", URL: "http://x/", Start: base, End: base.Add(time.Millisecond)},
		Response: &domain.FlowResponse{Start: base.Add(2 * time.Millisecond), End: base.Add(3 * time.Millisecond)},
		Server:   &domain.ServerConn{Start: base, TCPSetup: base.Add(time.Millisecond)},
	}
	got := ReconstructTimings(flow)
	assert.Zero(t, got.Blocked)
	assert.Zero(t, got.DNS)
}
