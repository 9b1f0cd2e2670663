package domain

import "time"

// Header is one header or query-string pair. Pairs keep the original casing and
// insertion order; duplicate names stay as separate entries.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FlowRequest is the request half of a flow snapshot as delivered by the
// intercepting engine.
type FlowRequest struct {
	Method  string
	URL     string
	Host    string
	Path    string
	Proto   string // e.g. "HTTP/1.1"
	Headers []Header
	Query   []Header
	Body    []byte

	// Zero time means the milestone was not observed.
	Start time.Time
	End   time.Time
}

// FlowResponse is the response half of a flow snapshot. A flow that failed
// before any response was received carries a nil *FlowResponse.
type FlowResponse struct {
	Status  int
	Reason  string
	Proto   string
	Headers []Header
	Body    []byte

	Start time.Time
	End   time.Time
}

// ServerConn describes the upstream connection a flow travelled over, when the
// engine established (or reused) one.
type ServerConn struct {
	IPAddress string

	Start    time.Time // dial started
	TCPSetup time.Time // TCP established
	TLSSetup time.Time // TLS handshake finished (zero for plaintext)
}

// FlowSnapshot is one completed (or terminally failed) request/response
// exchange handed over by the proxy engine. It is read-only from the capture
// pipeline's point of view.
type FlowSnapshot struct {
	Request  FlowRequest
	Response *FlowResponse
	Server   *ServerConn
}
