package domain

// BodyEncodingBase64 marks a body that did not survive strict UTF-8 decoding
// and is stored base64-encoded instead.
const BodyEncodingBase64 = "base64"

// RecordRequest is the request part of a persisted flow record.
type RecordRequest struct {
	Method       string   `json:"method"`
	URL          string   `json:"url"`
	Host         string   `json:"host"`
	Path         string   `json:"path"`
	HTTPVersion  string   `json:"httpVersion"`
	Headers      []Header `json:"headers"`
	QueryString  []Header `json:"queryString"`
	BodySize     int      `json:"bodySize"`
	Body         *string  `json:"body"`
	BodyEncoding string   `json:"bodyEncoding,omitempty"`
}

// RecordResponse is the response part of a persisted flow record. A flow that
// never received a response keeps the same shape with Status 0 and empty
// fields so downstream parsers see a fixed schema.
type RecordResponse struct {
	Status       int      `json:"status"`
	StatusText   string   `json:"statusText"`
	HTTPVersion  string   `json:"httpVersion"`
	Headers      []Header `json:"headers"`
	ContentType  string   `json:"contentType"`
	BodySize     int      `json:"bodySize"`
	Body         *string  `json:"body"`
	BodyEncoding string   `json:"bodyEncoding,omitempty"`
}

// Timings holds the seven HAR phase durations in integer milliseconds.
// 0 means the phase was not measurable (the engine did not expose the
// required timestamp pair); all fields are always present so the on-disk
// schema stays stable.
type Timings struct {
	Blocked int64 `json:"blocked"`
	DNS     int64 `json:"dns"`
	Connect int64 `json:"connect"`
	SSL     int64 `json:"ssl"`
	Send    int64 `json:"send"`
	Wait    int64 `json:"wait"`
	Receive int64 `json:"receive"`
}

// FlowRecord is one captured request/response pair in its serialized-to-disk
// form: one FlowRecord becomes one JSON line. Records are immutable once
// built and are not retained after the append returns.
type FlowRecord struct {
	ID              string         `json:"id"`
	Timestamp       string         `json:"timestamp"`   // ISO-8601 UTC, ms precision
	TimestampMs     int64          `json:"timestampMs"` // epoch milliseconds
	Request         RecordRequest  `json:"request"`
	Response        RecordResponse `json:"response"`
	Timings         Timings        `json:"timings"`
	ServerIPAddress string         `json:"serverIPAddress"`
}
