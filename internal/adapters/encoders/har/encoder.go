package har

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/domain"
	"github.com/sniaff-suite/sniaff-mitmdump-mcp/pkg/shared/id"
	"github.com/sniaff-suite/sniaff-mitmdump-mcp/pkg/shared/redact"
)

// EncodeError reports a flow that could not be turned into a record. The
// caller drops the flow and keeps capturing.
type EncodeError struct {
	Method string
	URL    string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode flow %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Encoder maps flow snapshots to flow records. It is pure and stateless:
// no I/O, safe for concurrent use.
type Encoder struct {
	// RedactHeaders masks values of credential-bearing headers before the
	// record is built.
	RedactHeaders bool
}

// Encode builds a FlowRecord from one completed flow. A flow without a
// response yields the same record shape with status 0 and empty response
// fields. The only unencodable input is a snapshot with no request identity
// at all (empty method and URL).
func (e Encoder) Encode(flow domain.FlowSnapshot) (*domain.FlowRecord, error) {
	req := flow.Request
	if req.Method == "" && req.URL == "" {
		return nil, &EncodeError{Method: req.Method, URL: req.URL, Err: fmt.Errorf("snapshot has no request identity")}
	}

	now := time.Now().UTC()
	rec := &domain.FlowRecord{
		ID:          id.New(),
		Timestamp:   now.Format("2006-01-02T15:04:05.000Z"),
		TimestampMs: now.UnixMilli(),
	}

	host, path := req.Host, req.Path
	query := req.Query
	if u, err := url.Parse(req.URL); err == nil && req.URL != "" {
		if host == "" {
			host = u.Host
		}
		if path == "" {
			path = u.Path
		}
		if query == nil {
			query = parseQuery(u.RawQuery)
		}
	}

	reqHeaders := req.Headers
	if e.RedactHeaders {
		reqHeaders = redact.Headers(reqHeaders)
	}
	body, enc, size := encodeBody(req.Body)
	rec.Request = domain.RecordRequest{
		Method:       req.Method,
		URL:          req.URL,
		Host:         host,
		Path:         path,
		HTTPVersion:  req.Proto,
		Headers:      pairs(reqHeaders),
		QueryString:  pairs(query),
		BodySize:     size,
		Body:         body,
		BodyEncoding: enc,
	}

	rec.Response = domain.RecordResponse{Headers: []domain.Header{}}
	if resp := flow.Response; resp != nil {
		respHeaders := resp.Headers
		if e.RedactHeaders {
			respHeaders = redact.Headers(respHeaders)
		}
		body, enc, size := encodeBody(resp.Body)
		rec.Response = domain.RecordResponse{
			Status:       resp.Status,
			StatusText:   resp.Reason,
			HTTPVersion:  resp.Proto,
			Headers:      pairs(respHeaders),
			ContentType:  headerValue(resp.Headers, "content-type"),
			BodySize:     size,
			Body:         body,
			BodyEncoding: enc,
		}
	}

	rec.Timings = ReconstructTimings(flow)

	if flow.Server != nil {
		rec.ServerIPAddress = flow.Server.IPAddress
	}
	return rec, nil
}

// encodeBody applies the body policy: absent stays absent, valid UTF-8 is
// stored as-is, anything else goes base64 with the encoding marker. The
// returned size is always the raw byte length.
func encodeBody(raw []byte) (*string, string, int) {
	if len(raw) == 0 {
		return nil, "", 0
	}
	if utf8.Valid(raw) {
		s := string(raw)
		return &s, "", len(raw)
	}
	s := base64.StdEncoding.EncodeToString(raw)
	return &s, domain.BodyEncodingBase64, len(raw)
}

// parseQuery splits a raw query string into ordered pairs. url.Values is a
// map and would lose ordering and duplicates, so this walks the string
// directly. Unescapable tokens are kept verbatim rather than dropped.
func parseQuery(raw string) []domain.Header {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "&")
	out := make([]domain.Header, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		name, value := p, ""
		if i := strings.IndexByte(p, '='); i >= 0 {
			name, value = p[:i], p[i+1:]
		}
		if n, err := url.QueryUnescape(name); err == nil {
			name = n
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		out = append(out, domain.Header{Name: name, Value: value})
	}
	return out
}

// pairs normalizes nil to an empty slice so records always serialize as [].
func pairs(h []domain.Header) []domain.Header {
	if h == nil {
		return []domain.Header{}
	}
	return h
}

func headerValue(h []domain.Header, name string) string {
	for _, p := range h {
		if strings.EqualFold(p.Name, name) {
			return p.Value
		}
	}
	return ""
}
