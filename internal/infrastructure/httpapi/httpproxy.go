package httpapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/http/httputil"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	http2 "golang.org/x/net/http2"

	"github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/domain"
	"github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/infrastructure/config"
)

// handleProxy is the capture source: a reverse proxy that forwards the
// request to the `target` upstream and hands the completed exchange to the
// capture pipeline as a flow snapshot. The path after /proxy is appended to
// the target path; query parameters except `target` pass through.
func (d *Deps) handleProxy(w http.ResponseWriter, r *http.Request) {
	tgt := r.URL.Query().Get("target")
	if tgt == "" {
		if d.Cfg.Proxy.DefaultTarget != "" {
			tgt = d.Cfg.Proxy.DefaultTarget
		} else {
			writeError(w, http.StatusBadRequest, "MISSING_TARGET", "missing target", nil)
			return
		}
	}
	u, err := url.Parse(tgt)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		writeError(w, http.StatusBadRequest, "INVALID_TARGET", "invalid target", map[string]any{"target": tgt})
		return
	}

	suffix := strings.TrimPrefix(r.URL.Path, "/proxy")
	if !strings.HasPrefix(suffix, "/") {
		suffix = "/" + suffix
	}
	upstream := *u
	upstream.Path = strings.TrimRight(upstream.Path, "/") + suffix

	qp := r.URL.Query()
	qp.Del("target")
	upstream.RawQuery = qp.Encode()

	// Flow milestones, filled by httptrace callbacks on this request's chain.
	reqStart := time.Now()
	var connStart, tcpSetup, tlsSetup, wroteRequest, firstByte time.Time
	var serverIP string

	reqBody := d.peekBody(&r.Body, r.ContentLength)

	snapRequest := domain.FlowRequest{
		Method:  r.Method,
		URL:     upstream.String(),
		Host:    upstream.Host,
		Path:    upstream.Path,
		Proto:   r.Proto,
		Headers: headerPairs(r.Header),
		Body:    reqBody,
		Start:   reqStart,
	}

	director := func(req *http.Request) {
		req.URL = &upstream
		req.Host = upstream.Host
		removeHopHeaders(req.Header)
	}

	proxy := &httputil.ReverseProxy{
		Director:  director,
		Transport: newTransport(d.Cfg),
		ModifyResponse: func(resp *http.Response) error {
			respStart := firstByte
			if respStart.IsZero() {
				respStart = time.Now()
			}
			respBody := d.peekBody(&resp.Body, resp.ContentLength)

			req := snapRequest
			req.End = wroteRequest
			snap := domain.FlowSnapshot{
				Request: req,
				Response: &domain.FlowResponse{
					Status:  resp.StatusCode,
					Reason:  statusReason(resp),
					Proto:   resp.Proto,
					Headers: headerPairs(resp.Header),
					Body:    respBody,
					Start:   respStart,
					End:     time.Now(),
				},
				Server: &domain.ServerConn{
					IPAddress: serverIP,
					Start:     connStart,
					TCPSetup:  tcpSetup,
					TLSSetup:  tlsSetup,
				},
			}
			d.Capture.OnFlowCompleted(context.Background(), snap)
			return nil
		},
		ErrorHandler: func(rw http.ResponseWriter, req *http.Request, err error) {
			// The flow still gets a record: status 0, no response fields.
			snapReq := snapRequest
			snapReq.End = wroteRequest
			snap := domain.FlowSnapshot{Request: snapReq}
			if !connStart.IsZero() || serverIP != "" {
				snap.Server = &domain.ServerConn{IPAddress: serverIP, Start: connStart, TCPSetup: tcpSetup, TLSSetup: tlsSetup}
			}
			d.Capture.OnFlowCompleted(context.Background(), snap)
			d.Metrics.ProxyErrorsTotal.WithLabelValues("upstream").Inc()
			d.Logger.Error().Err(err).Str("target", upstream.String()).Msg("reverse proxy error")
			writeError(rw, http.StatusBadGateway, "UPSTREAM_ERROR", err.Error(), map[string]any{"target": upstream.String()})
		},
	}

	r = r.WithContext(httptrace.WithClientTrace(r.Context(), &httptrace.ClientTrace{
		ConnectStart: func(network, addr string) { connStart = time.Now() },
		ConnectDone: func(network, addr string, err error) {
			if err == nil {
				tcpSetup = time.Now()
			}
		},
		GotConn: func(info httptrace.GotConnInfo) {
			if addr := info.Conn.RemoteAddr(); addr != nil {
				if host, _, err := net.SplitHostPort(addr.String()); err == nil {
					serverIP = host
				}
			}
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err == nil {
				tlsSetup = time.Now()
			}
		},
		WroteRequest:         func(httptrace.WroteRequestInfo) { wroteRequest = time.Now() },
		GotFirstResponseByte: func() { firstByte = time.Now() },
	}))

	if ip := clientHost(r.RemoteAddr); ip != "" {
		r.Header.Set("X-Forwarded-For", ip)
	}
	if r.TLS != nil {
		r.Header.Set("X-Forwarded-Proto", "https")
	} else {
		r.Header.Set("X-Forwarded-Proto", "http")
	}

	proxy.ServeHTTP(w, r)
}

// peekBody reads up to capture.body_max_bytes from *body and reattaches the
// read bytes in front so the stream stays intact for the other side.
func (d *Deps) peekBody(body *io.ReadCloser, contentLength int64) []byte {
	if body == nil || *body == nil {
		return nil
	}
	max := d.Cfg.Capture.BodyMaxBytes
	if max <= 0 {
		max = 1 << 20
	}
	size := max
	if contentLength >= 0 && contentLength < int64(max) {
		size = int(contentLength)
	}
	if size == 0 {
		return nil
	}
	peek := make([]byte, size)
	n, _ := io.ReadFull(*body, peek)
	if n == 0 {
		return nil
	}
	buf := peek[:n]
	*body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), *body), *body}
	return buf
}

func removeHopHeaders(h http.Header) {
	hop := []string{"Connection", "Proxy-Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization", "Te", "Trailer", "Transfer-Encoding", "Upgrade"}
	for _, k := range hop {
		h.Del(k)
	}
}

// headerPairs flattens an http.Header into ordered pairs. Go's header map
// loses wire order, so keys are emitted sorted for determinism; values of a
// repeated header keep their original order as separate pairs.
func headerPairs(h http.Header) []domain.Header {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.Header, 0, len(h))
	for _, k := range keys {
		for _, v := range h[k] {
			out = append(out, domain.Header{Name: k, Value: v})
		}
	}
	return out
}

// statusReason extracts the reason phrase from resp.Status ("200 OK" -> "OK").
func statusReason(resp *http.Response) string {
	s := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	s = strings.TrimSpace(s)
	if s == "" {
		s = http.StatusText(resp.StatusCode)
	}
	return s
}

func clientHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// newTransport centralizes http.Transport creation with TLS options/timeouts.
func newTransport(cfg config.Config) *http.Transport {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if cfg.Proxy.InsecureTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	// Enable HTTP/2 for outbound HTTPS where possible; falls back to HTTP/1.1.
	_ = http2.ConfigureTransport(tr)
	return tr
}
