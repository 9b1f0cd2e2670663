package har

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/domain"
)

func TestEncodeBasicExchange(t *testing.T) {
	flow := domain.FlowSnapshot{
		Request: domain.FlowRequest{
			Method:  "GET",
			URL:     "http://example.com/a?x=1",
			Proto:   "HTTP/1.1",
			Headers: []domain.Header{{Name: "Accept", Value: "text/html"}},
		},
		Response: &domain.FlowResponse{
			Status:  200,
			Reason:  "OK",
			Proto:   "HTTP/1.1",
			Headers: []domain.Header{{Name: "Content-Type", Value: "application/json"}},
			Body:    []byte(`{"ok":true}`),
		},
	}

	rec, err := Encoder{}.Encode(flow)
	require.NoError(t, err)

	assert.Equal(t, "GET", rec.Request.Method)
	assert.Equal(t, "http://example.com/a?x=1", rec.Request.URL)
	assert.Equal(t, "example.com", rec.Request.Host)
	assert.Equal(t, "/a", rec.Request.Path)
	assert.Equal(t, []domain.Header{{Name: "x", Value: "1"}}, rec.Request.QueryString)
	assert.Equal(t, []domain.Header{{Name: "Accept", Value: "text/html"}}, rec.Request.Headers)

	assert.Equal(t, 200, rec.Response.Status)
	assert.Equal(t, "OK", rec.Response.StatusText)
	assert.Equal(t, "application/json", rec.Response.ContentType)
	require.NotNil(t, rec.Response.Body)
	assert.Equal(t, `{"ok":true}`, *rec.Response.Body)
	assert.Equal(t, 11, rec.Response.BodySize)
	assert.Empty(t, rec.Response.BodyEncoding)

	assert.NotEmpty(t, rec.ID)
	assert.NotEmpty(t, rec.Timestamp)
	assert.NotZero(t, rec.TimestampMs)
}

func TestEncodeBinaryBodyBase64(t *testing.T) {
	raw := []byte{0xFF, 0xD8, 0xFF}
	flow := domain.FlowSnapshot{
		Request: domain.FlowRequest{Method: "GET", URL: "http://example.com/img"},
		Response: &domain.FlowResponse{
			Status: 200,
			Body:   raw,
		},
	}

	rec, err := Encoder{}.Encode(flow)
	require.NoError(t, err)

	assert.Equal(t, domain.BodyEncodingBase64, rec.Response.BodyEncoding)
	assert.Equal(t, 3, rec.Response.BodySize)
	require.NotNil(t, rec.Response.Body)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), *rec.Response.Body)
}

func TestEncodeBodyRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("plain text"),
		[]byte(`{"json":"payload"}`),
		[]byte("unicode: приветツ"),
		{0x00, 0x01, 0x02},        // control bytes, still valid UTF-8
		{0xFF, 0xFE, 0x00, 0x80},  // invalid UTF-8
		{0x89, 0x50, 0x4E, 0x47},  // PNG magic
		[]byte("line\nbreak\r\n"), // raw newlines must survive
	}
	for _, raw := range cases {
		flow := domain.FlowSnapshot{
			Request: domain.FlowRequest{Method: "POST", URL: "http://example.com/", Body: raw},
		}
		rec, err := Encoder{}.Encode(flow)
		require.NoError(t, err)
		require.NotNil(t, rec.Request.Body)
		assert.Equal(t, len(raw), rec.Request.BodySize)

		var back []byte
		if rec.Request.BodyEncoding == domain.BodyEncodingBase64 {
			back, err = base64.StdEncoding.DecodeString(*rec.Request.Body)
			require.NoError(t, err)
		} else {
			back = []byte(*rec.Request.Body)
		}
		assert.Equal(t, raw, back)
	}
}

func TestEncodeMissingResponseKeepsShape(t *testing.T) {
	flow := domain.FlowSnapshot{
		Request: domain.FlowRequest{Method: "GET", URL: "http://example.com/gone"},
	}

	rec, err := Encoder{}.Encode(flow)
	require.NoError(t, err)

	assert.Equal(t, 0, rec.Response.Status)
	assert.Empty(t, rec.Response.StatusText)
	assert.Empty(t, rec.Response.HTTPVersion)
	assert.Empty(t, rec.Response.ContentType)
	assert.Zero(t, rec.Response.BodySize)
	assert.Nil(t, rec.Response.Body)
	assert.NotNil(t, rec.Response.Headers, "headers must serialize as [], not null")
	assert.Empty(t, rec.ServerIPAddress)
}

func TestEncodeHeaderOrderAndDuplicates(t *testing.T) {
	headers := []domain.Header{
		{Name: "Set-Cookie", Value: "a=1"},
		{Name: "set-cookie", Value: "b=2"},
		{Name: "X-Custom", Value: "v"},
	}
	flow := domain.FlowSnapshot{
		Request: domain.FlowRequest{Method: "GET", URL: "http://example.com/", Headers: headers},
	}
	rec, err := Encoder{}.Encode(flow)
	require.NoError(t, err)
	assert.Equal(t, headers, rec.Request.Headers, "casing, order and duplicates preserved")
}

func TestEncodeQueryOrderFromRawURL(t *testing.T) {
	flow := domain.FlowSnapshot{
		Request: domain.FlowRequest{Method: "GET", URL: "http://example.com/s?b=2&a=1&a=3&flag"},
	}
	rec, err := Encoder{}.Encode(flow)
	require.NoError(t, err)
	assert.Equal(t, []domain.Header{
		{Name: "b", Value: "2"},
		{Name: "a", Value: "1"},
		{Name: "a", Value: "3"},
		{Name: "flag", Value: ""},
	}, rec.Request.QueryString)
}

func TestEncodeRedactsSensitiveHeaders(t *testing.T) {
	flow := domain.FlowSnapshot{
		Request: domain.FlowRequest{
			Method: "GET",
			URL:    "http://example.com/",
			Headers: []domain.Header{
				{Name: "Authorization", Value: "Bearer supersecret"},
				{Name: "Accept", Value: "*/*"},
			},
		},
	}
	rec, err := Encoder{RedactHeaders: true}.Encode(flow)
	require.NoError(t, err)
	assert.Equal(t, "***", rec.Request.Headers[0].Value)
	assert.Equal(t, "*/*", rec.Request.Headers[1].Value)
}

func TestEncodeRejectsSnapshotWithoutIdentity(t *testing.T) {
	_, err := Encoder{}.Encode(domain.FlowSnapshot{})
	require.Error(t, err)
	var encErr *EncodeError
	assert.True(t, errors.As(err, &encErr))
}
