package client

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnovack/lightarti-client/pkg/errs"
)

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" post ")
	require.NoError(t, err)
	assert.Equal(t, MethodPost, m)

	_, err = ParseMethod("PATCH")
	assert.True(t, errs.Is(err, errs.KindConfiguration))
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     *Request
		wantErr string
	}{
		{"get", &Request{Method: MethodGet, URL: "https://example.org/"}, ""},
		{"nil header and body", &Request{Method: MethodPut, URL: "http://example.org:8080/x?y=1"}, ""},
		{"nil request", nil, "invalid request"},
		{"no method", &Request{URL: "https://example.org/"}, "invalid method"},
		{"unknown method", &Request{Method: "TRACE", URL: "https://example.org/"}, "invalid method"},
		{"empty url", &Request{Method: MethodGet}, "invalid URL"},
		{"opaque url", &Request{Method: MethodGet, URL: "not:/valid"}, "invalid URL"},
		{"relative url", &Request{Method: MethodGet, URL: "/path"}, "invalid URL"},
		{"ftp", &Request{Method: MethodGet, URL: "ftp://example.org/"}, "invalid URL"},
		{"no host", &Request{Method: MethodGet, URL: "https:///path"}, "invalid URL"},
		{"bad header name", &Request{Method: MethodGet, URL: "https://example.org/", Header: http.Header{"Bad Name": {"v"}}}, "invalid header"},
		{"bad header value", &Request{Method: MethodGet, URL: "https://example.org/", Header: http.Header{"X-A": {"a\r\nb"}}}, "invalid header"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.KindConfiguration))
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestNewRequestValidates(t *testing.T) {
	_, err := NewRequest(MethodGet, "not:/valid", nil, nil)
	assert.Error(t, err)

	r, err := NewRequest(MethodHead, "https://example.org/", http.Header{}, nil)
	require.NoError(t, err)
	assert.Equal(t, MethodHead, r.Method)
}

func TestResponseString(t *testing.T) {
	r := &Response{Status: 200, Version: "HTTP/1.1", Body: []byte("hello")}
	assert.Equal(t, "HTTP/1.1 200 (5 bytes)", r.String())
}
