package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/jnovack/lightarti-client/pkg/errs"
)

// Method is one of the HTTP methods the engine accepts.
type Method string

const (
	MethodGet    Method = http.MethodGet
	MethodHead   Method = http.MethodHead
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodDelete Method = http.MethodDelete
)

// Valid reports whether m is one of the supported methods.
func (m Method) Valid() bool {
	switch m {
	case MethodGet, MethodHead, MethodPost, MethodPut, MethodDelete:
		return true
	}
	return false
}

// ParseMethod accepts any letter case.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", errs.Invalid("method", "%q", s)
	}
	return m, nil
}

// Request is a single HTTP-like request. A nil Header or Body is sent as empty.
type Request struct {
	Method Method
	URL    string
	Header http.Header
	Body   []byte
}

// NewRequest builds and validates a request.
func NewRequest(method Method, rawURL string, header http.Header, body []byte) (*Request, error) {
	r := &Request{Method: method, URL: rawURL, Header: header, Body: body}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate performs every check that can fail before the engine is involved.
// All failures are configuration errors.
func (r *Request) Validate() error {
	if r == nil {
		return errs.Invalid("request", "nil")
	}
	if r.Method == "" {
		return errs.Invalid("method", "nil")
	}
	if !r.Method.Valid() {
		return errs.Invalid("method", "%q", string(r.Method))
	}
	if err := validateURL(r.URL); err != nil {
		return err
	}
	for k, vv := range r.Header {
		if !httpguts.ValidHeaderFieldName(k) {
			return errs.Invalid("header", "name %q", k)
		}
		for _, v := range vv {
			if !httpguts.ValidHeaderFieldValue(v) {
				return errs.Invalid("header", "value for %q", k)
			}
		}
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errs.Invalid("URL", "empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errs.Invalid("URL", "%q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errs.Invalid("URL", "%q: scheme must be http or https", raw)
	}
	if u.Host == "" || u.Hostname() == "" {
		return errs.Invalid("URL", "%q: missing host", raw)
	}
	return nil
}

// Response is what the engine returned for one request.
type Response struct {
	Status  int
	Version string
	Header  http.Header
	Body    []byte
}

func (r *Response) String() string {
	return fmt.Sprintf("%s %d (%d bytes)", r.Version, r.Status, len(r.Body))
}
