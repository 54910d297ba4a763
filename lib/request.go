package lib

import (
	"context"
	"net/http"
	"strings"
)

// Header is a single HTTP header name and value.
//
// Headers are kept in a slice instead of an http.Header so their order is
// preserved exactly as built.
type Header struct {
	Name  string
	Value string
}

// Request describes an HTTP request without executing it.
//
// Requests are built by the auth and insert packages, and executed by
// whoever hosts them (e.g. the async package).
type Request struct {
	Method  string
	URL     string
	Headers []Header
	Body    string

	// ForwardClientHeaders reports whether the headers of the client request
	// that triggered this one should be forwarded as well.
	ForwardClientHeaders bool
}

// Header returns the value of the first header matching name
// (case-insensitive), or an empty string.
func (r *Request) Header(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// HTTPRequest returns a new *http.Request for r, bound to ctx.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, strings.NewReader(r.Body))
	if err != nil {
		return nil, err
	}

	for _, h := range r.Headers {
		req.Header.Add(h.Name, h.Value)
	}

	return req, nil
}
