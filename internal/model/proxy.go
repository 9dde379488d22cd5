// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// ProxyRequest represents a client request handed to the origin.
type ProxyRequest struct {
	Ctx           context.Context
	Method        string
	Path          string
	RawPath       string // escaped form of Path when it differs from the default encoding
	Query         url.Values
	RawQuery      string // query as sent by the client; preferred over Query when set
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64 // -1 when unknown
}

// WithPath returns a shallow copy of the request addressed to path.
// The copy carries no body.
func (r *ProxyRequest) WithPath(path string) *ProxyRequest {
	cp := *r
	cp.Path = path
	cp.RawPath = ""
	cp.Header = r.Header.Clone()
	cp.Body = nil
	cp.ContentLength = 0
	return &cp
}

// ProxyResponse represents a response to be streamed back to the client.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Close releases the response body, if any.
func (r *ProxyResponse) Close() error {
	if r.Body == nil {
		return nil
	}
	return r.Body.Close()
}
