// Package client provides the downstream origins the proxy forwards to.
package client

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"thumbnail-proxy-go/internal/config"
	"thumbnail-proxy-go/internal/metrics"
	"thumbnail-proxy-go/internal/model"
)

// hopByHopHeaders apply to a single connection and are never forwarded.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HTTPOrigin forwards requests to an upstream HTTP server.
type HTTPOrigin struct {
	httpClient *http.Client
	baseURL    *url.URL
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewHTTPOrigin creates an HTTPOrigin with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable origin metrics recording.
func NewHTTPOrigin(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*HTTPOrigin, error) {
	u, err := url.Parse(cfg.Origin.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse origin base_url: %w", err)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Origin.IdleConnections,
		MaxIdleConnsPerHost: cfg.Origin.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &HTTPOrigin{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Origin.TimeoutSeconds) * time.Second,
			// Redirects are relayed to the client, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL: u,
		logger:  logger.With("component", "http_origin"),
		metrics: m,
	}, nil
}

// Forward sends pr to the origin and returns its response.
// The caller is responsible for closing the response body.
// The request context controls the lifetime of the origin request.
func (c *HTTPOrigin) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	body := pr.Body
	if body == nil || pr.ContentLength == 0 {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(pr.Ctx, pr.Method, c.buildURL(pr), body)
	if err != nil {
		return nil, fmt.Errorf("build origin request: %w", err)
	}
	req.Header = filterHeaders(pr.Header)
	if body != http.NoBody {
		req.ContentLength = pr.ContentLength
	}

	return c.Do(req)
}

// Do executes an HTTP request against the origin and returns the raw response.
// The caller is responsible for closing the response body.
func (c *HTTPOrigin) Do(req *http.Request) (*model.ProxyResponse, error) {
	c.logger.Debug("origin request",
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.OriginDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("origin request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.OriginDuration.WithLabelValues(method).Observe(duration)
		c.metrics.OriginResponses.WithLabelValues(method, status).Inc()
	}

	header := filterHeaders(resp.Header)
	if resp.ContentLength >= 0 && header.Get("Content-Length") == "" && req.Method != http.MethodHead {
		header.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       resp.Body,
	}, nil
}

// buildURL joins the base URL with the request path. The client's escaping
// and query are kept as sent so passthrough requests reach the origin unchanged.
func (c *HTTPOrigin) buildURL(pr *model.ProxyRequest) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(c.baseURL.Path, "/") + pr.Path
	u.RawPath = ""
	if pr.RawPath != "" {
		u.RawPath = strings.TrimSuffix(c.baseURL.EscapedPath(), "/") + pr.RawPath
	}
	u.RawQuery = pr.RawQuery
	if u.RawQuery == "" {
		u.RawQuery = pr.Query.Encode()
	}
	return u.String()
}

// filterHeaders returns a copy of src without hop-by-hop headers, including
// any named by the Connection header.
func filterHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		return make(http.Header)
	}
	for _, v := range dst.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				dst.Del(name)
			}
		}
	}
	for _, h := range hopByHopHeaders {
		dst.Del(h)
	}
	dst.Del("Host")
	return dst
}
