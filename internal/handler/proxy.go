package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"

	"github.com/labstack/echo/v4"

	"thumbnail-proxy-go/internal/model"
	"thumbnail-proxy-go/internal/route"
	"thumbnail-proxy-go/internal/service"
)

// copyBufferSize is the chunk size response bodies are streamed in.
const copyBufferSize = 32 << 10

// userinfoPattern matches credentials embedded in URLs quoted by error messages.
var userinfoPattern = regexp.MustCompile(`(https?://)[^/@\s"]+@`)

// ProxyHandler serves thumbnails and forwards every other request to the origin.
type ProxyHandler struct {
	service *service.ThumbnailService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ThumbnailService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle runs the thumbnail lifecycle for the request and streams the result back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Path:          req.URL.Path,
		RawPath:       req.URL.RawPath,
		Query:         req.URL.Query(),
		RawQuery:      req.URL.RawQuery,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp, err := h.service.Serve(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	if resp.Body == nil {
		return nil
	}
	// The status is already sent; a failed copy leaves the client with a
	// truncated body and is only logged.
	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(c.Response(), resp.Body, buf); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", req.URL.Path,
		)
	}

	return nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	path := c.Request().URL.Path

	if errors.Is(err, route.ErrSignatureInvalid) || errors.Is(err, route.ErrMalformedDimensions) {
		return c.String(http.StatusBadRequest, "Bad thumbnail parameters in "+path)
	}

	h.logger.Error("proxy error",
		"err", sanitizeError(err),
		"path", path,
	)

	if errors.Is(err, service.ErrRender) {
		return c.String(http.StatusInternalServerError, "Thumbnail rendering failed for "+path)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "origin request timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "origin host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "origin connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "origin request failed",
	})
}

// sanitizeError redacts URL credentials from error messages that quote origin URLs.
func sanitizeError(err error) string {
	return userinfoPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]@")
}
