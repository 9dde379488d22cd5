package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"thumbnail-proxy-go/internal/metrics"
)

// requestCount returns the request counter value for the given labels, or -1
// when no such series exists.
func requestCount(t *testing.T, m *metrics.Metrics, method, status, path string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != "thumbnail_proxy_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["method"] == method && labels["status_code"] == status && labels["path_prefix"] == path {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return -1
}

func newMetricsEcho(m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.Use(MetricsMiddleware(m, "/metrics"))
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", func(c echo.Context) error {
		return c.String(http.StatusOK, "# metrics")
	})
	e.Any("/media/*", func(c echo.Context) error {
		switch c.Param("*") {
		case "missing.jpg":
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		case "broken_50x50.jpg":
			return c.String(http.StatusInternalServerError, "render failed")
		}
		return c.Blob(http.StatusOK, "image/jpeg", []byte("jpeg"))
	})
	return e
}

func TestMetricsMiddleware_Labels(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		wantMethod string
		wantStatus string
		wantPath   string
	}{
		{"thumbnail", http.MethodGet, "/media/cat_50x50.jpg", "GET", "200", "/media"},
		{"head", http.MethodHead, "/media/cat_50x50.jpg", "HEAD", "200", "/media"},
		{"handler error status", http.MethodGet, "/media/missing.jpg", "GET", "404", "/media"},
		{"written error status", http.MethodGet, "/media/broken_50x50.jpg", "GET", "500", "/media"},
		{"reserved route", http.MethodGet, "/healthz", "GET", "200", "/healthz"},
		{"router not found", http.MethodGet, "/nonexistent", "GET", "404", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New("/media/")
			e := newMetricsEcho(m)

			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if got := requestCount(t, m, tt.wantMethod, tt.wantStatus, tt.wantPath); got != 1 {
				t.Errorf("requests{method=%s,status_code=%s,path_prefix=%s} = %v, want 1",
					tt.wantMethod, tt.wantStatus, tt.wantPath, got)
			}
		})
	}
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	m := metrics.New("/media/")
	e := newMetricsEcho(m)

	req := httptest.NewRequest(http.MethodGet, "/media/cat_50x50.jpg", http.NoBody)
	e.ServeHTTP(httptest.NewRecorder(), req)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	for _, f := range families {
		if f.GetName() == "thumbnail_proxy_http_request_duration_seconds" {
			if n := f.GetMetric()[0].GetHistogram().GetSampleCount(); n != 1 {
				t.Errorf("sample count = %d, want 1", n)
			}
			return
		}
	}
	t.Error("expected thumbnail_proxy_http_request_duration_seconds in gathered metrics")
}

func TestMetricsMiddleware_SkipsScrapePath(t *testing.T) {
	m := metrics.New("/media/")
	e := newMetricsEcho(m)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := requestCount(t, m, "GET", "200", "/metrics"); got != -1 {
		t.Errorf("scrape request recorded with count %v", got)
	}
}

func TestMetricsMiddleware_UnknownMethodNormalized(t *testing.T) {
	m := metrics.New("/media/")
	e := newMetricsEcho(m)

	req := httptest.NewRequest("XYZZY", "/media/cat_50x50.jpg", http.NoBody)
	e.ServeHTTP(httptest.NewRecorder(), req)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != "thumbnail_proxy_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "method" && lp.GetValue() == "other" {
					return
				}
			}
		}
	}
	t.Error("expected thumbnail_proxy_http_requests_total with method=other")
}
