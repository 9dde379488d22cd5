// Package service implements the thumbnail request lifecycle.
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"thumbnail-proxy-go/internal/config"
	"thumbnail-proxy-go/internal/metrics"
	"thumbnail-proxy-go/internal/model"
	"thumbnail-proxy-go/internal/render"
	"thumbnail-proxy-go/internal/route"
)

// ErrRender is returned when a fetched source image cannot be rendered.
var ErrRender = errors.New("thumbnail render failed")

// Origin is the downstream server source images and passthrough requests go to.
type Origin interface {
	Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error)
}

// ThumbnailService recognizes thumbnail requests, renders them from the
// origin's source image and forwards everything else unchanged.
type ThumbnailService struct {
	cfg       *config.Config
	matcher   *route.Matcher
	signer    *route.Signer
	planner   *render.Planner
	processor render.Processor
	origin    Origin
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewThumbnailService creates a ThumbnailService.
// The metrics parameter is optional; pass nil to disable outcome metrics.
func NewThumbnailService(
	cfg *config.Config,
	matcher *route.Matcher,
	signer *route.Signer,
	planner *render.Planner,
	processor render.Processor,
	origin Origin,
	logger *slog.Logger,
	m *metrics.Metrics,
) *ThumbnailService {
	return &ThumbnailService{
		cfg:       cfg,
		matcher:   matcher,
		signer:    signer,
		planner:   planner,
		processor: processor,
		origin:    origin,
		logger:    logger.With("component", "thumbnail_service"),
		metrics:   m,
	}
}

// job is the state of a single thumbnail request.
type job struct {
	req   *model.ProxyRequest
	match model.MatchResult
	spec  model.RenderSpec
	temps []string
}

func (j *job) tempFile(dir, prefix string) (*os.File, error) {
	f, err := os.CreateTemp(dir, prefix+"*"+strings.ToLower(j.match.Ext))
	if err != nil {
		return nil, err
	}
	j.temps = append(j.temps, f.Name())
	return f, nil
}

// forget drops name from the files removed by cleanup.
func (j *job) forget(name string) {
	j.temps = slices.DeleteFunc(j.temps, func(t string) bool { return t == name })
}

func (j *job) cleanup() {
	for _, name := range j.temps {
		_ = os.Remove(name)
	}
	j.temps = nil
}

// Serve handles pr and returns the response to send to the client.
// The caller is responsible for closing the response body.
//
// Route and signature errors wrap route.ErrMalformedDimensions or
// route.ErrSignatureInvalid; render errors wrap ErrRender. Any other error
// comes from the origin transport.
func (s *ThumbnailService) Serve(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	if pr.Method != http.MethodGet && pr.Method != http.MethodHead {
		return s.passthrough(pr)
	}
	m, ok := s.matcher.Match(pr.Path)
	if !ok {
		return s.passthrough(pr)
	}

	j := &job{req: pr, match: m}

	if s.signer.Enabled() {
		if err := s.signer.Verify(m); err != nil {
			return nil, s.reject(j, err)
		}
	}

	spec, err := route.ParseRenderSpec(m, s.cfg.Thumbnail.Crop)
	if err != nil {
		return nil, s.reject(j, err)
	}
	j.spec = spec

	src, err := s.fetch(j)
	if err != nil {
		s.count(metrics.OutcomeFailed)
		return nil, err
	}
	if !renderable(src) {
		s.logger.Debug("relaying origin response",
			"path", pr.Path,
			"status", src.StatusCode,
			"content_type", src.Header.Get("Content-Type"),
		)
		s.count(metrics.OutcomeRelayed)
		return src, nil
	}

	if pr.Method == http.MethodHead {
		_ = src.Close()
		header := src.Header.Clone()
		header.Del("Content-Length")
		s.count(metrics.OutcomeHead)
		return &model.ProxyResponse{StatusCode: http.StatusOK, Header: header, Body: http.NoBody}, nil
	}

	resp, err := s.render(j, src)
	if err != nil {
		j.cleanup()
		s.logger.Error("thumbnail render failed", "path", pr.Path, "error", err)
		s.count(metrics.OutcomeFailed)
		return nil, err
	}
	s.count(metrics.OutcomeRendered)
	return resp, nil
}

func (s *ThumbnailService) passthrough(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	s.count(metrics.OutcomePassthrough)
	resp, err := s.origin.Forward(pr)
	if err != nil {
		return nil, fmt.Errorf("forward to origin: %w", err)
	}
	return resp, nil
}

func (s *ThumbnailService) reject(j *job, err error) error {
	s.logger.Warn("rejected thumbnail request", "path", j.req.Path, "error", err)
	s.count(metrics.OutcomeRejected)
	return fmt.Errorf("%s: %w", j.req.Path, err)
}

// fetch requests the source image. Range and Accept-Encoding are dropped
// since only a complete, unencoded body can be decoded.
func (s *ThumbnailService) fetch(j *job) (*model.ProxyResponse, error) {
	fr := j.req.WithPath(j.match.SourcePath())
	fr.Header.Del("Range")
	fr.Header.Del("Accept-Encoding")

	resp, err := s.origin.Forward(fr)
	if err != nil {
		return nil, fmt.Errorf("fetch source %s: %w", fr.Path, err)
	}
	return resp, nil
}

// renderable reports whether an origin response carries a source image.
func renderable(resp *model.ProxyResponse) bool {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}
	ctype := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	return strings.HasPrefix(ctype, "image/")
}

func (s *ThumbnailService) render(j *job, src *model.ProxyResponse) (*model.ProxyResponse, error) {
	srcPath, fileBacked, err := s.materialize(j, src.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	if err := j.req.Ctx.Err(); err != nil {
		return nil, err
	}

	info, err := s.processor.Inspect(srcPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	t := s.planner.Plan(j.spec, info)

	dst, publish, err := s.output(j, srcPath, fileBacked)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}

	start := time.Now()
	if err := s.processor.Transform(srcPath, t, dst); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	if s.metrics != nil {
		s.metrics.RenderDuration.WithLabelValues(t.Mode.String()).Observe(time.Since(start).Seconds())
	}

	out, err := os.Open(dst)
	if err != nil {
		return nil, fmt.Errorf("%w: open thumbnail: %w", ErrRender, err)
	}
	stat, err := out.Stat()
	if err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("%w: stat thumbnail: %w", ErrRender, err)
	}

	// The open handle keeps streaming this request's render after the rename.
	if publish != "" {
		if err := os.Rename(dst, publish); err != nil {
			s.logger.Warn("keeping thumbnail failed", "path", publish, "error", err)
		} else {
			j.forget(dst)
		}
	}

	s.logger.Debug("rendered thumbnail",
		"path", j.req.Path,
		"mode", t.Mode.String(),
		"width", t.Width,
		"height", t.Height,
		"bytes", stat.Size(),
	)

	header := src.Header.Clone()
	header.Set("Content-Length", strconv.FormatInt(stat.Size(), 10))
	if ttl := s.cfg.Thumbnail.TTLSeconds; ttl > 0 {
		header.Set("Cache-Control", "public, max-age="+strconv.Itoa(ttl))
	}

	return &model.ProxyResponse{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       &thumbnailBody{File: out, job: j},
	}, nil
}

// materialize stores the source body in a file and returns its path.
// File-backed bodies are used in place.
func (s *ThumbnailService) materialize(j *job, body io.ReadCloser) (string, bool, error) {
	defer func() { _ = body.Close() }()

	if f, ok := body.(*os.File); ok {
		return f.Name(), true, nil
	}

	f, err := j.tempFile(s.cfg.Thumbnail.TmpDir, "thumbnail-")
	if err != nil {
		return "", false, fmt.Errorf("create source file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return "", false, fmt.Errorf("store source: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", false, fmt.Errorf("store source: %w", err)
	}
	return f.Name(), false, nil
}

// output returns the path the thumbnail is rendered to. With write enabled
// and a file-backed source, publish names the file next to the source that
// the finished render is renamed to; concurrent requests for the same
// thumbnail each render into their own file and the last rename wins.
func (s *ThumbnailService) output(j *job, srcPath string, fileBacked bool) (dst, publish string, err error) {
	dir, prefix := s.cfg.Thumbnail.TmpDir, "thumbnail-"
	if s.cfg.Thumbnail.Write && fileBacked {
		publish = filepath.Join(filepath.Dir(srcPath), path.Base(j.req.Path))
		dir, prefix = filepath.Dir(publish), "."+filepath.Base(publish)+"-"
	}
	f, err := j.tempFile(dir, prefix)
	if err != nil {
		return "", "", fmt.Errorf("create thumbnail file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", "", fmt.Errorf("create thumbnail file: %w", err)
	}
	return f.Name(), publish, nil
}

func (s *ThumbnailService) count(outcome string) {
	if s.metrics != nil {
		s.metrics.ThumbnailsTotal.WithLabelValues(outcome).Inc()
	}
}

// thumbnailBody streams a rendered thumbnail and removes the request's
// temporary files once closed.
type thumbnailBody struct {
	*os.File
	job *job
}

func (b *thumbnailBody) Close() error {
	err := b.File.Close()
	b.job.cleanup()
	return err
}
