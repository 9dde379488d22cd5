package client

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"thumbnail-proxy-go/internal/config"
	"thumbnail-proxy-go/internal/model"
)

// FileOrigin serves files from a local directory. GET bodies are *os.File
// values, so callers can use the file in place.
type FileOrigin struct {
	root   string
	logger *slog.Logger
}

// NewFileOrigin creates a FileOrigin rooted at cfg.Origin.Root.
func NewFileOrigin(cfg *config.Config, logger *slog.Logger) (*FileOrigin, error) {
	root, err := filepath.Abs(cfg.Origin.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve origin root: %w", err)
	}
	return &FileOrigin{
		root:   root,
		logger: logger.With("component", "file_origin"),
	}, nil
}

// Forward serves the file named by pr.Path. Only GET and HEAD are allowed.
// The caller is responsible for closing the response body.
func (o *FileOrigin) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	if pr.Method != http.MethodGet && pr.Method != http.MethodHead {
		resp := textResponse(http.StatusMethodNotAllowed, "method not allowed\n")
		resp.Header.Set("Allow", "GET, HEAD")
		return resp, nil
	}

	name, ok := o.resolve(pr.Path)
	if !ok {
		o.logger.Warn("attempted access outside origin root", "path", pr.Path)
		return textResponse(http.StatusNotFound, "not found\n"), nil
	}

	f, err := os.Open(name)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return textResponse(http.StatusNotFound, "not found\n"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", pr.Path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", pr.Path, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return textResponse(http.StatusNotFound, "not found\n"), nil
	}

	header := make(http.Header)
	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	header.Set("Content-Type", ctype)
	header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	header.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))

	resp := &model.ProxyResponse{StatusCode: http.StatusOK, Header: header, Body: f}
	if pr.Method == http.MethodHead {
		_ = f.Close()
		resp.Body = http.NoBody
	}
	return resp, nil
}

// resolve maps a URL path to a file under the root.
func (o *FileOrigin) resolve(urlPath string) (string, bool) {
	if strings.Contains(urlPath, "\x00") {
		return "", false
	}
	name := filepath.Join(o.root, filepath.FromSlash(path.Clean("/"+urlPath)))
	if name != o.root && !strings.HasPrefix(name, o.root+string(filepath.Separator)) {
		return "", false
	}
	return name, true
}

func textResponse(status int, body string) *model.ProxyResponse {
	header := make(http.Header)
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &model.ProxyResponse{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}
