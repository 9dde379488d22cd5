package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"golang.org/x/time/rate"

	"thumbnail-proxy-go/internal/client"
	"thumbnail-proxy-go/internal/config"
	"thumbnail-proxy-go/internal/handler"
	"thumbnail-proxy-go/internal/metrics"
	"thumbnail-proxy-go/internal/middleware"
	"thumbnail-proxy-go/internal/render"
	"thumbnail-proxy-go/internal/route"
	"thumbnail-proxy-go/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	ctx := kong.Parse(&cli,
		kong.Name("thumbnail-proxy"),
		kong.Description("HTTP proxy that renders image thumbnails from URL-encoded dimensions."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	switch ctx.Command() {
	case "sign <paths>":
		ctx.FatalIfErrorf(sign(&cli))
	default:
		serve(&cli)
	}
}

func serve(cli *config.CLI) {
	fx.New(
		fx.Provide(
			func() *config.CLI { return cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			newMetrics,
			newEcho,
			newOrigin,
			newMatcher,
			newSigner,
			newProcessor,
			newPlanner,
			service.NewThumbnailService,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, startServer),
	).Run()
}

// sign prints the signed form of each path given on the command line.
func sign(cli *config.CLI) error {
	cfg, err := config.Load(cli)
	if err != nil {
		return err
	}
	matcher, err := newMatcher(cfg)
	if err != nil {
		return err
	}
	signer := newSigner(cfg)
	for _, p := range cli.Sign.Paths {
		signed, err := signer.SignPath(matcher, p)
		if err != nil {
			return err
		}
		fmt.Println(signed)
	}
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

// newMetrics labels request metrics by the configured thumbnail base paths.
func newMetrics(cfg *config.Config) *metrics.Metrics {
	prefixes := make([]string, 0, len(cfg.Thumbnail.URLs))
	for _, base := range cfg.Thumbnail.URLs {
		prefixes = append(prefixes, cfg.Thumbnail.Prefix+base)
	}
	return metrics.New(prefixes...)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	// Rendering large sources can take a while; the origin timeout bounds
	// the fetch and IdleTimeout bounds idle keep-alive connections.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger, "/healthz", cfg.Metrics.Path))
	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m, cfg.Metrics.Path))
	}
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders())

	if cfg.Server.RateLimit.Enabled {
		store := echomw.NewRateLimiterMemoryStore(rate.Limit(cfg.Server.RateLimit.RequestsPerSecond))
		e.Use(echomw.RateLimiter(store))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

// newOrigin selects the HTTP or local directory origin from config.
func newOrigin(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (service.Origin, error) {
	if cfg.Origin.Root != "" {
		logger.Info("serving sources from directory", "root", cfg.Origin.Root)
		return client.NewFileOrigin(cfg, logger)
	}
	logger.Info("serving sources from origin", "base_url", cfg.Origin.BaseURL)
	return client.NewHTTPOrigin(cfg, logger, m)
}

func newMatcher(cfg *config.Config) (*route.Matcher, error) {
	return route.NewMatcher(cfg.Thumbnail.URLs, cfg.Thumbnail.Prefix, cfg.Thumbnail.KeyLength)
}

func newSigner(cfg *config.Config) *route.Signer {
	return route.NewSigner(cfg.Thumbnail.Secret, cfg.Thumbnail.KeyLength)
}

func newProcessor(cfg *config.Config) render.Processor {
	return render.NewImagingProcessor(cfg.Thumbnail.JPEGQuality)
}

func newPlanner(cfg *config.Config, proc render.Processor) *render.Planner {
	return render.NewPlanner(proc.Capabilities(), cfg.Thumbnail.PreserveMetadata)
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server", "addr", addr, "version", version)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}
