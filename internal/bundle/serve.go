package bundle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/evanw/esbuild/pkg/api"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8000
	// RoamOrigin is the only origin allowed to fetch dev bundles.
	RoamOrigin = "https://roamresearch.com"

	shutdownTimeout = 5 * time.Second
)

// ServeOptions controls the dev server listener. A zero Port means
// DefaultPort and a negative one picks any free port.
type ServeOptions struct {
	Host string
	Port int
}

func (o ServeOptions) address() string {
	host := o.Host
	if host == "" {
		host = DefaultHost
	}
	port := o.Port
	switch {
	case port == 0:
		port = DefaultPort
	case port < 0:
		port = 0
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Serve rebuilds cfg on every source change and serves the output directory
// until ctx is cancelled. Rebuild failures are logged and the server keeps
// running; failing to bind is returned.
func (r *Runner) Serve(ctx context.Context, cfg *Config, so ServeOptions) error {
	listener, err := net.Listen("tcp", so.address())
	if err != nil {
		return fmt.Errorf("dev server: %w", err)
	}
	addr := listener.Addr().String()

	opts := cfg.Build
	opts.Sourcemap = api.SourceMapLinked
	opts.Define = withDefine(opts.Define, "process.env.NODE_ENV", `"development"`)
	opts.PublicPath = "http://" + addr + "/"
	emitted := NewEmitted()
	opts.Plugins = append(append([]api.Plugin(nil), opts.Plugins...), r.rebuildReporter(cfg, emitted))

	buildCtx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		_ = listener.Close()
		return newBuildError(ctxErr.Errors, cfg.Color)
	}
	defer buildCtx.Dispose()

	if err := buildCtx.Watch(api.WatchOptions{}); err != nil {
		_ = listener.Close()
		return fmt.Errorf("watch: %w", err)
	}

	server := &http.Server{
		Handler:           Handler(cfg.OutDir, emitted, r.logger()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()
	r.logger().Info("dev server listening", "url", "http://"+addr, "dir", cfg.OutDir)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown dev server: %w", err)
	}
	r.logger().Info("dev server stopped")
	return nil
}

func (r *Runner) rebuildReporter(cfg *Config, emitted *Emitted) api.Plugin {
	return api.Plugin{
		Name: "roamjs-dev-reporter",
		Setup: func(build api.PluginBuild) {
			var started time.Time
			build.OnStart(func() (api.OnStartResult, error) {
				started = time.Now()
				return api.OnStartResult{}, nil
			})
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				if len(result.Errors) > 0 {
					r.logger().Error("rebuild failed", "error", newBuildError(result.Errors, cfg.Color))
					return api.OnEndResult{}, nil
				}
				if result.Metafile != "" {
					if meta, err := parseMetafile(result.Metafile); err == nil {
						emitted.Replace(meta.Names(cfg.Build.AbsWorkingDir, cfg.OutDir))
						if err := meta.CheckSize(DevMaxSize); err != nil {
							r.logger().Warn(err.Error())
						}
					}
				}
				r.logger().Info("rebuilt", "duration", time.Since(started).Round(time.Millisecond))
				return api.OnEndResult{}, nil
			})
		},
	}
}

// Handler serves the emitted files under dir with the CORS and request
// logging middleware. Anything else in dir is a 404.
func Handler(dir string, emitted *Emitted, logger *slog.Logger) http.Handler {
	files := http.FileServer(http.Dir(dir))
	only := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !emitted.Has(r.URL.Path) {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
	return LoggingMiddleware(logger)(CORSMiddleware(RoamOrigin)(only))
}

// LoggingMiddleware logs each request at debug level.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.DebugContext(r.Context(), "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration", time.Since(start),
			)
		})
	}
}

// CORSMiddleware lets origin load the served bundles.
func CORSMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
