package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	allowRemoteEnvKey = "FILESHARE_ALLOW_REMOTE"

	readHeaderTimeout = 5 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second

	defaultMultipartMaxMemory = 8 << 20
	// multipartOverhead covers boundaries and part headers around the file bytes.
	multipartOverhead = 64 << 10
)

// Server exposes a FileService over HTTP.
type Server struct {
	addr               string
	service            *FileService
	logger             *slog.Logger
	multipartMaxMemory int64
}

// New returns a server for service listening on addr. A nil logger means slog.Default.
func New(addr string, service *FileService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if service != nil && service.logger == nil {
		service.SetLogger(logger)
	}
	return &Server{
		addr:               addr,
		service:            service,
		logger:             logger,
		multipartMaxMemory: defaultMultipartMaxMemory,
	}
}

// ConfigureUploads sets how much of a multipart body is held in memory
// before spilling to temp files. Non-positive values restore the default.
func (s *Server) ConfigureUploads(multipartMaxMemory int64) {
	if multipartMaxMemory <= 0 {
		multipartMaxMemory = defaultMultipartMaxMemory
	}
	s.multipartMaxMemory = multipartMaxMemory
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// Serve listens on the configured address until ctx is cancelled, then
// drains in-flight requests for up to shutdownTimeout.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.log().Info("listening", "addr", s.addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down", "addr", s.addr)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAddr turns the configured API URL into a host:port to listen on.
// Hosts other than loopback need FILESHARE_ALLOW_REMOTE=true.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}

	addr, host := apiURL, ""
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		addr, host = u.Host, u.Hostname()
	} else if h, _, err := net.SplitHostPort(apiURL); err == nil {
		host = h
	}

	if !listenHostAllowed(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}
	return addr, nil
}

func listenHostAllowed(host string) bool {
	if host == "" || host == "localhost" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) uploadBodyLimit() int64 {
	if s.service == nil || s.service.policy == nil {
		return defaultMultipartMaxMemory
	}
	limit := s.service.policy.MaxFileBytes
	if limit > math.MaxInt64-multipartOverhead {
		return math.MaxInt64
	}
	return limit + multipartOverhead
}

func (s *Server) metrics() *serviceMetrics {
	if s != nil && s.service != nil && s.service.metrics != nil {
		return s.service.metrics
	}
	return newServiceMetrics(nil)
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
