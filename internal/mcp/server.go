package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dshills/agentic-search-mcp/internal/config"
	"github.com/dshills/agentic-search-mcp/internal/metrics"
	"github.com/dshills/agentic-search-mcp/internal/searcher"
)

const (
	// ServerName is the MCP server name
	ServerName = "agentic-search"
	// ServerVersion is the current server version
	ServerVersion = "0.3.0"

	// DefaultAddr is where the HTTP transports listen by default
	DefaultAddr = "127.0.0.1:8009"

	shutdownTimeout = 10 * time.Second
)

// Transport selects how MCP messages reach the server
type Transport string

const (
	TransportStdio      Transport = "stdio"
	TransportSSE        Transport = "sse"
	TransportStreamHTTP Transport = "stream-http"
)

// ErrUnknownTransport is returned for a transport name that is not supported
var ErrUnknownTransport = errors.New("unknown transport")

// ParseTransport validates a transport name
func ParseTransport(name string) (Transport, error) {
	switch t := Transport(name); t {
	case TransportStdio, TransportSSE, TransportStreamHTTP:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q (want stdio, sse or stream-http)", ErrUnknownTransport, name)
	}
}

// Searcher is the orchestration the search tool delegates to
type Searcher interface {
	Execute(ctx context.Context, query string) (*searcher.SearchResponse, error)
	Mode() config.Mode
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	searcher Searcher
	logger   *zap.Logger
}

// NewServer creates a new MCP server instance around a configured searcher
func NewServer(s Searcher, logger *zap.Logger) (*Server, error) {
	if s == nil {
		return nil, errors.New("searcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	srv := &Server{
		mcp:      mcpServer,
		searcher: s,
		logger:   logger.Named("mcp"),
	}

	if err := srv.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return srv, nil
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(searchTool(s.searcher.Mode()), s.handleSearch)
	return nil
}

// ServeStdio serves MCP over in/out and blocks until ctx is done or in closes
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	s.logger.Info("serving MCP over stdio", zap.String("mode", string(s.searcher.Mode())))
	return stdio.Listen(ctx, in, out)
}

// Handler returns the HTTP routes for an HTTP transport: the MCP endpoints
// plus /metrics and /healthz
func (s *Server) Handler(t Transport) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	switch t {
	case TransportSSE:
		sse := server.NewSSEServer(s.mcp,
			server.WithSSEEndpoint("/sse"),
			server.WithMessageEndpoint("/message"),
		)
		r.Handle("/sse", sse.SSEHandler())
		r.Handle("/message", sse.MessageHandler())
	case TransportStreamHTTP:
		r.Handle("/mcp", server.NewStreamableHTTPServer(s.mcp,
			server.WithEndpointPath("/mcp"),
		))
	default:
		return nil, fmt.Errorf("%w: %q is not an HTTP transport", ErrUnknownTransport, t)
	}

	return r, nil
}

// ServeHTTP listens on addr with an HTTP transport until ctx is done, then
// shuts down gracefully
func (s *Server) ServeHTTP(ctx context.Context, addr string, t Transport) error {
	h, err := s.Handler(t)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving MCP over HTTP",
			zap.String("addr", addr),
			zap.String("transport", string(t)),
			zap.String("mode", string(s.searcher.Mode())))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Serve runs the selected transport. addr is ignored for stdio.
func (s *Server) Serve(ctx context.Context, t Transport, addr string, in io.Reader, out io.Writer) error {
	if t == TransportStdio {
		return s.ServeStdio(ctx, in, out)
	}
	return s.ServeHTTP(ctx, addr, t)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, formatJSON(map[string]interface{}{
		"status": "ok",
		"mode":   string(s.searcher.Mode()),
	}))
}
