package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/agentic-search-mcp/internal/config"
	"github.com/dshills/agentic-search-mcp/internal/embedder"
	"github.com/dshills/agentic-search-mcp/internal/extractor"
	"github.com/dshills/agentic-search-mcp/internal/logger"
	"github.com/dshills/agentic-search-mcp/internal/mcp"
	"github.com/dshills/agentic-search-mcp/internal/metrics"
	"github.com/dshills/agentic-search-mcp/internal/searcher"
	"github.com/dshills/agentic-search-mcp/internal/storage"
	"github.com/dshills/agentic-search-mcp/internal/vectorstore"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const pingTimeout = 5 * time.Second

// rootOptions holds the flags shared by every mode
type rootOptions struct {
	socketAddr string
	transport  string
	logLevel   string
	logEnv     string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "agentic-search",
		Short:        "MCP server answering search queries from a vector index, a full-text store, or both",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// a missing .env is fine
			_ = godotenv.Load()
			return nil
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("Agentic Search MCP Server\nVersion: %s\nBuild Time: %s\nSQLite: %s (%s)\n",
		version, buildTime, storage.BuildMode, storage.SQLiteDriverName))

	pf := root.PersistentFlags()
	pf.StringVar(&opts.socketAddr, "socket-addr", mcp.DefaultAddr, "listen address for the sse and stream-http transports")
	pf.StringVar(&opts.transport, "transport", string(mcp.TransportStreamHTTP), "MCP transport: stdio, sse or stream-http")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&opts.logEnv, "log-env", "prod", "log format: prod (JSON) or dev (console)")

	root.AddCommand(
		newModeCmd("qdrant", config.ModeVector, "Search a Qdrant collection by embedding similarity", opts),
		newModeCmd("tidb", config.ModeKeyword, "Search a TiDB full-text index with LLM-extracted keywords", opts),
		newModeCmd("search", config.ModeCombined, "Search both backends and merge the results by score", opts),
	)
	return root
}

// newModeCmd builds the subcommand for one search mode. Backend flags have
// empty defaults so the resolver owns precedence and defaults.
func newModeCmd(use string, mode config.Mode, short string, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, mode, opts)
		},
	}
	addBackendFlags(cmd.Flags(), mode)
	return cmd
}

func run(cmd *cobra.Command, mode config.Mode, opts *rootOptions) error {
	transport, err := mcp.ParseTransport(opts.transport)
	if err != nil {
		return err
	}

	log, err := logger.New(opts.logEnv, opts.logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("agentic search starting",
		zap.String("version", version),
		zap.String("mode", string(mode)),
		zap.String("sqlite", storage.BuildMode))

	cfg, err := config.Resolve(mode, config.EnvSource{}, flagSource{flags: cmd.Flags()})
	if err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return err
	}
	logProvenance(log, cfg)

	metrics.Register()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := buildDeps(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize backends", zap.Error(err))
		return err
	}
	defer cleanup()

	s, err := searcher.New(cfg, deps, log)
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	srv, err := mcp.NewServer(s, log)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	if err := srv.Serve(ctx, transport, opts.socketAddr, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
		log.Error("server error", zap.Error(err))
		return err
	}
	log.Info("server stopped")
	return nil
}

// buildDeps creates the backend clients the resolved mode needs
func buildDeps(ctx context.Context, cfg *config.Config, log *zap.Logger) (searcher.Deps, func(), error) {
	var deps searcher.Deps
	cleanup := func() {}

	if vc, ok := cfg.Vector(); ok {
		emb, err := embedder.NewFromConfig(vc)
		if err != nil {
			return deps, cleanup, fmt.Errorf("embedding client: %w", err)
		}
		vs, err := vectorstore.NewFromConfig(vc)
		if err != nil {
			return deps, cleanup, fmt.Errorf("qdrant client: %w", err)
		}
		deps.Embedder = emb
		deps.Vector = vs
		log.Info("vector backend ready",
			zap.String("qdrant", vc.BaseURL),
			zap.String("collection", vc.Collection),
			zap.String("embedding_model", emb.Model()))
	}

	if kc, ok := cfg.Keyword(); ok {
		ex, err := extractor.NewFromConfig(kc)
		if err != nil {
			return deps, cleanup, fmt.Errorf("chat client: %w", err)
		}
		st, err := storage.Open(kc)
		if err != nil {
			return deps, cleanup, fmt.Errorf("full-text store: %w", err)
		}
		cleanup = func() { _ = st.Close() }

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		if err := st.Ping(pingCtx); err != nil {
			log.Warn("full-text store unreachable at startup", zap.Error(err))
		}
		cancel()

		deps.Extractor = ex
		deps.Keyword = st
		log.Info("keyword backend ready",
			zap.String("store", kc.Connection.String()),
			zap.String("dialect", st.Dialect()),
			zap.String("table", kc.Table))
	}

	return deps, cleanup, nil
}

// logProvenance records which layer supplied each setting. Values are never
// logged, so secrets stay out of the log.
func logProvenance(log *zap.Logger, cfg *config.Config) {
	for _, p := range cfg.Provenance() {
		log.Debug("config",
			zap.String("key", p.Key),
			zap.String("source", string(p.Layer)),
			zap.Bool("secret", p.Secret))
	}
}
