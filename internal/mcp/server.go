package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dthille/corpusqa/internal/cache"
	"github.com/dthille/corpusqa/internal/config"
	"github.com/dthille/corpusqa/internal/embedder"
	"github.com/dthille/corpusqa/internal/engine"
	"github.com/dthille/corpusqa/internal/generator"
	"github.com/dthille/corpusqa/internal/index"
	"github.com/dthille/corpusqa/internal/observability"
)

const (
	// ServerName is the MCP server name
	ServerName = "corpusqa"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with the answer engine and its corpus.
type Server struct {
	mcp    *server.MCPServer
	engine *engine.Engine
	corpus *index.Corpus
	cfg    *config.Config
	logger *zap.Logger
}

// NewServer assembles the full pipeline behind an MCP surface: corpus,
// embedding and generation clients, caches, and engine. The embedding client
// is shared between the semantic cache path and retrieval, so a query is
// encoded at most once per request.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	corpus, err := index.LoadCorpus(cfg.Corpus.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}

	emb, err := embedder.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}

	gen, err := generator.New(cfg.Generation)
	if err != nil {
		_ = emb.Close()
		return nil, fmt.Errorf("create generation client: %w", err)
	}

	opts := []engine.Option{engine.WithMetrics(observability.NewMetrics())}
	if cfg.Cache.PersistPath != "" {
		store, err := cache.NewSQLStore(cfg.Cache.PersistPath)
		if err != nil {
			// The durable store is an optimization; start memory-only.
			logger.Warn("cache store unavailable, running memory-only", zap.Error(err))
		} else {
			opts = append(opts, engine.WithStore(store))
		}
	}

	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion),
		engine: engine.New(cfg, corpus, emb, gen, logger, opts...),
		corpus: corpus,
		cfg:    cfg,
		logger: logger,
	}
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown. Corpus
// watching and cache maintenance run until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.engine.Close() }()

	if s.cfg.Corpus.Watch {
		if err := s.corpus.Watch(ctx); err != nil {
			return fmt.Errorf("watch corpus: %w", err)
		}
	}
	s.engine.RunMaintenance(ctx, s.cfg.Cache.ExactTTL/4)

	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(askTool(), s.handleAsk)
	s.mcp.AddTool(searchPassagesTool(), s.handleSearchPassages)
	s.mcp.AddTool(cacheStatsTool(), s.handleCacheStats)
}
