package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dthille/corpusqa/internal/cache"
	"github.com/dthille/corpusqa/internal/config"
	"github.com/dthille/corpusqa/internal/embedder"
	"github.com/dthille/corpusqa/internal/engine"
	"github.com/dthille/corpusqa/internal/generator"
	"github.com/dthille/corpusqa/internal/index"
	"github.com/dthille/corpusqa/internal/mcp"
	"github.com/dthille/corpusqa/internal/observability"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configPath string
	corpusPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:           "corpusqa",
		Short:         "Corpus question answering engine with two-tier answer caching",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&corpusPath, "corpus", "", "path to JSONL passage corpus (overrides config)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	root.AddCommand(serveCmd(), askCmd(), searchCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if corpusPath != "" {
		cfg.Corpus.Path = corpusPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if cfg.Corpus.Path == "" {
		return nil, fmt.Errorf("no corpus configured; set --corpus or corpus.path in the config file")
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return observability.NewLogger(cfg.LogLevel)
}

// newEngine builds the full pipeline for the one-shot commands.
func newEngine(cfg *config.Config, logger *zap.Logger) (*engine.Engine, error) {
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
	return engine.New(cfg, corpus, emb, gen, logger, engine.WithMetrics(observability.NewMetrics())), nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			logger.Info("starting MCP server",
				zap.String("version", version),
				zap.String("sqlite_driver", cache.DriverName),
				zap.String("build_mode", cache.BuildMode))

			srv, err := mcp.NewServer(cfg, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() {
				logger.Info("MCP server ready, listening on stdio")
				errChan <- srv.Serve(ctx)
			}()

			select {
			case sig := <-sigChan:
				logger.Info("shutting down", zap.String("signal", sig.String()))
				cancel()
				return nil
			case err := <-errChan:
				return err
			}
		},
	}
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			eng, err := newEngine(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			ctx := cmd.Context()
			if cfg.RequestTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
				defer cancel()
			}

			answer, err := eng.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(answer)
		},
	}
}

func searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Retrieve relevant passages without generating an answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			eng, err := newEngine(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			results, err := eng.Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}

			type passage struct {
				Rank       int     `json:"rank"`
				ID         string  `json:"passage_id"`
				Text       string  `json:"text"`
				SourceURL  string  `json:"source_url,omitempty"`
				FusedScore float64 `json:"fused_score"`
			}
			out := make([]passage, len(results))
			for i, r := range results {
				out[i] = passage{
					Rank:       r.Rank,
					ID:         r.Passage.ID,
					Text:       r.Passage.Text,
					SourceURL:  r.Passage.SourceURL,
					FusedScore: r.FusedScore,
				}
			}
			return printJSON(out)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum passages to return (0 uses the configured top_k)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("corpusqa %s\n", version)
			fmt.Printf("Build Time: %s\n", buildTime)
			fmt.Printf("Build Mode: %s\n", cache.BuildMode)
			fmt.Printf("SQLite Driver: %s\n", cache.DriverName)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
