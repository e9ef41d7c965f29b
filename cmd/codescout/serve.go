package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-labs/codescout/pkg/analytics"
	"github.com/vantage-labs/codescout/pkg/config"
	"github.com/vantage-labs/codescout/pkg/index"
	"github.com/vantage-labs/codescout/pkg/llmgateway"
	"github.com/vantage-labs/codescout/pkg/logging"
	"github.com/vantage-labs/codescout/pkg/server"
	"github.com/vantage-labs/codescout/pkg/store"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Config string `short:"c" help:"Path to config file." default:"config.yaml" type:"path"`
	Port   int    `help:"Override the configured listen port."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down...")
		cancel()
	}()

	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("serve: loading config: %w", err)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = cli.LogLevel
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel), os.Stderr)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("serve: invalid config: %w", err)
	}

	if c.Port != 0 {
		cfg.Server.ListenAddr = fmt.Sprintf(":%d", c.Port)
	}

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("serve: connecting to postgres: %w", err)
	}
	defer pool.Close()

	convStore := store.New(pool, slog.Default())
	if err := convStore.Init(ctx); err != nil {
		return fmt.Errorf("serve: initializing conversation store: %w", err)
	}

	semanticIndex, err := buildSemanticIndex(cfg.Index)
	if err != nil {
		return fmt.Errorf("serve: building semantic index: %w", err)
	}

	idx := index.NewComposite(
		index.NewFuzzyPathIndex(nil), // populated by the out-of-scope indexing pipeline; empty until then
		semanticIndex,
		index.NewLocalFileStore("."),
	)

	gateway := llmgateway.New(cfg.Gateway.BaseURL, cfg.Gateway.BearerToken)
	sink := analytics.NewLoggingSink(slog.Default())

	srv := server.New(&server.Server{
		Gateway:           gateway,
		Index:             idx,
		Store:             convStore,
		Loader:            convStore,
		Parser:            server.DefaultQueryParser{},
		Sink:              sink,
		PlannerModel:      cfg.Models.PlannerModel,
		ProcModel:         cfg.Models.ProcModel,
		AnswerModel:       cfg.Models.AnswerModel,
		PlannerContextLim: cfg.Models.PlannerContextLim,
		AnswerContextLim:  cfg.Models.AnswerContextLim,
	})

	httpSrv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: srv,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		slog.Info("serve: shutting down HTTP server")
		_ = httpSrv.Shutdown(context.Background())
	}()

	slog.Info("serve: listening", "addr", cfg.Server.ListenAddr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func buildSemanticIndex(cfg config.IndexConfig) (index.SemanticIndex, error) {
	switch cfg.Backend {
	case "qdrant":
		return index.NewQdrantIndex(index.QdrantConfig{Addr: cfg.QdrantAddr, Collection: cfg.Collection})
	default:
		return index.NewChromemIndex(index.ChromemConfig{PersistPath: cfg.ChromemPath, Collection: cfg.Collection})
	}
}
