package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dbgateway/internal/api"
	"dbgateway/internal/audit"
	"dbgateway/internal/config"
	"dbgateway/internal/driver"
	"dbgateway/internal/executor"
	"dbgateway/internal/gateway"
	"dbgateway/internal/logger"
	"dbgateway/internal/mcp"
	"dbgateway/internal/registry"
)

// sweepInterval is how often the background idle sweeper runs.
const sweepInterval = time.Minute

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var withHTTP bool
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "dbgateway",
		Short: "Read-only database gateway speaking MCP over stdio",
		Long: `dbgateway exposes managed, read-only access to PostgreSQL, MySQL,
SQLite and MongoDB databases as MCP tools over stdio. Every query is
validated against a fail-closed rule set before it reaches a driver.

Configuration is read from DBGW_* environment variables, optionally
seeded from a .env file in the working directory.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), withHTTP, httpAddr)
		},
	}

	cmd.Flags().BoolVar(&withHTTP, "http", false, "also serve the HTTP transport (health, metrics, tools)")
	cmd.Flags().StringVar(&httpAddr, "addr", "", "HTTP listen address (overrides DBGW_HTTP_ADDR)")

	cmd.AddCommand(versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gateway version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(gateway.Version)
		},
	}
}

func run(ctx context.Context, withHTTP bool, httpAddr string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}

	// All logging goes to stderr; stdout belongs to the MCP stream.
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := audit.OpenStore(cfg.AuditDBPath)
	if err != nil {
		return fmt.Errorf("opening audit store: %w", err)
	}
	defer store.Close()

	metrics := audit.NewMetrics()
	auditor := audit.NewAuditor(metrics, store, logger.Component(log, "audit"))

	reg := registry.New(driver.All(), cfg.MaxConnections, cfg.ConnectTimeout, logger.Component(log, "registry"))
	defer reg.CloseAll()
	reg.StartSweeper(ctx, sweepInterval, cfg.IdleTimeout)

	exec := executor.New(reg, cfg.QueryTimeout, cfg.MaxRowLimit, cfg.LogQueries, logger.Component(log, "executor"))
	gw := gateway.New(cfg, reg, exec, auditor, logger.Component(log, "gateway"))

	if withHTTP {
		handler := api.NewHandler(gw, metrics, logger.Component(log, "http"))
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("http transport listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http transport failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info("gateway starting",
		"version", gateway.Version,
		"max_connections", cfg.MaxConnections,
		"default_row_limit", cfg.DefaultRowLimit)

	server := mcp.NewServer(gw, os.Stdin, os.Stdout, logger.Component(log, "mcp"))
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("gateway stopped")
	return nil
}
