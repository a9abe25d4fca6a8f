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

	"github.com/opencode-ai/agentrund/internal/config"
	"github.com/opencode-ai/agentrund/internal/eventlog"
	"github.com/opencode-ai/agentrund/internal/llmclient"
	"github.com/opencode-ai/agentrund/internal/logging"
	"github.com/opencode-ai/agentrund/internal/providerauth"
	"github.com/opencode-ai/agentrund/internal/rpcapi"
	"github.com/opencode-ai/agentrund/internal/session"
	"github.com/opencode-ai/agentrund/internal/subscription"
	"github.com/opencode-ai/agentrund/internal/tool"
	"github.com/opencode-ai/agentrund/internal/tool/localbackend"
	"github.com/opencode-ai/agentrund/internal/tool/workspacebackend"
	"github.com/opencode-ai/agentrund/pkg/types"
)

var (
	serveAddr          string
	serveWorkDir       string
	serveMaxConcurrent int
	serveSubBuffer     int
	serveDisableCORS   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agentrund HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Address to listen on")
	serveCmd.Flags().StringVar(&serveWorkDir, "workdir", "", "Default local workspace directory (defaults to the current directory)")
	serveCmd.Flags().IntVar(&serveMaxConcurrent, "max-concurrent-tools", tool.DefaultMaxConcurrent, "Per-session concurrent tool call ceiling")
	serveCmd.Flags().IntVar(&serveSubBuffer, "subscriber-buffer", subscription.DefaultBufferSize, "Per-subscriber event buffer before a stream is dropped as lagged")
	serveCmd.Flags().BoolVar(&serveDisableCORS, "disable-cors", false, "Disable permissive CORS (enabled by default for local development)")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := resolveWorkDir(serveWorkDir)
	if err != nil {
		return fmt.Errorf("resolve workdir: %w", err)
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return fmt.Errorf("prepare config/data directories: %w", err)
	}
	if err := config.LoadEnv(paths); err != nil {
		logging.Warn().Err(err).Msg("no .env file loaded")
	}

	catalog, err := config.Load(paths)
	if err != nil {
		return fmt.Errorf("load provider/model catalog: %w", err)
	}

	watcher, err := config.NewWatcher(paths, func(reloaded *config.Catalog) {
		*catalog = *reloaded
	})
	if err != nil {
		logging.Warn().Err(err).Msg("catalog hot-reload disabled")
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	credStore := providerauth.NewStore(paths.AuthPath())
	resolver := providerauth.NewResolver(catalog, credStore)
	raw := llmclient.New(catalog)
	provider := providerauth.NewAuthenticatedProvider(resolver, raw)

	store, err := eventlog.New(paths.StoragePath())
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}

	registry := tool.NewRegistry()
	registry.Register(localbackend.New(workDir))
	wsBackend, err := workspacebackend.New(types.WorkspaceConfig{Kind: types.WorkspaceLocal, Path: workDir})
	if err != nil {
		return fmt.Errorf("build workspace backend: %w", err)
	}
	registry.Register(wsBackend)

	executor := tool.NewExecutor(registry, serveMaxConcurrent)
	fanout := subscription.NewFanout(serveSubBuffer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	supervisor := session.NewSupervisor(ctx, store, registry, executor, provider, fanout)
	defer supervisor.Shutdown()

	service := rpcapi.NewService(store, supervisor, fanout)
	httpCfg := rpcapi.DefaultConfig()
	httpCfg.Addr = serveAddr
	httpCfg.EnableCORS = !serveDisableCORS
	httpServer := rpcapi.NewHTTPServer(httpCfg, service)

	logging.Info().Str("addr", serveAddr).Str("workdir", workDir).Msg("agentrund listening")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func resolveWorkDir(dir string) (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	return dir, nil
}
