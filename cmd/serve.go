package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fyerfyer/persona-doc-analyzer/api"
	"github.com/fyerfyer/persona-doc-analyzer/api/handler"
	appconfig "github.com/fyerfyer/persona-doc-analyzer/config"
	"github.com/fyerfyer/persona-doc-analyzer/internal/database"
	"github.com/fyerfyer/persona-doc-analyzer/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	servePort int
	serveMode string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis HTTP service",
	Long: `Starts an HTTP service that accepts PDF uploads with a persona and task,
runs the analysis and keeps a history of runs.

Examples:
  analyzer serve
  analyzer serve --port 9090 --mode release`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (overrides server.port)")
	serveCmd.Flags().StringVar(&serveMode, "mode", gin.ReleaseMode, "gin mode (debug/release)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	gin.SetMode(serveMode)
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router, cleanup, err := newServeRouter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Server is running on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exited")
	return nil
}

// newServeRouter 组装serve模式的依赖：运行记录库、存储、带运行记录的分析服务和路由
// 返回的cleanup释放缓存并关闭数据库
func newServeRouter(ctx context.Context, c *appconfig.Config, logger *logrus.Logger) (*gin.Engine, func(), error) {
	if err := setupDatabase(c, logger); err != nil {
		return nil, nil, err
	}

	store, err := setupStorage(ctx, c, c.Storage.Path)
	if err != nil {
		database.Close()
		return nil, nil, err
	}

	statusManager := newStatusManager(logger)
	srv, closeCache, err := buildAnalysisService(c, logger, store, services.WithStatusManager(statusManager))
	if err != nil {
		database.Close()
		return nil, nil, err
	}

	h := handler.NewAnalysisHandler(srv, statusManager, store, c.Server.UploadDir, c.Server.MaxUploadSize)
	cleanup := func() {
		closeCache()
		if err := database.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close run history database")
		}
	}
	return api.SetupRouter(h), cleanup, nil
}
