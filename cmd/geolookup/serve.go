package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/TomasB/geolookup/internal/config"
	"github.com/TomasB/geolookup/internal/data"
	"github.com/TomasB/geolookup/internal/handler/check"
	grpchandler "github.com/TomasB/geolookup/internal/handler/grpc"
	"github.com/TomasB/geolookup/internal/handler/health"
	"github.com/TomasB/geolookup/internal/handler/lookup"
	"github.com/TomasB/geolookup/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Run the HTTP and gRPC lookup service",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vip := config.DefaultViper()
			if err := config.BindFlags(vip, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(vip, cfgFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	f.String("db", "", "path to the MaxMind DB file [MMDB_PATH]")
	f.Int("port", 8080, "HTTP port [PORT]")
	f.Int("grpc-port", 0, "gRPC port, 0 disables gRPC [GRPC_PORT]")
	f.String("log-level", "info", "debug, info, warn or error [LOG_LEVEL]")
	f.Bool("verify", false, "verify the database structure on load [VERIFY_ON_OPEN]")
	f.Bool("watch", false, "reload the database when the file changes [WATCH]")
	f.Bool("metrics", true, "serve Prometheus metrics on /metrics [METRICS]")

	return cmd
}

// serve runs the service until ctx is cancelled or a server fails.
func serve(ctx context.Context, cfg *config.Config) error {
	logLevel := cfg.Level()
	logger := setupLogger(os.Stdout, logLevel)

	slog.Info("service starting", "log_level", logLevel.String())

	// Set Gin mode based on log level
	if logLevel == slog.LevelDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	var opts []data.Option
	if cfg.VerifyOnOpen {
		opts = append(opts, data.WithVerify())
	}
	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New()
		opts = append(opts, data.WithObserver(m))
	}

	store, err := data.NewStore(cfg.MmdbPath, opts...)
	if err != nil {
		return fmt.Errorf("failed to open MMDB: %w", err)
	}
	defer store.Close()

	meta := store.Metadata()
	slog.Info("MMDB loaded",
		"path", cfg.MmdbPath,
		"database_type", meta.DatabaseType,
		"build_time", meta.BuildTime,
	)

	var watcher *data.Watcher
	if cfg.Watch {
		watcher, err = data.NewWatcher(store, cfg.Debounce)
		if err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: newRouter(logger, store, m),
	}

	var gsrv *grpc.Server
	var grpcLis net.Listener
	if cfg.GRPCPort != 0 {
		grpcLis, err = net.Listen("tcp", ":"+strconv.Itoa(cfg.GRPCPort))
		if err != nil {
			if watcher != nil {
				watcher.Close()
			}
			return fmt.Errorf("failed to listen for gRPC: %w", err)
		}
		gsrv = grpc.NewServer(grpc.UnaryInterceptor(grpchandler.UnaryLogger()))
		grpchandler.Register(gsrv, grpchandler.NewHandler(store, store))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("service started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	})

	if gsrv != nil {
		g.Go(func() error {
			slog.Info("grpc service started", "port", cfg.GRPCPort)
			if err := gsrv.Serve(grpcLis); err != nil {
				return fmt.Errorf("grpc server failed: %w", err)
			}
			return nil
		})
	}

	if watcher != nil {
		g.Go(func() error {
			defer watcher.Close()
			return watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("service shutting down")

		// Graceful shutdown with 30s timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if gsrv != nil {
			gsrv.GracefulStop()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("service stopped")
	return err
}

// newRouter registers all HTTP endpoints. m may be nil to leave out /metrics.
func newRouter(logger *slog.Logger, store *data.Store, m *metrics.Metrics) *gin.Engine {
	router := gin.New()

	router.Use(ginLogger(logger))
	router.Use(gin.Recovery())

	healthHandler := health.NewHandler(store.Ready)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	lookupHandler := lookup.NewHandler(store)
	checkHandler := check.NewHandler(store)
	api := router.Group("/api/v1")
	{
		api.GET("/lookup/:ip", lookupHandler.Get)
		api.POST("/lookup", lookupHandler.Batch)
		api.GET("/metadata", lookupHandler.Metadata)
		api.POST("/check", checkHandler.Check)
	}

	return router
}

// ginLogger creates a Gin middleware that logs using slog
func ginLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		attrs := []any{
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}

		switch status := c.Writer.Status(); {
		case len(c.Errors) > 0:
			logger.Error("request completed with errors", append(attrs, "errors", c.Errors.String())...)
		case status >= 500:
			logger.Error("request completed", attrs...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}
