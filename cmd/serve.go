package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"profiledrive/internal/auth"
	"profiledrive/internal/config"
	"profiledrive/internal/handler"
	"profiledrive/internal/locks"
	"profiledrive/internal/metrics"
	"profiledrive/internal/notify"
	"profiledrive/internal/repository"
	"profiledrive/internal/service"
	"profiledrive/internal/service/s3"
)

const (
	dbConnectAttempts = 5
	dbConnectDelay    = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
	metricsNamespace  = "profiledrive"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, gRPC health endpoint and upload sweeper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply migrations on start")
	return cmd
}

func serve(ctx context.Context, opts *rootOptions, skipMigrations bool) error {
	cfg := opts.cfg

	db, err := repository.ConnectWithRetry(cfg.Database, dbConnectAttempts, dbConnectDelay)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if !skipMigrations {
		if err := runMigrations(opts.migrationsURL, cfg.Database, false); err != nil {
			return err
		}
	}

	s3Config, err := s3.NewConfig(opts.s3ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load S3 config: %w", err)
	}
	s3Client, err := s3.NewClient(s3Config)
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	authConfig, err := auth.NewConfig(opts.authConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load auth config: %w", err)
	}
	verifier := auth.NewVerifier(authConfig)

	lockStore, closeLocks, err := newLockStore(cfg.Redis)
	if err != nil {
		return err
	}
	defer closeLocks()

	publisher, closePublisher, err := newPublisher(cfg.Notify)
	if err != nil {
		return err
	}
	defer closePublisher()

	m := metrics.NewProm(metricsNamespace)
	buckets := s3Config.Buckets()

	// Инициализация репозиториев
	slotRepo := repository.NewAssetSlotRepository(db)
	archiveRepo := repository.NewArchiveRepository(db)
	uploadRepo := repository.NewUploadRepository(db)

	// Инициализация сервисов
	issuer := service.NewCapabilityIssuer(s3Client, cfg.Policy.UploadTTL, cfg.Policy.DownloadTTL)
	archiveManager := service.NewArchiveManager(s3Client, archiveRepo, buckets, m)
	auditLogger, err := service.NewAuditLogger(s3Client, publisher, service.AuditConfig{
		Bucket: buckets.Logs,
		Prefix: s3Config.LogPrefix,
		Topic:  cfg.Notify.Topic,
	}, m)
	if err != nil {
		return fmt.Errorf("failed to create audit logger: %w", err)
	}

	assetService := service.NewAssetService(service.AssetDeps{
		Slots:   slotRepo,
		Uploads: uploadRepo,
		Store:   s3Client,
		Issuer:  issuer,
		Archive: archiveManager,
		Audit:   auditLogger,
		Locks:   lockStore,
		Buckets: buckets,
		Metrics: m,
	}, service.AssetConfig{
		Window:      cfg.Policy.Window,
		UploadTTL:   cfg.Policy.UploadTTL,
		DownloadTTL: cfg.Policy.DownloadTTL,
		LockGrace:   cfg.Policy.LockGrace,
		SubTypes:    cfg.Policy.SubTypes,
	})
	accountService := service.NewAccountService(slotRepo, archiveRepo, uploadRepo, s3Client, lockStore, buckets)

	assetHandler := handler.NewAssetHandler(assetService, accountService)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: newRouter(assetHandler, verifier),
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	errCh := make(chan error, 2)

	go func() {
		lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
		if err != nil {
			errCh <- fmt.Errorf("failed to listen for gRPC: %w", err)
			return
		}
		slog.Info("starting gRPC server", "port", cfg.Server.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("failed to serve gRPC: %w", err)
		}
	}()

	go func() {
		slog.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}()

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go service.NewUploadSweeper(assetService, cfg.Policy.SweepInterval).Run(sweepCtx)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down servers")
	case runErr = <-errCh:
		slog.Error("server failed, shutting down", "error", runErr)
	}

	stopSweeper()
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server forced to shutdown", "error", err)
	}
	grpcServer.GracefulStop()

	slog.Info("server exited")
	return runErr
}

func newRouter(assets *handler.AssetHandler, verifier *auth.Verifier) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(verifier.Middleware)
		assets.Routes(r)
	})
	return r
}

func newLockStore(cfg config.RedisConfig) (locks.Store, func(), error) {
	if cfg.URL == "" {
		slog.Warn("REDIS_URL is empty, slot locks are local to this process")
		return locks.NewMemoryStore(), func() {}, nil
	}

	store, err := locks.NewRedisStore(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create redis lock store: %w", err)
	}
	return store, func() {
		if err := store.Close(); err != nil {
			slog.Warn("failed to close redis lock store", "error", err)
		}
	}, nil
}

func newPublisher(cfg config.NotifyConfig) (notify.Publisher, func(), error) {
	switch cfg.Driver {
	case config.NotifySNS:
		p, err := notify.NewSNSPublisher(notify.SNSConfig{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create SNS publisher: %w", err)
		}
		return p, func() {}, nil
	case config.NotifyNATS:
		p, err := notify.NewNATSPublisher(cfg.NatsURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		return p, p.Close, nil
	default:
		return notify.Noop{}, func() {}, nil
	}
}
