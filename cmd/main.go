package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	grpcctx "github.com/dtroode/rollcall-server/internal/api/grpc/context"
	grpcRouter "github.com/dtroode/rollcall-server/internal/api/grpc/router"
	grpcServer "github.com/dtroode/rollcall-server/internal/api/grpc/server"
	"github.com/dtroode/rollcall-server/internal/api/http/display"
	httpRouter "github.com/dtroode/rollcall-server/internal/api/http/router"
	httpServer "github.com/dtroode/rollcall-server/internal/api/http/server"
	"github.com/dtroode/rollcall-server/internal/audit"
	"github.com/dtroode/rollcall-server/internal/cache/redis"
	"github.com/dtroode/rollcall-server/internal/config"
	"github.com/dtroode/rollcall-server/internal/logger"
	"github.com/dtroode/rollcall-server/internal/model"
	"github.com/dtroode/rollcall-server/internal/notify"
	"github.com/dtroode/rollcall-server/internal/phase"
	"github.com/dtroode/rollcall-server/internal/repository/postgres"
	"github.com/dtroode/rollcall-server/internal/reverify"
	"github.com/dtroode/rollcall-server/internal/scoring"
	"github.com/dtroode/rollcall-server/internal/server"
	"github.com/dtroode/rollcall-server/internal/service"
	storage "github.com/dtroode/rollcall-server/internal/storage/minio"
	"github.com/dtroode/rollcall-server/internal/token"
	"github.com/dtroode/rollcall-server/internal/worker"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel, cfg.LogFormat).With("instance", instanceID(cfg))
	clock := model.SystemClock{}

	db, err := postgres.NewConnection(ctx, postgres.PoolConfig{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer db.Close()

	redisClient, err := redis.NewClient(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Fatal("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	minioClient, err := storage.Connect(cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.UseSSL)
	if err != nil {
		logger.Fatal("failed to create minio client", "error", err)
	}
	storageClient, err := storage.NewClient(ctx, minioClient, cfg.Storage.Bucket)
	if err != nil {
		logger.Fatal("failed to initialize storage client", "error", err)
	}

	sessionRepo := postgres.NewSessionRepository(db)
	recordRepo := postgres.NewRecordRepository(db)
	anomalyRepo := postgres.NewAnomalyRepository(db)
	deviceRepo := postgres.NewDeviceRepository(db)
	participantRepo := postgres.NewParticipantRepository(db)

	cache := redis.NewCache(redisClient)
	publisher := notify.NewPublisher(redisClient, cfg.Notify, clock, logger)
	archiver := audit.NewArchiver(recordRepo, anomalyRepo, storageClient, clock, logger)

	controller := phase.NewController(
		sessionRepo,
		reverify.NewScheduler(sessionRepo, publisher, cfg.Reverify, clock, logger),
		reverify.NewSweeper(recordRepo, publisher, cfg.Reverify, clock, logger),
		archiver,
		cfg.Session.Durations(),
		clock,
		logger,
	)

	attendanceService := service.NewAttendance(
		participantRepo,
		recordRepo,
		deviceRepo,
		controller,
		scoring.NewDeviceConsistency(deviceRepo, cache, logger),
		scoring.NewScorer(cfg.Scoring),
		cache,
		publisher,
		clock,
		cfg.Admission,
		logger,
	)
	sessionService := service.NewSession(sessionRepo, controller, archiver, cfg.Reverify, cfg.Session, clock, logger)

	tokenManager := token.NewJWT(cfg.JWT.Secret, cfg.JWT.TTL)
	ctxMgr := grpcctx.NewManager()

	grpcRoutes := grpcRouter.New(attendanceService, sessionService, tokenManager, ctxMgr, logger)
	servers := []model.Server{
		grpcServer.NewGRPCServer(grpcRoutes.Register(), fmt.Sprintf(":%s", cfg.GRPC.Port)),
		httpServer.NewHTTPServer(
			httpRouter.New(
				display.NewFeed(sessionService, tokenManager, cfg.HTTP.DisplayInterval, logger),
				map[string]httpRouter.Check{
					"postgres": db.Ping,
					"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
				},
				logger,
			).Register(),
			fmt.Sprintf(":%s", cfg.HTTP.Port),
		),
	}

	sl := server.NewSecurityLayer(cfg.GRPC.EnableHTTPS, cfg.GRPC.CertFileName, cfg.GRPC.PrivateKeyFileName)

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(s model.Server) {
			defer wg.Done()
			logger.Info("Starting server on", "address", s.Address())
			if err := s.Start(sl); err != nil {
				logger.Error("failed to start server", "error", err, "address", s.Address())
				stop()
			}
		}(s)
	}

	ticker := worker.NewTicker(sessionRepo, controller, cache, instanceID(cfg), cfg.Worker, clock, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker.Run(ctx)
	}()

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")
	grpcRoutes.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownDeadline)
	defer shutdownCancel()

	for _, s := range servers {
		if err := s.Stop(shutdownCtx); err != nil {
			logger.Error("error during server shutdown", "error", err, "address", s.Address())
		}
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func instanceID(cfg *config.Config) string {
	if cfg.InstanceID != "" {
		return cfg.InstanceID
	}
	host, err := os.Hostname()
	if err != nil {
		return fmt.Sprintf("pid-%d", os.Getpid())
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
