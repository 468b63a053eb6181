package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/auth"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/borrowing"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/cache"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/catalog"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/config"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/grpcserver"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/kafka"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/logger"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/notes"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository/postgresql"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/server"
)

const (
	auditWorkers   = 3
	auditBatchSize = 10
	auditTimeout   = 2 * time.Second

	warmBooks = 100
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	envFile, err := config.LoadDotEnv()
	if err != nil {
		log.Fatalf("failed to load env file: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	if envFile != "" {
		lg.Info("loaded env file", zap.String("path", envFile))
	}

	if err := run(ctx, cfg, lg); err != nil {
		lg.Fatal("service stopped with error", zap.Error(err))
	}
	lg.Info("service stopped")
}

func run(ctx context.Context, cfg *config.Config, lg *zap.Logger) error {
	database, err := db.NewDb(ctx, cfg.DBSource, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.MigrateOnStart {
		if err := database.Migrate(ctx); err != nil {
			return err
		}
		lg.Info("migrations applied")
	}

	outboxRepo := postgresql.NewOutboxTaskRepo(database)
	bookRepo := postgresql.NewBookRepo(database)
	loanRepo := postgresql.NewLoanRepo(database, outboxRepo, cfg.LoanEventsTopic)
	userRepo := postgresql.NewUserRepo(database)
	noteRepo := postgresql.NewNoteRepo(database)

	cipher, err := notes.NewCipher(cfg.NotesSecret)
	if err != nil {
		return err
	}

	authService := auth.NewService(userRepo, cfg.JWTSecret, cfg.JWTTTL, lg)
	bookCache := cache.NewBookCache(cfg.BookCacheTTL, lg)
	if err := bookCache.Warm(ctx, bookRepo, warmBooks); err != nil {
		lg.Warn("failed to warm book cache", zap.Error(err))
	}

	catalogService := catalog.NewService(bookRepo, lg).WithCache(bookCache)
	borrowingService := borrowing.NewService(loanRepo, catalogService, lg, cfg.BorrowMaxBatch)
	notesService := notes.NewService(noteRepo, catalogService, cipher, lg)

	if cfg.AdminUsername != "" {
		if err := authService.EnsureUser(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			return err
		}
	}

	audit := server.NewAuditManager(auditWorkers, auditBatchSize, auditTimeout,
		server.NewOutboxAuditSink(outboxRepo, cfg.AuditTopic), lg)

	httpServer := server.New(server.Deps{
		Borrowing: borrowingService,
		Catalog:   catalogService,
		Auth:      authService,
		Notes:     notesService,
		DB:        database,
		Audit:     audit,
		Log:       lg,
	})
	grpcServer := grpcserver.NewServer(":"+cfg.GRPCPort, borrowingService, authService, lg)

	producer := kafka.NewProducer(cfg.KafkaBrokers, lg)
	publisher := kafka.NewPublisher(database, outboxRepo, producer, kafka.PublisherConfig{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
	}, lg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpServer.Run(gctx, cfg.HTTPPort)
	})
	g.Go(func() error {
		return grpcServer.Run(gctx)
	})
	g.Go(func() error {
		return publisher.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		publisher.Shutdown(shutdownCtx)
		return nil
	})

	lg.Info("library service started",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("grpc_port", cfg.GRPCPort),
	)
	return g.Wait()
}
