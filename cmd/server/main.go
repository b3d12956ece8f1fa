package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/polyshop/backoffice/internal/adapter/handler"
	"github.com/polyshop/backoffice/internal/adapter/identity"
	"github.com/polyshop/backoffice/internal/adapter/notify"
	"github.com/polyshop/backoffice/internal/adapter/storage"
	"github.com/polyshop/backoffice/internal/config"
	"github.com/polyshop/backoffice/internal/core/service"
	"github.com/polyshop/backoffice/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	decimal.MarshalJSONWithoutQuotes = true

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	logger.Info("connected to mysql")

	if cfg.MySQL.Migrate {
		if err := storage.Migrate(ctx, db); err != nil {
			return err
		}
		logger.Info("schema migrated")
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("connected to redis")

	// Initialize adapters
	mysqlAdapter, err := storage.NewMySQLAdapter(db)
	if err != nil {
		return err
	}
	redisAdapter := storage.NewRedisAdapter(rdb, cfg.Cache.IdempotencyTTL, cfg.Cache.DashboardTTL)

	sink, err := newSink(cfg.Notify, logger)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(sink, cfg.Notify.Workers, cfg.Notify.QueueSize, logger.Named("notify"))
	logger.Info("started notification workers",
		zap.String("driver", cfg.Notify.Driver), zap.Int("workers", cfg.Notify.Workers))

	// Initialize services
	orderService := service.NewOrderService(storage.NewTxScope(db), mysqlAdapter, mysqlAdapter,
		service.WithIdempotencyCache(redisAdapter),
		service.WithReportCache(redisAdapter),
		service.WithNotifier(dispatcher),
		service.WithLocation(loc),
		service.WithLogger(logger.Named("orders")),
	)
	dashboardService := service.NewDashboardService(mysqlAdapter, redisAdapter, loc, logger.Named("dashboard"))

	identityProvider := identity.NewJWTProvider(cfg.Auth.JWTSecret, 0)
	metrics := handler.NewMetrics()

	httpHandler := handler.NewHTTPHandler(orderService, dashboardService, identityProvider, logger.Named("http"), metrics)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := handler.NewGRPCHandler(orderService, dashboardService, identityProvider, logger.Named("grpc"), metrics).NewServer()
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", cfg.Server.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown", zap.Error(err))
		}
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return nil
	})

	err = g.Wait()

	// Drain queued notifications
	if closeErr := dispatcher.Close(); closeErr != nil {
		logger.Warn("close notifier", zap.Error(closeErr))
	}
	logger.Info("workers stopped")
	return err
}

func newSink(cfg config.NotifyConfig, logger *zap.Logger) (notify.Sink, error) {
	switch cfg.Driver {
	case "kafka":
		return notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "amqp":
		return notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	default:
		return notify.NewLogSink(logger.Named("events")), nil
	}
}
