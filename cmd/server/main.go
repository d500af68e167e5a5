package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cardtable/blackjack-server/internal/auth"
	"github.com/cardtable/blackjack-server/internal/config"
	"github.com/cardtable/blackjack-server/internal/history"
	"github.com/cardtable/blackjack-server/internal/notify"
	"github.com/cardtable/blackjack-server/internal/repository"
	"github.com/cardtable/blackjack-server/internal/round"
	"github.com/cardtable/blackjack-server/internal/server"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	logger.Info("starting blackjack server",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.String("database_driver", cfg.Database.Driver),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("blackjack server stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open round store: %w", err)
	}
	defer backend.Close()

	hub := notify.NewHub(notify.HubConfig{
		PingInterval:   cfg.Server.WebSocket.PingInterval,
		PongWait:       cfg.Server.WebSocket.PongWait,
		WriteWait:      cfg.Server.WebSocket.WriteWait,
		MaxMessageSize: cfg.Server.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.Server.WebSocket.SendBuffer,
	}, logger)

	var (
		fanout = notify.Multi{hub}
		relay  *notify.RedisRelay
		async  *notify.Async
	)
	if cfg.Redis.Relay {
		client := repository.NewRedisClient(
			repository.WithAddress(cfg.Redis.Address),
			repository.WithPassword(cfg.Redis.Password),
			repository.WithDB(cfg.Redis.DB),
			repository.WithPoolSize(cfg.Redis.PoolSize),
		)
		defer client.Close()

		relay, err = notify.NewRedisRelay(client, cfg.Redis.Channel, hub, logger)
		if err != nil {
			return err
		}
		async, err = notify.NewAsync(relay, cfg.Game.FanoutWorkers, logger)
		if err != nil {
			return err
		}
		fanout = append(fanout, async)
		logger.Info("event relay enabled",
			zap.String("channel", cfg.Redis.Channel),
			zap.String("relay_id", relay.Origin()))
	}

	journal := history.NewJournal(fanout, cfg.Game.HistoryLimit, cfg.Game.HistoryDir, logger,
		history.WithRetention(cfg.Game.HistoryRetention))

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret, err = gonanoid.New(48)
		if err != nil {
			return fmt.Errorf("failed to generate jwt secret: %w", err)
		}
		logger.Warn("auth.jwt_secret not configured; using a random secret, tokens will not survive a restart")
	}
	tokens, err := auth.NewTokens(secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	accounts := auth.NewRegistry(0)

	svc := round.NewService(backend.Store, journal, logger,
		round.WithDirectory(accounts),
		round.WithEventLog(journal),
		round.WithStoreTimeout(cfg.Game.StoreTimeout),
	)

	api := server.NewHTTPServer(cfg.Server, svc, hub, tokens, accounts, logger)
	httpServer := api.Server(cfg.Server.HTTPAddress)
	grpcServer := server.NewGRPCServer(svc, logger)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.GRPCAddress, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting HTTP server", zap.String("address", cfg.Server.HTTPAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("starting gRPC server", zap.String("address", cfg.Server.GRPCAddress))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		grpcServer.WatchHealth(gctx, 10*time.Second)
		return nil
	})
	g.Go(func() error {
		journal.Run(gctx, time.Minute)
		return nil
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		hub.Close()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.Stop()
		if async != nil {
			if perr := async.Close(cfg.Server.ShutdownTimeout); perr != nil {
				logger.Warn("fan-out pool did not drain", zap.Error(perr))
			}
		}
		return err
	})

	return g.Wait()
}

// initLogger builds the zap logger. When logging.file is set, entries are also written
// to a rotating JSON file.
func initLogger(cfg config.LoggingConfig) (*zap.Logger, func(), error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, err
	}
	if cfg.File == "" {
		return logger, func() { _ = logger.Sync() }, nil
	}

	writer := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	fileEncoder := zap.NewProductionEncoderConfig()
	fileEncoder.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoder), zapcore.AddSync(writer), zapCfg.Level)

	logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
	return logger, func() {
		_ = logger.Sync()
		_ = writer.Close()
	}, nil
}
