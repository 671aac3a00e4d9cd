package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/franckalain/macrotrack/internal/config"
	"github.com/franckalain/macrotrack/internal/database"
	"github.com/franckalain/macrotrack/internal/metrics"
	"github.com/franckalain/macrotrack/internal/ml"
	"github.com/franckalain/macrotrack/internal/server"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Fatal("Failed to load .env:", err)
	}

	configPath := flag.String("config", config.GetConfigPath(), "path to configuration file")
	modelConfigPath := flag.String("model-config", "", "path to model configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := newLogger(cfg.Server.Debug)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewSQLiteDB(cfg.Database.Path, logger.Named("database"))
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if *modelConfigPath == "" {
		*modelConfigPath = cfg.ML.ConfigPath
	}
	model, err := ml.NewModel(cfg.ML.Type, *modelConfigPath, logger.Named("ml"))
	if err != nil {
		logger.Fatal("Failed to create ML model", zap.Error(err))
	}
	if err := model.Load(ctx); err != nil {
		logger.Fatal("Failed to load ML model", zap.String("type", cfg.ML.Type), zap.Error(err))
	}
	if c, ok := model.(io.Closer); ok {
		defer c.Close()
	}

	srv := server.New(db, model, logger.Named("server"), server.Options{
		StaticDir:    cfg.Server.StaticDir,
		HistoryLimit: cfg.History.Limit,
	})
	if err := srv.Start(ctx, cfg.Server.Port); err != nil {
		logger.Error("Server stopped", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}
