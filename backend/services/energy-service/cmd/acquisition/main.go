package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"gridcast/backend/libs/logging"
	"gridcast/backend/services/energy-service/internal/app"
	"gridcast/backend/services/energy-service/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAcquisition()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger("acquisition")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	application, err := app.NewAcquisition(cfg, logger)
	if err != nil {
		logger.Fatal("failed to init application", zap.Error(err))
	}
	defer application.Close()

	logger.Info("acquisition started",
		zap.String("station", cfg.Station),
		zap.String("mode", cfg.Source.Mode),
		zap.String("data_dir", cfg.DataDir),
	)

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("application stopped with error", zap.Error(err))
	}
}
