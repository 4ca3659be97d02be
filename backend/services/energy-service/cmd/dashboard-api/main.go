package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"gridcast/backend/libs/logging"
	"gridcast/backend/services/energy-service/internal/app"
	"gridcast/backend/services/energy-service/internal/config"
	"gridcast/backend/services/energy-service/internal/password"
)

func main() {
	// dashboard-api hash-password <password> prints a value for OPERATOR_PASSWORD_HASH.
	if len(os.Args) == 3 && os.Args[1] == "hash-password" {
		auth, err := config.LoadAuth()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		hash, err := password.NewBcryptHasher(auth.BcryptCost).Hash(os.Args[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDashboard()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger("dashboard-api")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	application, err := app.NewDashboard(cfg, logger)
	if err != nil {
		logger.Fatal("failed to init application", zap.Error(err))
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("application stopped with error", zap.Error(err))
	}
}
