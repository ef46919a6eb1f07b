// Command api runs the local session daemon for the HR desktop client.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/app"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/config"
)

const defaultEnvFile = ".env"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hrms-session: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := os.Getenv("HRMS_ENV_FILE")
	if envFile == "" {
		envFile = defaultEnvFile
	}
	// A missing dotenv file is normal outside development.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	daemon, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("start session daemon: %w", err)
	}
	return daemon.Run(ctx)
}
