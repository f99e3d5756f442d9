package main

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/akeren/course-waitlist-api/config"
	"github.com/akeren/course-waitlist-api/domain"
	"github.com/akeren/course-waitlist-api/internal/log"
)

const httpShutdownTimeout = 30 * time.Second

func wantsAutoMigrate(args []string) bool {
	return slices.ContainsFunc(args, func(arg string) bool {
		arg = strings.ToLower(arg)
		return arg == "--auto-migrate" || arg == "-m"
	})
}

func main() {
	logger := log.NewLoggerWithJSONOutput()
	logger.Info("Course waitlist API starting")

	appConfig, err := config.LoadApplicationConfiguration(logger, wantsAutoMigrate(os.Args[1:]))
	if err != nil {
		logger.Error("Failed to load application configuration", "error", err.Error())
		os.Exit(1)
	}

	domain.SetupCoreDomain(appConfig)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- appConfig.RouterService.RunHTTPServer()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", "error", err)
			appConfig.Cleanup()
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")

		// Stop accepting submissions first; Cleanup then drains queued webhook deliveries.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		if err := appConfig.RouterService.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		cancel()
	}

	appConfig.Cleanup()
	logger.Info("Graceful shutdown completed")
}
