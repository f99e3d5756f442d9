package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/akeren/course-waitlist-api/config"
	"github.com/akeren/course-waitlist-api/internal/log"
	sqlmigrations "github.com/akeren/course-waitlist-api/migrations"
	"github.com/akeren/course-waitlist-api/pkg/migrations"
	"github.com/akeren/course-waitlist-api/pkg/utils"
)

const migrateTimeout = 5 * time.Minute

func main() {
	logger := log.NewLoggerWithJSONOutput()
	config.InitializeEnvFile(logger)

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "migrate":
		if err := runMigrate(logger, args[1:]); err != nil {
			logger.Error("Migration command failed", "error", err.Error())
			os.Exit(1)
		}
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func runMigrate(logger *log.Logger, args []string) error {
	action := "up"
	if len(args) > 0 {
		action = args[0]
	}

	steps := 1
	if action == "down" && len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return fmt.Errorf("down expects a positive step count, got %q", args[1])
		}
		steps = n
	}

	db, err := config.NewDatabase(logger, &config.DBConfig{})
	if err != nil {
		return err
	}
	defer config.CloseDatabase(db, logger)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}

	// The binary ships its migrations; MIGRATIONS_DIR points at a checkout instead.
	var source fs.FS = sqlmigrations.FS
	if dir := utils.GetEnvTrimmed("MIGRATIONS_DIR"); dir != "" {
		logger.Info("Using migrations from directory", "dir", dir)
		source = os.DirFS(dir)
	}

	runner, err := migrations.Open(sqlDB, migrations.Config{FS: source, Logger: logger})
	if err != nil {
		return err
	}
	defer runner.Close()

	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	switch action {
	case "up":
		return runner.Up(ctx)
	case "down":
		return runner.Down(ctx, steps)
	case "version":
		version, dirty, err := runner.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}
}

func printUsage() {
	fmt.Println("Usage: cli <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  migrate [up]      Apply pending waitlist schema migrations")
	fmt.Println("  migrate down [n]  Revert the last n migrations (default 1)")
	fmt.Println("  migrate version   Print the current schema version")
	fmt.Println("  help              Show this message")
	fmt.Println()
	fmt.Println("MIGRATIONS_DIR overrides the embedded migration set.")
}
