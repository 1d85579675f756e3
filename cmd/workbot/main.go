// Package main provides the workbot CLI: schema initialisation, manual job
// enqueue, and the broker-plus-engine run loop that drives ONT run data
// through staging, analysis, archiving and annotation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/wtsi-npg/workbot/internal/jobstate"
)

const (
	version = "1.0.0-dev"
	name    = "workbot"

	dateOnly = "2006-01-02"
)

// ErrUnknownCommand indicates the first positional argument did not name a
// known subcommand.
var ErrUnknownCommand = errors.New("unknown command")

// ErrMissingArguments indicates a subcommand was invoked without the
// positional arguments it requires.
var ErrMissingArguments = errors.New("missing arguments")

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	startDate := flag.String("start-date", "", "only consider warehouse activity at or after this date (YYYY-MM-DD)")
	workType := flag.String("work-type", "ONTRunData", "work kind the broker pass enqueues")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg := LoadConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if err := run(context.Background(), cfg, logger, args, *startDate, *workType); err != nil {
		logger.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger, args []string, startDate, workType string) error {
	command := args[0]

	if command == "init" {
		return initSchema(logger)
	}

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}

	switch command {
	case "add":
		if len(args) < 3 {
			return fmt.Errorf("%w: add <inputPath> <kind>", ErrMissingArguments)
		}

		return app.Add(ctx, args[1], jobstate.WorkKind(args[2]))
	case "run":
		since, err := parseStartDate(startDate)
		if err != nil {
			return err
		}

		return app.Run(ctx, since, jobstate.WorkKind(workType))
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

func parseStartDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	return time.Parse(dateOnly, value)
}

func printUsage() {
	log.Printf(`%s v%s - WorkBot automation engine CLI

USAGE:
    %s [OPTIONS] COMMAND [ARGS]

COMMANDS:
    init                       Create the job store schema and dictionaries
    add <inputPath> <kind>     Enqueue one job manually and run it to suspension
    run                        Broker discovery pass, then drive every in-progress job

OPTIONS:
    --start-date YYYY-MM-DD    Only consider warehouse activity at or after this date (run)
    --work-type KIND           Work kind the broker pass enqueues (run, default ONTRunData)
    --version                  Show version information

ENVIRONMENT VARIABLES:
    WORKBOT_DATABASE_URL       PostgreSQL connection string for the job store
    WORKBOT_WAREHOUSE_URL      PostgreSQL connection string for the warehouse mirror
    WORKBOT_ARCHIVE_ROOT       Archive collection root jobs archive output under
    WORKBOT_STAGING_ROOT       Local scratch root jobs stage input/output under
    WORKBOT_BATON_EXECUTABLE   baton-do executable (default: baton-do, resolved from PATH)
    WORKBOT_ARCHIVE_ZONE       Archive zone broker metadata queries search (default: empty, the archive's default zone)
    WORKBOT_CONFIG             Path to the work-kind registry YAML file
`, name, version, name)
}
