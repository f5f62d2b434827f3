package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/target/mmk-jobqueue/internal/adapters/sweeper"
	"github.com/target/mmk-jobqueue/internal/bootstrap"
	"github.com/target/mmk-jobqueue/internal/data"
	"github.com/target/mmk-jobqueue/internal/migrate"
	"github.com/target/mmk-jobqueue/internal/service"
)

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultSweepTimeout     = 10 * time.Minute
)

type migrateOptions struct {
	Timeout time.Duration
	Status  bool
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{Timeout: defaultMigrationTimeout}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum duration to wait for migrations to complete")
	fs.BoolVar(&opts.Status, "status", false, "List migrations and when they were applied without changing anything")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	return withDatabase(cmdCtx, func(db *sql.DB) error {
		if opts.Status {
			status, statusErr := migrate.Status(ctx, db)
			if statusErr != nil {
				return fmt.Errorf("migration status: %w", statusErr)
			}
			return printMigrationStatus(cmdCtx.Out, status)
		}

		cmdCtx.Logger.Info("running database migrations")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return migrateErr
		}
		cmdCtx.Logger.Info("migrations completed successfully")
		return nil
	})
}

func printMigrationStatus(out io.Writer, status []migrate.Migration) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "VERSION\tAPPLIED AT"); err != nil {
		return fmt.Errorf("write migration header: %w", err)
	}
	for _, m := range status {
		applied := "pending"
		if m.AppliedAt != nil {
			applied = m.AppliedAt.UTC().Format(time.RFC3339)
		}
		if err := writef(tw, "%s\t%s\n", m.Version, applied); err != nil {
			return fmt.Errorf("write migration %s: %w", m.Version, err)
		}
	}
	return tw.Flush()
}

type sweepOptions struct {
	Timeout     time.Duration
	RecoverOnly bool
}

func parseSweepFlags(args []string) (sweepOptions, error) {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := sweepOptions{Timeout: defaultSweepTimeout}
	fs.DurationVar(&opts.Timeout, "timeout", defaultSweepTimeout, "Maximum duration of the sweep")
	fs.BoolVar(&opts.RecoverOnly, "recover-only", false, "Only recover stale processing jobs; skip retention deletes")

	if err := fs.Parse(args); err != nil {
		return sweepOptions{}, err
	}
	if opts.Timeout <= 0 {
		return sweepOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func runSweep(cmdCtx *commandContext, args []string) error {
	opts, err := parseSweepFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	return withDatabase(cmdCtx, func(db *sql.DB) error {
		limits, limitsErr := service.NewConfigCache(service.ConfigCacheOptions{
			Repo:   data.NewLimitsRepo(db, nil),
			Logger: cmdCtx.Logger,
		})
		if limitsErr != nil {
			return limitsErr
		}
		runner, runnerErr := sweeper.NewRunner(sweeper.RunnerOptions{
			DB:     db,
			Config: cmdCtx.Config.Sweeper,
			Logger: cmdCtx.Logger,
			Limits: limits,
		})
		if runnerErr != nil {
			return runnerErr
		}

		if opts.RecoverOnly {
			n, sweepErr := runner.Service().Sweep(ctx)
			if sweepErr != nil {
				return fmt.Errorf("recover stale jobs: %w", sweepErr)
			}
			return writef(cmdCtx.Out, "recovered %d stale job(s) (mode %s)\n", n, cmdCtx.Config.Sweeper.RecoveryMode)
		}

		if sweepErr := runner.Service().RunOnce(ctx); sweepErr != nil {
			return fmt.Errorf("sweep: %w", sweepErr)
		}
		return writeln(cmdCtx.Out, "sweep completed")
	})
}
