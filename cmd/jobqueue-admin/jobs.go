package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/mmk-jobqueue/internal/bootstrap"
	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/data"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/service"
)

const defaultListLimit = 50

type enqueueOptions struct {
	ID      string
	OwnerID string
	Type    string
	Payload string
}

func parseEnqueueFlags(args []string) (enqueueOptions, error) {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts enqueueOptions
	fs.StringVar(&opts.ID, "id", "", "Job id (generated when empty)")
	fs.StringVar(&opts.OwnerID, "owner", "", "Owner id of the submitting principal")
	fs.StringVar(&opts.Type, "type", "", "Job type, e.g. echo or product_description")
	fs.StringVar(&opts.Payload, "payload", "", "JSON payload; '-' reads it from stdin")

	if err := fs.Parse(args); err != nil {
		return enqueueOptions{}, err
	}
	opts.OwnerID = strings.TrimSpace(opts.OwnerID)
	opts.Type = strings.TrimSpace(opts.Type)
	switch {
	case opts.OwnerID == "":
		return enqueueOptions{}, errors.New("--owner is required")
	case opts.Type == "":
		return enqueueOptions{}, errors.New("--type is required")
	case opts.Payload == "":
		return enqueueOptions{}, errors.New("--payload is required")
	}
	return opts, nil
}

func readPayload(raw string, stdin io.Reader) (json.RawMessage, error) {
	if raw == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read payload from stdin: %w", err)
		}
		raw = string(b)
	}
	raw = strings.TrimSpace(raw)
	if !json.Valid([]byte(raw)) {
		return nil, errors.New("payload must be valid JSON")
	}
	return json.RawMessage(raw), nil
}

func runEnqueue(cmdCtx *commandContext, args []string) error {
	opts, err := parseEnqueueFlags(args)
	if err != nil {
		return err
	}
	payload, err := readPayload(opts.Payload, os.Stdin)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, func(db *sql.DB) error {
		jobs := service.MustNewJobService(service.JobServiceOptions{
			Repo:   data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}),
			Logger: cmdCtx.Logger,
		})
		j, enqueueErr := jobs.Enqueue(cmdCtx.Ctx, model.CreateJobRequest{
			ID:      opts.ID,
			OwnerID: opts.OwnerID,
			Type:    model.JobType(opts.Type),
			Payload: payload,
		})
		if enqueueErr != nil {
			return fmt.Errorf("enqueue: %w", enqueueErr)
		}
		return writeln(cmdCtx.Out, j.ID)
	})
}

func runStatus(cmdCtx *commandContext, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return errors.New("usage: jobqueue-admin status <job-id>")
	}
	id := strings.TrimSpace(args[0])

	redisClient, err := bootstrap.MaybeConnectRedis(bootstrap.DatabaseConfig{
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var statusCache *core.JobStatusCache
	if redisClient != nil {
		defer func() {
			if closeErr := redisClient.Close(); closeErr != nil {
				cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
			}
		}()
		statusCache = core.NewJobStatusCache(
			data.NewRedisCacheRepo(redisClient, cmdCtx.Config.Redis.KeyPrefix),
			core.JobStatusCacheConfig{TTL: cmdCtx.Config.StatusCache.TTL},
		)
	}

	return withDatabase(cmdCtx, func(db *sql.DB) error {
		jobs := service.MustNewJobService(service.JobServiceOptions{
			Repo:        data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}),
			StatusCache: statusCache,
			Logger:      cmdCtx.Logger,
		})
		resp, statusErr := jobs.Status(cmdCtx.Ctx, id)
		if errors.Is(statusErr, data.ErrJobNotFound) {
			return fmt.Errorf("job %s not found", id)
		}
		if statusErr != nil {
			return fmt.Errorf("get status: %w", statusErr)
		}
		return printJSON(cmdCtx.Out, resp)
	})
}

type listOptions struct {
	OwnerID string
	Status  string
	Type    string
	Limit   int
	Offset  int
}

func parseListFlags(args []string) (model.JobListOptions, error) {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var raw listOptions
	fs.StringVar(&raw.OwnerID, "owner", "", "Only jobs submitted by this owner")
	fs.StringVar(&raw.Status, "status", "", "Only jobs in this status (queued, processing, done, failed)")
	fs.StringVar(&raw.Type, "type", "", "Only jobs of this type")
	fs.IntVar(&raw.Limit, "limit", defaultListLimit, "Maximum number of jobs to show")
	fs.IntVar(&raw.Offset, "offset", 0, "Number of jobs to skip")

	if err := fs.Parse(args); err != nil {
		return model.JobListOptions{}, err
	}
	if raw.Limit <= 0 {
		return model.JobListOptions{}, errors.New("--limit must be greater than zero")
	}
	if raw.Offset < 0 {
		return model.JobListOptions{}, errors.New("--offset must not be negative")
	}

	opts := model.JobListOptions{
		OwnerID: strings.TrimSpace(raw.OwnerID),
		Limit:   raw.Limit,
		Offset:  raw.Offset,
	}
	if s := strings.TrimSpace(raw.Status); s != "" {
		status, err := model.ParseJobStatus(s)
		if err != nil {
			return model.JobListOptions{}, err
		}
		opts.Status = &status
	}
	if t := strings.TrimSpace(raw.Type); t != "" {
		jt := model.JobType(strings.ToLower(t))
		if !jt.Valid() {
			return model.JobListOptions{}, fmt.Errorf("invalid job type %q", t)
		}
		opts.Type = &jt
	}
	return opts, nil
}

func runList(cmdCtx *commandContext, args []string) error {
	opts, err := parseListFlags(args)
	if err != nil {
		return err
	}
	return withDatabase(cmdCtx, func(db *sql.DB) error {
		repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
		jobs, listErr := repo.List(cmdCtx.Ctx, opts)
		if listErr != nil {
			return fmt.Errorf("list jobs: %w", listErr)
		}
		return printJobs(cmdCtx.Out, jobs)
	})
}

func printJobs(out io.Writer, jobs []*model.Job) error {
	if len(jobs) == 0 {
		return writeln(out, "no jobs found")
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tOWNER\tTYPE\tSTATUS\tCREATED\tCOMPLETED\tERROR"); err != nil {
		return fmt.Errorf("write jobs header: %w", err)
	}
	for _, j := range jobs {
		completed := "-"
		if j.CompletedAt != nil {
			completed = j.CompletedAt.UTC().Format(time.RFC3339)
		}
		errMsg := "-"
		if j.Error != nil && *j.Error != "" {
			errMsg = truncate(*j.Error, 60)
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			j.ID, j.OwnerID, j.Type, j.Status,
			j.CreatedAt.UTC().Format(time.RFC3339), completed, errMsg,
		); err != nil {
			return fmt.Errorf("write job %s: %w", j.ID, err)
		}
	}
	return tw.Flush()
}

func runStats(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	owner := fs.String("owner", "", "Only count jobs submitted by this owner")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withDatabase(cmdCtx, func(db *sql.DB) error {
		jobs := service.MustNewJobService(service.JobServiceOptions{
			Repo:   data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}),
			Logger: cmdCtx.Logger,
		})
		stats, statsErr := jobs.Stats(cmdCtx.Ctx, strings.TrimSpace(*owner))
		if statsErr != nil {
			return fmt.Errorf("job stats: %w", statsErr)
		}
		return printStats(cmdCtx.Out, stats)
	})
}

func printStats(out io.Writer, stats *model.JobStats) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	rows := []struct {
		label string
		n     int
	}{
		{"queued", stats.Queued},
		{"processing", stats.Processing},
		{"done", stats.Done},
		{"failed", stats.Failed},
	}
	if err := writeln(tw, "STATUS\tCOUNT"); err != nil {
		return fmt.Errorf("write stats header: %w", err)
	}
	for _, row := range rows {
		if err := writef(tw, "%s\t%d\n", row.label, row.n); err != nil {
			return fmt.Errorf("write stats row %s: %w", row.label, err)
		}
	}
	return tw.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
