package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/target/mmk-jobqueue/internal/bootstrap"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/taskqueue"
)

const execPollInterval = 50 * time.Millisecond

type execOptions struct {
	OwnerID string
	Type    string
	Payload string
	Timeout time.Duration
}

func parseExecFlags(args []string, defaultTimeout time.Duration) (execOptions, error) {
	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := execOptions{Timeout: defaultTimeout}
	fs.StringVar(&opts.OwnerID, "owner", "admin", "Owner id passed to the processor")
	fs.StringVar(&opts.Type, "type", "", "Job type, e.g. echo or extract")
	fs.StringVar(&opts.Payload, "payload", "", "JSON payload; '-' reads it from stdin")
	fs.DurationVar(&opts.Timeout, "timeout", defaultTimeout, "Per-job execution timeout")

	if err := fs.Parse(args); err != nil {
		return execOptions{}, err
	}
	opts.Type = strings.TrimSpace(opts.Type)
	switch {
	case opts.Type == "":
		return execOptions{}, errors.New("--type is required")
	case opts.Payload == "":
		return execOptions{}, errors.New("--payload is required")
	case opts.Timeout <= 0:
		return execOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

// runExec runs a single job through an in-process queue with the configured processors.
// Nothing is written to Postgres.
func runExec(cmdCtx *commandContext, args []string) error {
	opts, err := parseExecFlags(args, cmdCtx.Config.LocalQueue.Timeout)
	if err != nil {
		return err
	}
	payload, err := readPayload(opts.Payload, os.Stdin)
	if err != nil {
		return err
	}

	processors, err := bootstrap.BuildProcessors(cmdCtx.Ctx, cmdCtx.Config.Generation, cmdCtx.Logger)
	if err != nil {
		return err
	}
	queue, err := taskqueue.New(taskqueue.Options{
		Processors:  processors,
		Concurrency: 1,
		Timeout:     opts.Timeout,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmdCtx.Ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- queue.Run(ctx) }()

	j, err := queue.Enqueue("", opts.OwnerID, taskqueue.Data{
		Type:    model.JobType(strings.ToLower(opts.Type)),
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}

	final, err := waitForTerminal(ctx, queue, j.ID)
	cancel()
	if stopErr := <-runErr; stopErr != nil {
		err = errors.Join(err, stopErr)
	}
	if err != nil {
		return err
	}

	if printErr := printJSON(cmdCtx.Out, final.StatusResponse()); printErr != nil {
		return printErr
	}
	if final.Status == model.JobStatusFailed {
		return errors.New("job failed")
	}
	return nil
}

func waitForTerminal(ctx context.Context, queue *taskqueue.Queue, id string) (model.Job, error) {
	ticker := time.NewTicker(execPollInterval)
	defer ticker.Stop()
	for {
		j, ok := queue.GetJob(id)
		if !ok {
			return model.Job{}, fmt.Errorf("job %s disappeared from the queue", id)
		}
		if j.Status.IsTerminal() {
			return j, nil
		}
		select {
		case <-ctx.Done():
			return model.Job{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
