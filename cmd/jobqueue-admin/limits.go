package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/mmk-jobqueue/internal/data"
	"github.com/target/mmk-jobqueue/internal/domain/model"
)

const limitsUsage = "usage: jobqueue-admin limits list | get <key> | set <key> <value>"

type limitsAction struct {
	verb  string
	key   string
	value int64
}

func parseLimitsArgs(args []string) (limitsAction, error) {
	if len(args) == 0 {
		return limitsAction{verb: "list"}, nil
	}
	action := limitsAction{verb: strings.ToLower(args[0])}
	switch action.verb {
	case "list":
		if len(args) != 1 {
			return limitsAction{}, errors.New(limitsUsage)
		}
	case "get":
		if len(args) != 2 {
			return limitsAction{}, errors.New(limitsUsage)
		}
		action.key = strings.TrimSpace(args[1])
	case "set":
		if len(args) != 3 {
			return limitsAction{}, errors.New(limitsUsage)
		}
		action.key = strings.TrimSpace(args[1])
		v, err := strconv.ParseInt(strings.TrimSpace(args[2]), 10, 64)
		if err != nil {
			return limitsAction{}, fmt.Errorf("value must be an integer: %w", err)
		}
		if v < 0 {
			return limitsAction{}, errors.New("value must not be negative")
		}
		action.value = v
	default:
		return limitsAction{}, errors.New(limitsUsage)
	}
	if action.verb != "list" && action.key == "" {
		return limitsAction{}, errors.New("limit key is required")
	}
	return action, nil
}

func runLimits(cmdCtx *commandContext, args []string) error {
	action, err := parseLimitsArgs(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, func(db *sql.DB) error {
		repo := data.NewLimitsRepo(db, nil)
		switch action.verb {
		case "get":
			v, getErr := repo.GetInt(cmdCtx.Ctx, action.key)
			if errors.Is(getErr, data.ErrLimitNotFound) {
				return fmt.Errorf("limit %s is not set", action.key)
			}
			if getErr != nil {
				return getErr
			}
			return writef(cmdCtx.Out, "%s=%d\n", action.key, v)
		case "set":
			if setErr := repo.Set(cmdCtx.Ctx, action.key, action.value); setErr != nil {
				return setErr
			}
			cmdCtx.Logger.InfoContext(cmdCtx.Ctx, "limit updated", "key", action.key, "value", action.value)
			// Running processes pick the change up when their config cache entry expires.
			return writef(cmdCtx.Out, "%s=%d (effective within %s)\n",
				action.key, action.value, cmdCtx.Config.ConfigCache.TTL)
		default:
			limits, listErr := repo.List(cmdCtx.Ctx)
			if listErr != nil {
				return listErr
			}
			return printLimits(cmdCtx.Out, limits)
		}
	})
}

func printLimits(out io.Writer, limits []model.Limit) error {
	if len(limits) == 0 {
		return writeln(out, "no limits set")
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "KEY\tVALUE\tUPDATED"); err != nil {
		return fmt.Errorf("write limits header: %w", err)
	}
	for _, l := range limits {
		if err := writef(tw, "%s\t%d\t%s\n", l.Key, l.Value, l.UpdatedAt.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("write limit %s: %w", l.Key, err)
		}
	}
	return tw.Flush()
}
