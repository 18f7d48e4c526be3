package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

const pruneSchedule = "@daily"

// startJanitor schedules pruning of saves older than retention. A zero retention keeps saves forever.
func startJanitor(store SaveStore, retention time.Duration, schedule string, now func() time.Time) *cron.Cron {
	c := cron.New()
	if retention <= 0 {
		return c
	}

	if _, err := c.AddFunc(schedule, func() {
		pruneSaves(context.Background(), store, now().Add(-retention))
	}); err != nil {
		logError("janitor: schedule prune", err)
		return c
	}
	c.Start()
	logger.Infof("Janitor: pruning saves older than %s (%s)", retention, schedule)
	return c
}

func pruneSaves(ctx context.Context, store SaveStore, cutoff time.Time) {
	n, err := store.PruneBefore(ctx, cutoff)
	if err != nil {
		logError("janitor: prune saves", err)
		return
	}
	logger.Infow("Janitor: pruned saves", "deleted", n, "cutoff", cutoff)
}
