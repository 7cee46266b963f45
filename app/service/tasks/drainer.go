package tasks

import (
	"context"
	"log/slog"
	"sync"
)

// Drainer executes the pending tasks of one session, one at a time.
//
// At most one pass runs at any moment. Drain blocks until no pending task is left;
// Trigger schedules the same work in the background and coalesces with a trigger
// that is already waiting to run.
type Drainer struct {
	svc     *Service
	ledger  Ledger
	speaker Speaker
	email   string

	pass sync.Mutex

	mu        sync.Mutex
	scheduled bool
	wg        sync.WaitGroup
}

func (d *Drainer) Drain(ctx context.Context) Report {
	d.pass.Lock()
	defer d.pass.Unlock()

	return d.drainLocked(ctx)
}

func (d *Drainer) Trigger(ctx context.Context) {
	d.mu.Lock()
	if d.scheduled {
		d.mu.Unlock()
		return
	}
	d.scheduled = true
	d.mu.Unlock()

	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		d.pass.Lock()
		defer d.pass.Unlock()

		// a trigger from here on needs a follow-up pass
		d.mu.Lock()
		d.scheduled = false
		d.mu.Unlock()

		report := d.drainLocked(ctx)
		if len(report.Messages) > 0 {
			slog.Debug("Background drain finished", "messages", len(report.Messages))
		}
	}()
}

// Wait blocks until every triggered drain has returned.
func (d *Drainer) Wait() {
	d.wg.Wait()
}

func (d *Drainer) drainLocked(ctx context.Context) Report {
	var report Report

	for ctx.Err() == nil {
		if d.runPass(ctx, &report) == 0 {
			break
		}
	}

	report.Tasks = d.ledger.Snapshot()

	return report
}

// runPass handles every task that is pending in the current snapshot and
// returns how many it handled. Tasks added meanwhile are left to the next pass.
func (d *Drainer) runPass(ctx context.Context, report *Report) int {
	handled := 0

	for i, task := range d.ledger.Snapshot() {
		if !task.IsPending() {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		status, message := d.svc.execute(ctx, task, d.email)
		report.Messages = append(report.Messages, message)

		if err := d.speaker.Speak(ctx, message); err != nil {
			slog.Warn("Failed to announce task result",
				"task_type", task.Type,
				"error", err,
			)
		}

		d.ledger.Transition(i, status)
		handled++
	}

	return handled
}
