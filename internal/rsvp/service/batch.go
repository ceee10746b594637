package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"rsvp-bot/internal/rsvp/domain"
)

// openConcurrency bounds concurrent OpenWindow calls in OpenAll.
const openConcurrency = 8

// BatchResult counts the outcome of OpenAll.
type BatchResult struct {
	Total       int
	Invited     int // awaiting and the invitation was delivered
	Undelivered int // awaiting but the invitation did not reach the chat
	Skipped     int // already confirmed or declined
	Failed      int // the registration could not be opened
}

// OpenAll opens the RSVP window with deadline for every registration. Per-registration failures are
// counted, not returned; the error is non-nil only when the registrations cannot be listed or ctx ends.
func (c *Controller) OpenAll(ctx context.Context, deadline time.Time) (BatchResult, error) {
	regs, err := c.regs.List(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("open all: %w", err)
	}
	var (
		mu  sync.Mutex
		res = BatchResult{Total: len(regs)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(openConcurrency)
	for _, reg := range regs {
		id := reg.ID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := c.OpenWindow(gctx, id, deadline)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				c.logger.Error("rsvp: open window failed", "registration_id", id, "error", err)
				res.Failed++
			case out.Skipped:
				res.Skipped++
			case out.Invited:
				res.Invited++
			default:
				res.Undelivered++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("open all: %w", err)
	}
	return res, nil
}

// Stats is a snapshot of RSVP state.
type Stats struct {
	Capacity   int
	Confirmed  int
	Waitlisted int
	ByStatus   map[domain.Status]int
}

// Stats returns current counts per status.
func (c *Controller) Stats(ctx context.Context) (Stats, error) {
	counts, err := c.store.CountByStatus(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("rsvp stats: %w", err)
	}
	return Stats{
		Capacity:   c.capacity,
		Confirmed:  counts[domain.StatusConfirmed],
		Waitlisted: counts[domain.StatusWaitlisted],
		ByStatus:   counts,
	}, nil
}

// Records returns every RSVP record keyed by registration id.
func (c *Controller) Records(ctx context.Context) (map[string]*domain.Record, error) {
	list, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("rsvp records: %w", err)
	}
	out := make(map[string]*domain.Record, len(list))
	for _, r := range list {
		out[r.RegistrationID] = r
	}
	return out, nil
}
