package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/crosspost-labs/crosspost/internal/models"
	"github.com/crosspost-labs/crosspost/internal/ratelimit"
	"github.com/crosspost-labs/crosspost/internal/repository"
)

// Dispatcher is the scheduling side of the post pipeline. Each tick selects
// due pending posts in publish-time order, bounded by free capacity, admits
// them against the rate limiter and claims them for the worker pool.
// Completion order is unconstrained.
type Dispatcher struct {
	pr          repository.PostRepository
	ar          repository.AccountRepository
	limiter     *ratelimit.Limiter
	enq         Enqueuer
	concurrency int

	now func() time.Time
}

func NewDispatcher(
	pr repository.PostRepository,
	ar repository.AccountRepository,
	limiter *ratelimit.Limiter,
	enq Enqueuer,
	concurrency int) *Dispatcher {
	return &Dispatcher{
		pr:          pr,
		ar:          ar,
		limiter:     limiter,
		enq:         enq,
		concurrency: concurrency,
		now:         time.Now,
	}
}

func (d *Dispatcher) Tick() {
	ctx := context.Background()
	now := d.now()

	inFlight, err := d.pr.CountByStatus(ctx, models.PostStatusInFlight)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	slots := d.concurrency - inFlight
	if slots <= 0 {
		return
	}

	posts, err := d.pr.ListDuePending(ctx, now, slots)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	for _, post := range posts {
		d.dispatch(ctx, post, now)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, post *models.ScheduledPost, now time.Time) {
	account, err := d.ar.GetByID(ctx, post.AccountID)
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if account == nil || !account.IsActive {
		// Cancel rather than fail: the post itself is fine, the account is
		// turned off.
		if _, err := d.pr.Cancel(ctx, post.ID); err != nil {
			slog.Info(err.Error())
		}
		return
	}

	decision := d.limiter.TryAdmit(post.AccountID, post.Provider)
	if !decision.Admitted {
		slog.Info("publish postponed by rate limit",
			"post_id", post.ID,
			"reason", decision.Reason,
			"retry_after", decision.RetryAfter)
		if err := d.pr.Reschedule(ctx, post.ID, now.Add(decision.RetryAfter)); err != nil {
			slog.Info(err.Error())
		}
		return
	}

	claimed, err := d.pr.MarkInFlight(ctx, post.ID)
	if err != nil {
		d.limiter.Release(post.AccountID, post.Provider)
		slog.Info(err.Error())
		return
	}
	if !claimed {
		// Cancelled or claimed since selection. No attempt happens, so the
		// admitted slot goes back to the budget.
		d.limiter.Release(post.AccountID, post.Provider)
		return
	}

	if err := d.enq.Enqueue(PublishPostPayload{PostID: post.ID}); err != nil {
		slog.Info("enqueue failed, requeueing post", "post_id", post.ID, "error", err)
		d.limiter.Release(post.AccountID, post.Provider)
		if err := d.pr.Requeue(ctx, post.ID, now, "enqueue failed: "+err.Error()); err != nil {
			slog.Info(err.Error())
		}
	}
}
