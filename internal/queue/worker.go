package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/crosspost-labs/crosspost/internal/models"
	"github.com/crosspost-labs/crosspost/internal/provider"
	"github.com/crosspost-labs/crosspost/internal/repository"
	"github.com/crosspost-labs/crosspost/internal/service"
	"github.com/crosspost-labs/crosspost/pkg/utils"
	"github.com/hibiken/asynq"
)

// Worker executes one claimed post per task. Retry scheduling is owned
// here, not by asynq: a transient failure requeues the post with backoff
// and the next dispatcher tick picks it up again.
type Worker struct {
	pr          repository.PostRepository
	creds       service.CredentialService
	providers   provider.Registry
	maxAttempts int
	backoffBase time.Duration

	now func() time.Time
}

func NewWorker(
	pr repository.PostRepository,
	creds service.CredentialService,
	providers provider.Registry,
	maxAttempts int,
	backoffBase time.Duration) *Worker {
	return &Worker{
		pr:          pr,
		creds:       creds,
		providers:   providers,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		now:         time.Now,
	}
}

func (w *Worker) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	// Always return nil: outcome bookkeeping lives in our own tables and
	// asynq-level retries would double-publish.
	if err := w.Publish(ctx, payload.PostID); err != nil {
		slog.Info("publish task error", "post_id", payload.PostID, "error", err)
	}
	return nil
}

// Publish performs the provider call for one in-flight post and persists
// the outcome before returning, releasing the concurrency slot. A crash
// after the provider accepted the post but before the status write can
// produce a duplicate on retry: delivery is at-least-once.
func (w *Worker) Publish(ctx context.Context, postID int64) error {
	post, err := w.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		slog.Info("post vanished before publish", "post_id", postID)
		return nil
	}
	if post.Status != models.PostStatusInFlight {
		// Cancelled (or otherwise resolved) between claim and execution.
		slog.Info("skipping post no longer in flight", "post_id", postID, "status", post.Status)
		return nil
	}

	cred, err := w.creds.GetValid(ctx, post.AccountID, post.Provider)
	if err != nil {
		w.recordFailure(ctx, post, err)
		return nil
	}

	adapter, err := w.providers.Get(post.Provider)
	if err != nil {
		w.recordFailure(ctx, post, &provider.PermanentError{Provider: post.Provider, Err: err})
		return nil
	}

	result, err := adapter.Publish(ctx, cred.AccessToken, &provider.PublishRequest{
		Caption:  post.Caption,
		ImageURL: post.ImageURL,
	})
	if err != nil {
		w.recordFailure(ctx, post, err)
		return nil
	}

	// The provider accepted the post, so the terminal outcome overrides a
	// cancellation that landed while the call was in the air.
	if err := w.pr.MarkPublished(ctx, post.ID, result.RemotePostID); err != nil {
		return err
	}

	slog.Info("post published", "post_id", post.ID, "provider", post.Provider, "remote_post_id", result.RemotePostID)
	return nil
}

func (w *Worker) recordFailure(ctx context.Context, post *models.ScheduledPost, cause error) {
	switch {
	case provider.IsAuthError(cause):
		// Not retryable without user interaction; quarantine the credential
		// so the supervisor stops refreshing it too.
		if err := w.creds.MarkRevoked(ctx, post.AccountID, post.Provider, cause.Error()); err != nil {
			slog.Info(err.Error())
		}
		w.fail(ctx, post, cause)

	case provider.IsTransient(cause):
		if post.Attempts >= w.maxAttempts {
			w.fail(ctx, post, cause)
			return
		}
		delay := utils.BackoffDelay(w.backoffBase, post.Attempts)
		if suggested := provider.RetryAfterOf(cause); suggested > delay {
			delay = suggested
		}
		slog.Info("transient publish failure, requeueing",
			"post_id", post.ID,
			"attempt", post.Attempts,
			"delay", delay)
		if err := w.pr.Requeue(ctx, post.ID, w.now().Add(delay), cause.Error()); err != nil {
			slog.Info(err.Error())
		}

	default:
		w.fail(ctx, post, cause)
	}
}

func (w *Worker) fail(ctx context.Context, post *models.ScheduledPost, cause error) {
	slog.Info("post failed", "post_id", post.ID, "provider", post.Provider, "error", cause)
	if err := w.pr.MarkFailed(ctx, post.ID, cause.Error()); err != nil {
		slog.Info(err.Error())
	}
}
