package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/crosspost-labs/crosspost/internal/repository"
)

// StateCleanupJob deletes authorization states whose TTL elapsed without a
// callback. They are pure garbage at that point.
type StateCleanupJob struct {
	states repository.OAuthStateRepository
}

func NewStateCleanupJob(states repository.OAuthStateRepository) *StateCleanupJob {
	return &StateCleanupJob{states: states}
}

func (j *StateCleanupJob) Cleanup() {
	ctx := context.Background()

	deleted, err := j.states.DeleteExpired(ctx, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if deleted > 0 {
		slog.Info("expired authorization states removed", "count", deleted)
	}
}
