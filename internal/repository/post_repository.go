package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/crosspost-labs/crosspost/internal/models"
)

type PostRepository interface {
	Create(ctx context.Context, post *models.ScheduledPost) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error)
	ListByAccount(ctx context.Context, accountID int64) ([]*models.ScheduledPost, error)
	// ListDuePending returns pending posts with publish_at <= now, oldest
	// publish time first, at most limit rows.
	ListDuePending(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error)
	CountByStatus(ctx context.Context, status string) (int, error)
	// MarkInFlight only succeeds while the post is still pending, so two
	// dispatcher ticks cannot both claim it.
	MarkInFlight(ctx context.Context, id int64) (bool, error)
	// MarkPublished and MarkFailed record the provider's terminal outcome.
	// A cancellation that raced the provider call loses to them; only
	// non-terminal outcomes (Requeue) leave the cancellation standing.
	MarkPublished(ctx context.Context, id int64, remotePostID string) error
	// Requeue moves an in-flight post back to pending with a new publish
	// time. Attempts are counted at claim time by MarkInFlight.
	Requeue(ctx context.Context, id int64, publishAt time.Time, lastError string) error
	// Reschedule moves a still-pending post's publish time without touching
	// the attempt counter (local rate-limit rejections are not attempts).
	Reschedule(ctx context.Context, id int64, publishAt time.Time) error
	MarkFailed(ctx context.Context, id int64, lastError string) error
	// Cancel flips any non-terminal post to cancelled.
	Cancel(ctx context.Context, id int64) (bool, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, account_id, provider, caption, image_url, publish_at, status,
	attempts, last_error, remote_post_id, created_at, updated_at`

func scanPost(row interface{ Scan(...interface{}) error }) (*models.ScheduledPost, error) {
	var p models.ScheduledPost
	err := row.Scan(&p.ID, &p.AccountID, &p.Provider, &p.Caption, &p.ImageURL, &p.PublishAt, &p.Status,
		&p.Attempts, &p.LastError, &p.RemotePostID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postRepository) Create(ctx context.Context, post *models.ScheduledPost) (int64, error) {
	query := `
		INSERT INTO scheduled_posts (account_id, provider, caption, image_url, publish_at, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, post.AccountID, post.Provider, post.Caption, post.ImageURL, post.PublishAt).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) ListByAccount(ctx context.Context, accountID int64) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE account_id = $1 ORDER BY publish_at DESC`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return posts, nil
}

func (r *postRepository) ListDuePending(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + `
		FROM scheduled_posts
		WHERE status = 'pending' AND publish_at <= $1
		ORDER BY publish_at ASC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return posts, nil
}

func (r *postRepository) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scheduled_posts WHERE status = $1`, status).Scan(&count)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return count, nil
}

func (r *postRepository) MarkInFlight(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = 'in_flight', attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

// MarkPublished also overrides a cancellation that raced the provider
// call: the provider accepted the post, so the terminal outcome wins.
func (r *postRepository) MarkPublished(ctx context.Context, id int64, remotePostID string) error {
	query := `
		UPDATE scheduled_posts
		SET status = 'published', remote_post_id = $2, last_error = '', updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status IN ('in_flight', 'cancelled')
	`
	_, err := r.db.ExecContext(ctx, query, id, remotePostID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) Requeue(ctx context.Context, id int64, publishAt time.Time, lastError string) error {
	query := `
		UPDATE scheduled_posts
		SET status = 'pending', publish_at = $2, last_error = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'in_flight'
	`
	_, err := r.db.ExecContext(ctx, query, id, publishAt, lastError)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) Reschedule(ctx context.Context, id int64, publishAt time.Time) error {
	query := `
		UPDATE scheduled_posts
		SET publish_at = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'pending'
	`
	_, err := r.db.ExecContext(ctx, query, id, publishAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// MarkFailed, like MarkPublished, overrides a racing cancellation.
func (r *postRepository) MarkFailed(ctx context.Context, id int64, lastError string) error {
	query := `
		UPDATE scheduled_posts
		SET status = 'failed', last_error = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status IN ('in_flight', 'cancelled')
	`
	_, err := r.db.ExecContext(ctx, query, id, lastError)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) Cancel(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status NOT IN ('published', 'failed', 'cancelled')
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}
