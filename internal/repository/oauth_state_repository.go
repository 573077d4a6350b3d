package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/crosspost-labs/crosspost/internal/models"
)

type OAuthStateRepository interface {
	Create(ctx context.Context, state *models.AuthorizationState) error
	// Consume atomically marks the state used and returns it. A second call
	// for the same token, or a token never issued, returns nil.
	Consume(ctx context.Context, state string) (*models.AuthorizationState, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type oauthStateRepository struct {
	db *sql.DB
}

func NewOAuthStateRepository(db *sql.DB) OAuthStateRepository {
	return &oauthStateRepository{db: db}
}

func (r *oauthStateRepository) Create(ctx context.Context, state *models.AuthorizationState) error {
	query := `
		INSERT INTO oauth_states (state_token, provider, account_id, code_verifier, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, state.State, state.Provider, state.AccountID, state.CodeVerifier, state.ExpiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *oauthStateRepository) Consume(ctx context.Context, state string) (*models.AuthorizationState, error) {
	// Single-statement flip so two concurrent callbacks cannot both win.
	query := `
		UPDATE oauth_states
		SET used = true
		WHERE state_token = $1 AND used = false
		RETURNING state_token, provider, account_id, code_verifier, created_at, expires_at
	`
	row := r.db.QueryRowContext(ctx, query, state)

	var s models.AuthorizationState
	err := row.Scan(&s.State, &s.Provider, &s.AccountID, &s.CodeVerifier, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	s.Used = true

	return &s, nil
}

func (r *oauthStateRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at < $1`, before)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return result.RowsAffected()
}
