package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/crosspost-labs/crosspost/internal/models"
)

type CredentialRepository interface {
	Upsert(ctx context.Context, c *models.Credential) (int64, error)
	GetByAccountProvider(ctx context.Context, accountID int64, providerName string) (*models.Credential, error)
	ListExpiringBefore(ctx context.Context, deadline time.Time) ([]*models.Credential, error)
	UpdateTokens(ctx context.Context, accountID int64, providerName string, c *models.Credential) error
	MarkRevoked(ctx context.Context, accountID int64, providerName, reason string) error
}

type credentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

const credentialColumns = `id, account_id, provider, access_token, refresh_token, token_expires_at,
	scopes, provider_user_id, provider_username, status, connection_error, created_at, updated_at`

// Upsert keeps the (account_id, provider) pair unique. Re-authorization
// replaces the tokens and clears any quarantine.
func (r *credentialRepository) Upsert(ctx context.Context, c *models.Credential) (int64, error) {
	query := `
		INSERT INTO oauth_credentials (
			account_id,
			provider,
			access_token,
			refresh_token,
			token_expires_at,
			scopes,
			provider_user_id,
			provider_username,
			status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'active')
		ON CONFLICT (account_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			scopes = EXCLUDED.scopes,
			provider_user_id = EXCLUDED.provider_user_id,
			provider_username = EXCLUDED.provider_username,
			status = 'active',
			connection_error = '',
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		c.AccountID,
		c.Provider,
		c.AccessToken,
		c.RefreshToken,
		c.TokenExpiresAt,
		c.Scopes,
		c.ProviderUserID,
		c.ProviderUsername,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *credentialRepository) GetByAccountProvider(ctx context.Context, accountID int64, providerName string) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM oauth_credentials WHERE account_id = $1 AND provider = $2`
	row := r.db.QueryRowContext(ctx, query, accountID, providerName)

	var c models.Credential
	err := row.Scan(&c.ID, &c.AccountID, &c.Provider, &c.AccessToken, &c.RefreshToken, &c.TokenExpiresAt,
		&c.Scopes, &c.ProviderUserID, &c.ProviderUsername, &c.Status, &c.ConnectionError, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &c, nil
}

func (r *credentialRepository) ListExpiringBefore(ctx context.Context, deadline time.Time) ([]*models.Credential, error) {
	query := `SELECT ` + credentialColumns + `
		FROM oauth_credentials
		WHERE status = 'active' AND token_expires_at <= $1`
	rows, err := r.db.QueryContext(ctx, query, deadline)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var credentials []*models.Credential
	for rows.Next() {
		var c models.Credential
		err := rows.Scan(&c.ID, &c.AccountID, &c.Provider, &c.AccessToken, &c.RefreshToken, &c.TokenExpiresAt,
			&c.Scopes, &c.ProviderUserID, &c.ProviderUsername, &c.Status, &c.ConnectionError, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		credentials = append(credentials, &c)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return credentials, nil
}

// UpdateTokens replaces the access token after a refresh. The refresh token
// is only replaced when the provider rotated it.
func (r *credentialRepository) UpdateTokens(ctx context.Context, accountID int64, providerName string, c *models.Credential) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	query := `
		UPDATE oauth_credentials
		SET
			access_token = $3,
			refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
			token_expires_at = $5,
			connection_error = '',
			updated_at = CURRENT_TIMESTAMP
		WHERE account_id = $1 AND provider = $2
	`
	result, err := tx.ExecContext(ctx, query, accountID, providerName, c.AccessToken, c.RefreshToken, c.TokenExpiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info("no credential row to update")
		return sql.ErrNoRows
	}

	return tx.Commit()
}

func (r *credentialRepository) MarkRevoked(ctx context.Context, accountID int64, providerName, reason string) error {
	query := `
		UPDATE oauth_credentials
		SET status = 'revoked', connection_error = $3, updated_at = CURRENT_TIMESTAMP
		WHERE account_id = $1 AND provider = $2
	`
	_, err := r.db.ExecContext(ctx, query, accountID, providerName, reason)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
