package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/crosspost-labs/crosspost/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	SetPrimary(ctx context.Context, id int64) error
	SetActive(ctx context.Context, id int64, active bool) error
}

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) (int64, error) {
	query := `
		INSERT INTO accounts (name, is_active, is_primary)
		VALUES ($1, $2, false)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, account.Name, account.IsActive).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT id, name, is_active, is_primary, created_at, updated_at FROM accounts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var a models.Account
	err := row.Scan(&a.ID, &a.Name, &a.IsActive, &a.IsPrimary, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &a, nil
}

func (r *accountRepository) List(ctx context.Context) ([]*models.Account, error) {
	query := `SELECT id, name, is_active, is_primary, created_at, updated_at FROM accounts ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var a models.Account
		err := rows.Scan(&a.ID, &a.Name, &a.IsActive, &a.IsPrimary, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, &a)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return accounts, nil
}

// SetPrimary flips the primary flag to exactly one row inside a single
// transaction. A CHECK constraint cannot see across rows, so the mutual
// exclusion has to live here.
func (r *accountRepository) SetPrimary(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET is_primary = false WHERE is_primary = true`); err != nil {
		slog.Info(err.Error())
		return err
	}

	result, err := tx.ExecContext(ctx, `UPDATE accounts SET is_primary = true, updated_at = CURRENT_TIMESTAMP WHERE id = $1`, id)
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
		return errors.New("account does not exist")
	}

	return tx.Commit()
}

func (r *accountRepository) SetActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE accounts SET is_active = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, active)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
