package models

import "time"

// AuthorizationState binds an OAuth state token to the account and provider
// that started the flow. Single use; garbage after ExpiresAt.
type AuthorizationState struct {
	State        string    `db:"state_token"`
	Provider     string    `db:"provider"`
	AccountID    int64     `db:"account_id"`
	CodeVerifier string    `db:"code_verifier"`
	CreatedAt    time.Time `db:"created_at"`
	ExpiresAt    time.Time `db:"expires_at"`
	Used         bool      `db:"used"`
}
