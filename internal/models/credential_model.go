package models

import "time"

type Credential struct {
	ID               int64     `db:"id" json:"id"`
	AccountID        int64     `db:"account_id" json:"account_id"`
	Provider         string    `db:"provider" json:"provider"`
	AccessToken      string    `db:"access_token" json:"-"`
	RefreshToken     string    `db:"refresh_token" json:"-"`
	TokenExpiresAt   time.Time `db:"token_expires_at" json:"token_expires_at"`
	Scopes           string    `db:"scopes" json:"scopes"`
	ProviderUserID   string    `db:"provider_user_id" json:"provider_user_id"`
	ProviderUsername string    `db:"provider_username" json:"provider_username"`
	Status           string    `db:"status" json:"status"`
	ConnectionError  string    `db:"connection_error" json:"connection_error,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

const (
	CredentialStatusActive  = "active"
	CredentialStatusRevoked = "revoked"
)
