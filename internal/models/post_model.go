package models

import "time"

type ScheduledPost struct {
	ID           int64     `db:"id" json:"id"`
	AccountID    int64     `db:"account_id" json:"account_id"`
	Provider     string    `db:"provider" json:"provider"`
	Caption      string    `db:"caption" json:"caption"`
	ImageURL     string    `db:"image_url" json:"image_url,omitempty"`
	PublishAt    time.Time `db:"publish_at" json:"publish_at"`
	Status       string    `db:"status" json:"status"`
	Attempts     int       `db:"attempts" json:"attempts"`
	LastError    string    `db:"last_error" json:"last_error,omitempty"`
	RemotePostID string    `db:"remote_post_id" json:"remote_post_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusPending   = "pending"
	PostStatusInFlight  = "in_flight"
	PostStatusPublished = "published"
	PostStatusFailed    = "failed"
	PostStatusCancelled = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case PostStatusPublished, PostStatusFailed, PostStatusCancelled:
		return true
	}
	return false
}
