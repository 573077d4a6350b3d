package transfer

import "time"

type PostCreation struct {
	AccountID int64     `json:"account_id"`
	Provider  string    `json:"provider"`
	Caption   string    `json:"caption"`
	ImageURL  string    `json:"image_url"`
	PublishAt time.Time `json:"publish_at"`
}

type PostStatusResponse struct {
	ID           int64  `json:"id"`
	Status       string `json:"status"`
	Attempts     int    `json:"attempts"`
	LastError    string `json:"last_error,omitempty"`
	RemotePostID string `json:"remote_post_id,omitempty"`
}
