package models

import "time"

// SocialAccount is the linked page/account a row publishes to. Linking and
// token refresh happen elsewhere; the pipeline only reads it.
type SocialAccount struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	Platform       string    `db:"platform" json:"platform"`
	AccountID      string    `db:"account_id" json:"account_id"`
	AccountName    string    `db:"account_name" json:"account_name"`
	AccessToken    string    `db:"access_token" json:"-"`
	TokenExpiresAt time.Time `db:"token_expires_at" json:"token_expires_at"`
	IsConnected    bool      `db:"is_connected" json:"is_connected"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
