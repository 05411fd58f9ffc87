package models

import "time"

// PublishAttempt is one audit record per execution attempt of a row.
type PublishAttempt struct {
	ID           int64     `db:"id" json:"id"`
	RowID        string    `db:"row_id" json:"row_id"`
	AccountID    int64     `db:"account_id" json:"account_id"`
	AttemptNo    int       `db:"attempt_no" json:"attempt_no"`
	ErrorMessage string    `db:"error_message" json:"error_message"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
