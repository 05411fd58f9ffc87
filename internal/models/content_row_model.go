package models

import (
	"fmt"
	"time"
)

// ContentRow is one planned post: a dated slot produced by a planning run
// (or created by hand) that moves through draft -> ready -> scheduled and
// ends up published or failed.
type ContentRow struct {
	ID             string     `db:"id" json:"id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	AccountID      int64      `db:"account_id" json:"account_id"`
	PostType       string     `db:"post_type" json:"post_type"`
	Caption        string     `db:"caption" json:"caption"`
	ImagePrompt    string     `db:"image_prompt" json:"image_prompt"`
	CarouselCount  int        `db:"carousel_count" json:"carousel_count"`
	ScheduledDate  string     `db:"scheduled_date" json:"scheduled_date"` // 2006-01-02
	ScheduledTime  string     `db:"scheduled_time" json:"scheduled_time"` // 15:04
	DueAt          time.Time  `db:"due_at" json:"due_at"`
	Status         string     `db:"status" json:"status"`
	ErrorMessage   string     `db:"error_message" json:"error_message"`
	PlatformPostID string     `db:"platform_post_id" json:"platform_post_id"`
	AttemptCount   int        `db:"attempt_count" json:"attempt_count"`
	LeaseOwner     string     `db:"lease_owner" json:"-"`
	LeaseExpiresAt *time.Time `db:"lease_expires_at" json:"-"`
	Media          []MediaRef `json:"media"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// MediaRef points at one hosted media object attached to a row.
type MediaRef struct {
	RowID        string    `db:"row_id" json:"row_id"`
	URL          string    `db:"url" json:"url"`
	MediaType    string    `db:"media_type" json:"media_type"`
	DisplayOrder int       `db:"display_order" json:"display_order"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

const (
	PostTypePhoto    = "photo"
	PostTypeCarousel = "carousel"
	PostTypeReel     = "reel"
)

const (
	RowStatusDraft     = "draft"
	RowStatusReady     = "ready"
	RowStatusScheduled = "scheduled"
	RowStatusPublished = "published"
	RowStatusFailed    = "failed"
)

const (
	CarouselMinImages = 3
	CarouselMaxImages = 7
)

// Prompt is the text fed to the image generator: the explicit prompt when
// one was supplied, the caption otherwise.
func (r *ContentRow) Prompt() string {
	if r.ImagePrompt != "" {
		return r.ImagePrompt
	}
	return r.Caption
}

// ComputeDueAt combines the row's calendar-local slot with the account's
// UTC offset into the absolute instant the row becomes due.
func (r *ContentRow) ComputeDueAt(offsetMinutes int) (time.Time, error) {
	loc := time.FixedZone("account", offsetMinutes*60)
	t, err := time.ParseInLocation("2006-01-02 15:04", r.ScheduledDate+" "+r.ScheduledTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule slot %q %q: %w", r.ScheduledDate, r.ScheduledTime, err)
	}
	return t.UTC(), nil
}

// Terminal reports whether the row has reached a final state.
func (r *ContentRow) Terminal() bool {
	return r.Status == RowStatusPublished || r.Status == RowStatusFailed
}
