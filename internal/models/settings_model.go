package models

import "time"

// Settings holds per-user scheduling preferences. TimezoneOffsetMinutes is
// the offset used to turn calendar-local slots into absolute due instants.
type Settings struct {
	ID                    int64     `db:"id" json:"id"`
	UserID                int64     `db:"user_id" json:"user_id"`
	TimezoneOffsetMinutes int       `db:"timezone_offset_minutes" json:"timezone_offset_minutes"`
	DefaultTimeSlot       string    `db:"default_time_slot" json:"default_time_slot"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}
