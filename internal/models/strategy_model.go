package models

// StrategyConfig describes a recurring content strategy. It is read once at
// the start of a planning run and never mutated afterwards.
type StrategyConfig struct {
	StartDate      string `json:"start_date"` // 2006-01-02
	EndDate        string `json:"end_date"`   // optional
	Frequency      string `json:"frequency"`
	TimeSlot       string `json:"time_slot"` // 15:04
	CustomCronHint string `json:"custom_cron_hint"`
}

const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
	FrequencyCustom  = "custom"
)
