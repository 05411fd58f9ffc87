package transfer

import "github.com/postpilot/postpilot/internal/models"

// PlanCreation is a request to expand a strategy into draft rows.
type PlanCreation struct {
	AccountID     int64                 `json:"account_id"`
	Strategy      models.StrategyConfig `json:"strategy"`
	PostType      string                `json:"post_type"`
	Caption       string                `json:"caption"`
	ImagePrompt   string                `json:"image_prompt"`
	CarouselCount int                   `json:"carousel_count"`
}

// RowCreation is a manual single-row creation, the equivalent of a
// one-slot planning run.
type RowCreation struct {
	AccountID     int64
	PostType      string
	Caption       string
	ImagePrompt   string
	CarouselCount int
	ScheduledDate string
	ScheduledTime string
}

type RowEdit struct {
	RowID   string `json:"row_id"`
	Caption string `json:"caption"`
}

type SubmitRequest struct {
	RowIDs []string `json:"row_ids"`
}

// RowResult is the per-row outcome of a batch submission or an execution.
type RowResult struct {
	RowID          string `json:"row_id"`
	Success        bool   `json:"success"`
	Deferred       bool   `json:"deferred"`
	PlatformPostID string `json:"platform_post_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// BatchResult aggregates per-row outcomes so callers can tell all-failed,
// partial and all-succeeded apart.
type BatchResult struct {
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Deferred  int         `json:"deferred"`
	Results   []RowResult `json:"results"`
}
