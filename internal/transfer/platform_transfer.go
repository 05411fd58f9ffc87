package transfer

// GraphErrorResponse is the error envelope returned by the Graph API.
// IsTransient drives the recoverable/non-recoverable classification.
type GraphErrorResponse struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		IsTransient  bool   `json:"is_transient"`
		FbtraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

type GraphMediaResponse struct {
	ID string `json:"id"`
}
