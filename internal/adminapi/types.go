package adminapi

import "time"

// ErrorResponse is the uniform error envelope every handler returns on
// failure, grounded on the teacher's models.ErrorResponse.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NewErrorResponse builds an ErrorResponse stamped with the current time.
func NewErrorResponse(errorCode, message, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptime_seconds"`
}

// ReadinessResponse is returned by GET /readyz.
type ReadinessResponse struct {
	Ready  bool            `json:"ready"`
	Checks map[string]bool `json:"checks"`
}

// SubscriptionSummary is one row of GET /subscriptions.
type SubscriptionSummary struct {
	ReferenceID string `json:"reference_id"`
	State       string `json:"state"`
	Tag         string `json:"tag,omitempty"`
}

// ResetResponse is returned by POST /subscriptions/:id/reset.
type ResetResponse struct {
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
}

// UnsubscribeByTagResponse is returned by
// POST /subscriptions/tag/:tag/unsubscribe.
type UnsubscribeByTagResponse struct {
	Tag     string `json:"tag"`
	Count   int    `json:"count"`
	Status  string `json:"status"`
}
