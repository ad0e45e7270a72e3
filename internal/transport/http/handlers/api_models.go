package handlers

import (
	"time"

	"github.com/arklim/social-platform-offline/internal/core/domain"
)

// HealthResponse describes the agent health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Online    bool      `json:"online"`
	StartedAt time.Time `json:"started_at"`
}

// QueueResponse describes the pending sync queue.
type QueueResponse struct {
	Operations []domain.SyncOperation `json:"operations"`
	LastSyncAt *time.Time             `json:"last_sync_at,omitempty"`
}

// DrainResponse reports the outcome of a manually triggered drain pass.
type DrainResponse struct {
	Summary domain.DrainSummary `json:"summary"`
}

// LimitStatusResponse reports the rate-limit state for one masked key.
type LimitStatusResponse struct {
	Key         string `json:"key"`
	Allowed     bool   `json:"allowed"`
	MaxAttempts int    `json:"max_attempts"`
	Remaining   int    `json:"remaining"`
	RetryAfter  string `json:"retry_after"`
}

// SweepResponse reports the outcome of a manually triggered sweep.
type SweepResponse struct {
	Removed int `json:"removed"`
}

// ErrorResponse carries a diagnostic error message.
type ErrorResponse struct {
	Error string `json:"error"`
}
