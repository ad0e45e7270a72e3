package domain

import "time"

// SyncOperation is a locally-originated mutation waiting to be applied against
// the remote system of record. Operations are processed strictly in enqueue
// order so causally dependent mutations on the same entity never reorder.
type SyncOperation struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Payload     map[string]string `json:"payload"`
	EnqueuedAt  time.Time         `json:"enqueued_at"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"max_attempts"`
	LastError   string            `json:"last_error,omitempty"`
}

// Exhausted reports whether the operation has used up its retry budget.
func (op SyncOperation) Exhausted() bool {
	return op.Attempts >= op.MaxAttempts
}

// DrainSummary is the explicit outcome of one drain pass. The coordinator
// reports counts instead of a bare success signal so the caller can decide
// whether the user needs to be told about dropped mutations.
type DrainSummary struct {
	Applied int  `json:"applied"`
	Retried int  `json:"retried"`
	Dropped int  `json:"dropped"`
	Skipped bool `json:"skipped"`
}
