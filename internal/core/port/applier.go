package port

import (
	"context"

	"github.com/arklim/social-platform-offline/internal/core/domain"
)

// Applier applies one queued mutation against the remote system of record.
// A nil error removes the operation from the queue; any error counts against
// the operation's retry budget.
type Applier interface {
	Apply(ctx context.Context, op domain.SyncOperation) error
}

// ApplierFunc adapts a plain function to the Applier interface.
type ApplierFunc func(ctx context.Context, op domain.SyncOperation) error

// Apply implements Applier.
func (f ApplierFunc) Apply(ctx context.Context, op domain.SyncOperation) error {
	return f(ctx, op)
}
