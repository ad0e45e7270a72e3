package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-offline/internal/core/domain"
	"github.com/arklim/social-platform-offline/internal/core/port"
)

// StubApplier accepts every operation and only logs it. Used when no Kafka
// brokers are configured so the agent still drains its queue in development.
type StubApplier struct {
	logger *zap.Logger
}

// NewStubApplier constructs a logging applier.
func NewStubApplier(logger *zap.Logger) *StubApplier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubApplier{logger: logger}
}

// Apply logs the operation and reports success.
func (a *StubApplier) Apply(_ context.Context, op domain.SyncOperation) error {
	a.logger.Info("stub applier accepted operation",
		zap.String("id", op.ID),
		zap.String("kind", op.Kind),
	)
	return nil
}

var _ port.Applier = (*StubApplier)(nil)
