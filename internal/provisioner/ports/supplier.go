package ports

import (
	"context"

	"github.com/docindex-go/internal/domain/index"
)

// SpecSupplier produces the ordered specs a repository layer needs.
type SpecSupplier interface {
	Specs(ctx context.Context) ([]index.Spec, error)
	// Required lists the keys of specs whose failure must block startup.
	Required() []string
}

// OutcomePublisher announces provisioning outcomes to other services.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, runID string, outcome index.Outcome) error
}
