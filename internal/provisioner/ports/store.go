package ports

import (
	"context"

	"github.com/docindex-go/internal/domain/index"
)

// StoreClient issues existence checks and DDL-like calls against a document
// store. Create* return nil when the structure was created, an error
// wrapping index.ErrAlreadyExists when the store already had it, and any
// other error on failure.
type StoreClient interface {
	IndexExists(ctx context.Context, namespace, name string) (bool, error)
	ViewExists(ctx context.Context, namespace, designDocument, viewName string) (bool, error)
	CreatePrimaryIndex(ctx context.Context, namespace string) error
	CreateSecondaryIndex(ctx context.Context, namespace, name, filter string) error
	CreateView(ctx context.Context, namespace, designDocument, viewName string, def index.ViewDefinition) error
}
