package metadata

import (
	"context"
	"sync"

	"github.com/docindex-go/internal/domain/index"
	"github.com/docindex-go/internal/provisioner/ports"
)

var _ ports.SpecSupplier = (*FileSupplier)(nil)

// FileSupplier rereads a manifest file on every Specs call so edits are
// picked up by the next scheduled run.
type FileSupplier struct {
	path    string
	dialect Dialect

	mu       sync.RWMutex
	required []string
}

type SupplierOption func(*FileSupplier)

// WithDialect sets the syntax of filters derived from the type field.
func WithDialect(d Dialect) SupplierOption {
	return func(s *FileSupplier) {
		s.dialect = d
	}
}

func NewFileSupplier(path string, opts ...SupplierOption) *FileSupplier {
	s := &FileSupplier{path: path, dialect: DialectSQL}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *FileSupplier) Specs(ctx context.Context) ([]index.Spec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := Load(s.path)
	if err != nil {
		return nil, err
	}
	m.SetDialect(s.dialect)

	s.mu.Lock()
	s.required = m.Required()
	s.mu.Unlock()

	return m.Specs(), nil
}

// Required reflects the manifest read by the last successful Specs call.
func (s *FileSupplier) Required() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.required...)
}

// StaticSupplier serves a fixed manifest.
type StaticSupplier struct {
	manifest *Manifest
}

func NewStaticSupplier(m *Manifest) *StaticSupplier {
	return &StaticSupplier{manifest: m}
}

func (s *StaticSupplier) Specs(ctx context.Context) ([]index.Spec, error) {
	return s.manifest.Specs(), nil
}

func (s *StaticSupplier) Required() []string {
	return s.manifest.Required()
}
