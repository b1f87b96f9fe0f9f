package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docindex-go/internal/domain/index"
	"github.com/docindex-go/internal/provisioner/ports"
)

var _ ports.StoreClient = (*Store)(nil)

type collection struct {
	indexes map[string]string // name -> filter
	views   map[string]index.ViewDefinition
}

// Store is an in-process document store catalogue. Names are unique per
// namespace, like in a real store, so concurrent creators race on it the
// same way.
type Store struct {
	mu          sync.Mutex
	collections map[string]*collection
	calls       map[string]int
	latency     time.Duration
}

func NewStore() *Store {
	return &Store{
		collections: make(map[string]*collection),
		calls:       make(map[string]int),
	}
}

// SetLatency delays every call by d, honouring the caller's context.
func (s *Store) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls returns the number of calls of any kind.
func (s *Store) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Indexes returns the index names of a namespace.
func (s *Store) Indexes(namespace string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[namespace]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(c.indexes))
	for name := range c.indexes {
		names = append(names, name)
	}
	return names
}

// DropIndex removes an index, simulating out-of-band drift.
func (s *Store) DropIndex(namespace, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[namespace]; ok {
		delete(c.indexes, name)
	}
}

func (s *Store) enter(ctx context.Context, op string) error {
	s.mu.Lock()
	s.calls[op]++
	latency := s.latency
	s.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return ctx.Err()
}

// collection must be called with mu held.
func (s *Store) collection(namespace string) *collection {
	c, ok := s.collections[namespace]
	if !ok {
		c = &collection{
			indexes: make(map[string]string),
			views:   make(map[string]index.ViewDefinition),
		}
		s.collections[namespace] = c
	}
	return c
}

func viewKey(designDocument, viewName string) string {
	return designDocument + "/" + viewName
}

func (s *Store) IndexExists(ctx context.Context, namespace, name string) (bool, error) {
	if err := s.enter(ctx, "index_exists"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collection(namespace).indexes[name]
	return ok, nil
}

func (s *Store) ViewExists(ctx context.Context, namespace, designDocument, viewName string) (bool, error) {
	if err := s.enter(ctx, "view_exists"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collection(namespace).views[viewKey(designDocument, viewName)]
	return ok, nil
}

func (s *Store) CreatePrimaryIndex(ctx context.Context, namespace string) error {
	if err := s.enter(ctx, "create_primary"); err != nil {
		return err
	}
	return s.createIndex(namespace, index.PrimaryName, "")
}

func (s *Store) CreateSecondaryIndex(ctx context.Context, namespace, name, filter string) error {
	if err := s.enter(ctx, "create_secondary"); err != nil {
		return err
	}
	return s.createIndex(namespace, name, filter)
}

func (s *Store) createIndex(namespace, name, filter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(namespace)
	if _, exists := c.indexes[name]; exists {
		return fmt.Errorf("index %s in %s: %w", name, namespace, index.ErrAlreadyExists)
	}
	c.indexes[name] = filter
	return nil
}

func (s *Store) CreateView(ctx context.Context, namespace, designDocument, viewName string, def index.ViewDefinition) error {
	if err := s.enter(ctx, "create_view"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(namespace)
	key := viewKey(designDocument, viewName)
	if _, exists := c.views[key]; exists {
		return fmt.Errorf("view %s in %s: %w", key, namespace, index.ErrAlreadyExists)
	}
	c.views[key] = def
	return nil
}
