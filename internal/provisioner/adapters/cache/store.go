package cache

import (
	"context"
	"errors"
	"time"

	"github.com/docindex-go/internal/domain/index"
	"github.com/docindex-go/internal/provisioner/ports"
	"github.com/docindex-go/pkg/cache"
	"github.com/docindex-go/pkg/logger"
	"github.com/docindex-go/pkg/metrics"
)

var _ ports.StoreClient = (*Store)(nil)

const cacheName = "existence"

// Store remembers positive existence answers of the wrapped client for a
// TTL. Negative answers are never cached, and cache failures fall back to the
// wrapped client. An index dropped out of band is seen again once its entry
// expires.
type Store struct {
	next   ports.StoreClient
	cache  cache.Cache
	ttl    time.Duration
	keys   *cache.KeyBuilder
	logger logger.Logger
}

func NewStore(next ports.StoreClient, c cache.Cache, ttl time.Duration, log logger.Logger) *Store {
	return &Store{
		next:   next,
		cache:  c,
		ttl:    ttl,
		keys:   cache.NewKeyBuilder("exists"),
		logger: log,
	}
}

func (s *Store) indexKey(namespace, name string) string {
	return s.keys.Build("index", namespace, name)
}

func (s *Store) viewKey(namespace, designDocument, viewName string) string {
	return s.keys.Build("view", namespace, designDocument, viewName)
}

func (s *Store) IndexExists(ctx context.Context, namespace, name string) (bool, error) {
	return s.exists(ctx, s.indexKey(namespace, name), func() (bool, error) {
		return s.next.IndexExists(ctx, namespace, name)
	})
}

func (s *Store) ViewExists(ctx context.Context, namespace, designDocument, viewName string) (bool, error) {
	return s.exists(ctx, s.viewKey(namespace, designDocument, viewName), func() (bool, error) {
		return s.next.ViewExists(ctx, namespace, designDocument, viewName)
	})
}

func (s *Store) CreatePrimaryIndex(ctx context.Context, namespace string) error {
	err := s.next.CreatePrimaryIndex(ctx, namespace)
	s.rememberIfPresent(ctx, s.indexKey(namespace, index.PrimaryName), err)
	return err
}

func (s *Store) CreateSecondaryIndex(ctx context.Context, namespace, name, filter string) error {
	err := s.next.CreateSecondaryIndex(ctx, namespace, name, filter)
	s.rememberIfPresent(ctx, s.indexKey(namespace, name), err)
	return err
}

func (s *Store) CreateView(ctx context.Context, namespace, designDocument, viewName string, def index.ViewDefinition) error {
	err := s.next.CreateView(ctx, namespace, designDocument, viewName, def)
	s.rememberIfPresent(ctx, s.viewKey(namespace, designDocument, viewName), err)
	return err
}

func (s *Store) exists(ctx context.Context, key string, lookup func() (bool, error)) (bool, error) {
	hit, err := s.cache.Exists(ctx, key)
	if err != nil {
		s.logger.Debug("existence cache unavailable", "key", key, "error", err)
	}
	metrics.RecordCacheLookup(cacheName, hit)
	if hit {
		return true, nil
	}

	exists, err := lookup()
	if err != nil || !exists {
		return exists, err
	}
	s.remember(ctx, key)
	return true, nil
}

// rememberIfPresent caches a creation that left the structure in place,
// whether this call created it or a concurrent one did.
func (s *Store) rememberIfPresent(ctx context.Context, key string, err error) {
	if err == nil || errors.Is(err, index.ErrAlreadyExists) {
		s.remember(ctx, key)
	}
}

func (s *Store) remember(ctx context.Context, key string) {
	if err := s.cache.Set(ctx, key, true, s.ttl); err != nil {
		s.logger.Debug("failed to cache existence", "key", key, "error", err)
	}
}
