package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrCacheMiss is returned when a key is not found in cache
	ErrCacheMiss = errors.New("cache miss")
)

// Cache defines the interface for cache operations
type Cache interface {
	// Get decodes the value stored under key into dest
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores a value in cache with TTL; a zero TTL uses the default
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	// Invalidate removes all keys matching a glob pattern
	Invalidate(ctx context.Context, pattern string) error

	Ping(ctx context.Context) error

	Close() error
}

// Codec defines the interface for encoding/decoding cache values
type Codec interface {
	Encode(value interface{}) ([]byte, error)
	Decode(data []byte, dest interface{}) error
}

// JSONCodec implements Codec using JSON encoding
type JSONCodec struct{}

func (c *JSONCodec) Encode(value interface{}) ([]byte, error) {
	return json.Marshal(value)
}

func (c *JSONCodec) Decode(data []byte, dest interface{}) error {
	return json.Unmarshal(data, dest)
}

// Options represents cache configuration options
type Options struct {
	// DefaultTTL is the TTL used when Set is called without one
	DefaultTTL time.Duration

	// Namespace is a prefix for all cache keys
	Namespace string

	Codec Codec
}

// DefaultOptions returns default cache options
func DefaultOptions() *Options {
	return &Options{
		DefaultTTL: 5 * time.Minute,
		Namespace:  "docindex",
		Codec:      &JSONCodec{},
	}
}

// KeyBuilder helps build cache keys with consistent formatting
type KeyBuilder struct {
	prefix    string
	separator string
}

func NewKeyBuilder(prefix string) *KeyBuilder {
	return &KeyBuilder{
		prefix:    prefix,
		separator: ":",
	}
}

// Build joins the prefix and parts with the separator.
func (b *KeyBuilder) Build(parts ...string) string {
	if b.prefix != "" {
		parts = append([]string{b.prefix}, parts...)
	}
	return strings.Join(parts, b.separator)
}

// Pattern builds a pattern matching every key under parts
func (b *KeyBuilder) Pattern(parts ...string) string {
	return b.Build(parts...) + b.separator + "*"
}
