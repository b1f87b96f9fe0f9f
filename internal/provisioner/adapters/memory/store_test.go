package memory

import (
	"context"
	"testing"
	"time"

	"github.com/docindex-go/internal/domain/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_IndexLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	exists, err := s.IndexExists(ctx, "users", index.PrimaryName)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.CreatePrimaryIndex(ctx, "users"))
	assert.ErrorIs(t, s.CreatePrimaryIndex(ctx, "users"), index.ErrAlreadyExists)

	exists, err = s.IndexExists(ctx, "users", index.PrimaryName)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.CreateSecondaryIndex(ctx, "users", "by_type", "kind = 'user'"))
	assert.ErrorIs(t, s.CreateSecondaryIndex(ctx, "users", "by_type", "kind = 'user'"), index.ErrAlreadyExists)
	assert.ElementsMatch(t, []string{index.PrimaryName, "by_type"}, s.Indexes("users"))

	s.DropIndex("users", "by_type")
	assert.ElementsMatch(t, []string{index.PrimaryName}, s.Indexes("users"))

	assert.Equal(t, 2, s.Calls("create_primary"))
	assert.Equal(t, 6, s.TotalCalls())
}

func TestStore_ViewsAreScopedByNamespace(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	def := index.ViewDefinition{Map: "function (doc) { emit(doc.id) }"}

	require.NoError(t, s.CreateView(ctx, "users", "user", "all", def))
	assert.ErrorIs(t, s.CreateView(ctx, "users", "user", "all", def), index.ErrAlreadyExists)
	require.NoError(t, s.CreateView(ctx, "orders", "user", "all", def))

	exists, err := s.ViewExists(ctx, "users", "user", "all")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.ViewExists(ctx, "users", "user", "other")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_LatencyHonoursContext(t *testing.T) {
	s := NewStore()
	s.SetLatency(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.IndexExists(ctx, "users", "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
