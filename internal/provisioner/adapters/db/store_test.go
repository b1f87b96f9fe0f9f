package db

import (
	"context"
	"testing"

	"github.com/docindex-go/internal/domain/index"
	"github.com/docindex-go/internal/provisioner/app/service"
	"github.com/docindex-go/pkg/database"
	"github.com/docindex-go/pkg/logger"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	// One connection keeps every statement on the same in-memory database.
	db, err := database.New(database.Config{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Exec("CREATE TABLE users (id TEXT PRIMARY KEY, kind TEXT, data TEXT)").Error)
	return NewStore(db)
}

func TestStore_PrimaryIndex(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	exists, err := s.IndexExists(ctx, "users", index.PrimaryName)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.CreatePrimaryIndex(ctx, "users"))

	exists, err = s.IndexExists(ctx, "users", index.PrimaryName)
	require.NoError(t, err)
	assert.True(t, exists)

	assert.ErrorIs(t, s.CreatePrimaryIndex(ctx, "users"), index.ErrAlreadyExists)
}

func TestStore_SecondaryIndex(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.CreateSecondaryIndex(ctx, "users", "user_by_type", "kind = 'user'"))

	exists, err := s.IndexExists(ctx, "users", "user_by_type")
	require.NoError(t, err)
	assert.True(t, exists)

	err = s.CreateSecondaryIndex(ctx, "users", "user_by_type", "kind = 'user'")
	assert.ErrorIs(t, err, index.ErrAlreadyExists)
}

func TestStore_IndexNameTakenByAnotherTable(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	require.NoError(t, s.db.Exec("CREATE TABLE orders (id TEXT PRIMARY KEY, kind TEXT)").Error)
	require.NoError(t, s.CreateSecondaryIndex(ctx, "orders", "by_type", "kind = 'order'"))

	exists, err := s.IndexExists(ctx, "users", "by_type")
	assert.False(t, exists)
	assert.ErrorIs(t, err, ErrNameTaken)
	assert.NotErrorIs(t, err, index.ErrAlreadyExists)

	exists, err = s.IndexExists(ctx, "orders", "by_type")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTranslate_PostgresDuplicates(t *testing.T) {
	s := &Store{}

	tests := []struct {
		name   string
		err    *pgconn.PgError
		exists bool
	}{
		{"duplicate table", &pgconn.PgError{Code: "42P07"}, true},
		{"duplicate object", &pgconn.PgError{Code: "42710"}, true},
		{"concurrent create on relation name", &pgconn.PgError{Code: "23505", ConstraintName: "pg_class_relname_nsp_index"}, true},
		{"concurrent create on type name", &pgconn.PgError{Code: "23505", ConstraintName: "pg_type_typname_nsp_index"}, true},
		{"unique violation on user data", &pgconn.PgError{Code: "23505", ConstraintName: "users_pkey"}, false},
		{"syntax error", &pgconn.PgError{Code: "42601"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.translate(tt.err, "index", "by_type")
			require.Error(t, err)
			if tt.exists {
				assert.ErrorIs(t, err, index.ErrAlreadyExists)
			} else {
				assert.NotErrorIs(t, err, index.ErrAlreadyExists)
				assert.ErrorContains(t, err, "failed to create index by_type")
			}
		})
	}
}

func TestStore_MalformedFilterIsAStoreError(t *testing.T) {
	s := setupTestStore(t)

	err := s.CreateSecondaryIndex(context.Background(), "users", "broken", "kind = = 'user'")
	require.Error(t, err)
	assert.NotErrorIs(t, err, index.ErrAlreadyExists)
}

func TestStore_RejectsBadIdentifiers(t *testing.T) {
	s := setupTestStore(t)

	err := s.CreateSecondaryIndex(context.Background(), "users; DROP TABLE users", "x", "1 = 1")
	assert.ErrorContains(t, err, "not a valid SQL identifier")
}

func TestStore_Views(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	def := index.ViewDefinition{Map: "SELECT id FROM users WHERE kind = 'user'"}

	exists, err := s.ViewExists(ctx, "users", "user", "all")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.CreateView(ctx, "users", "user", "all", def))

	exists, err = s.ViewExists(ctx, "users", "user", "all")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.ErrorIs(t, s.CreateView(ctx, "users", "user", "all", def), index.ErrAlreadyExists)
}

func TestStore_ViewWithReduceIsUnsupported(t *testing.T) {
	s := setupTestStore(t)

	err := s.CreateView(context.Background(), "users", "user", "count", index.ViewDefinition{
		Map:    "SELECT id FROM users",
		Reduce: "_count",
	})
	assert.ErrorIs(t, err, index.ErrUnsupported)
}

func TestPhysicalNames(t *testing.T) {
	assert.Equal(t, "users_primary", PhysicalIndexName("users", index.PrimaryName))
	assert.Equal(t, "by_type", PhysicalIndexName("users", "by_type"))
	assert.Equal(t, "users_user_all", PhysicalViewName("users", "user", "all"))
}

func TestStore_WithProvisioner(t *testing.T) {
	s := setupTestStore(t)
	p := service.NewProvisioner(service.Options{}, logger.NewNop())

	specs := []index.Spec{
		index.Secondary("users", "user_by_type", "kind = 'user'"),
		index.View("users", "user", "all", index.ViewDefinition{Map: "SELECT id FROM users WHERE kind = 'user'"}),
	}

	first, err := p.Ensure(context.Background(), specs, s)
	require.NoError(t, err)
	require.True(t, first.AllSucceeded(), "%v", first.Failed())
	assert.Equal(t, 2, first.Count(index.StatusCreated))
	require.NotNil(t, first[0].Primary)
	assert.Equal(t, index.StatusCreated, first[0].Primary.Status)

	second, err := p.Ensure(context.Background(), specs, s)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Count(index.StatusAlreadyExists))
	assert.Equal(t, index.StatusAlreadyExists, second[0].Primary.Status)
}
