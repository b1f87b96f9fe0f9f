package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/docindex-go/internal/domain/index"
	"github.com/docindex-go/internal/provisioner/ports"
	"github.com/docindex-go/pkg/database"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm/clause"
)

var _ ports.StoreClient = (*Store)(nil)

// SQLSTATE codes postgres uses when a relation or object name is taken.
const (
	pgDuplicateTable  = "42P07"
	pgDuplicateObject = "42710"
	pgUniqueViolation = "23505"
	pgClassNameIndex  = "pg_class_relname_nsp_index"
	pgTypeNameIndex   = "pg_type_typname_nsp_index"
)

// ErrNameTaken means an index with the requested name exists on another
// table of the same schema.
var ErrNameTaken = errors.New("index name is used by another table")

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store provisions indexes and views on tables holding JSON documents. A
// namespace is a table with an id column; the primary index is a unique index
// on id and secondary indexes are partial indexes whose WHERE clause is the
// spec filter. View definitions carry a SELECT statement in Map.
type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// quote renders an identifier for the dialect. Filters and view bodies are
// passed through verbatim and are never bound as parameters.
func (s *Store) quote(name string) string {
	return s.db.Statement.Quote(clause.Table{Name: name})
}

func (s *Store) postgres() bool {
	return s.db.Dialect() == "postgres"
}

// PhysicalIndexName maps an index name onto a valid SQL identifier.
func PhysicalIndexName(namespace, name string) string {
	if name == index.PrimaryName || name == "" {
		return namespace + "_primary"
	}
	return name
}

// PhysicalViewName is the SQL view backing a design document view.
func PhysicalViewName(namespace, designDocument, viewName string) string {
	return strings.Join([]string{namespace, designDocument, viewName}, "_")
}

func checkIdentifiers(names ...string) error {
	for _, n := range names {
		if !identifier.MatchString(n) {
			return fmt.Errorf("%q is not a valid SQL identifier", n)
		}
	}
	return nil
}

// IndexExists looks the name up across the whole schema, since index names
// are not scoped to a table. A name held by another table is an error rather
// than a miss, otherwise creation would report it as already present.
func (s *Store) IndexExists(ctx context.Context, namespace, name string) (bool, error) {
	physical := PhysicalIndexName(namespace, name)

	var tables []string
	var err error
	if s.postgres() {
		err = s.db.WithContext(ctx).
			Raw("SELECT tablename FROM pg_indexes WHERE schemaname = current_schema() AND indexname = ?", physical).
			Scan(&tables).Error
	} else {
		err = s.db.WithContext(ctx).
			Raw("SELECT tbl_name FROM sqlite_master WHERE type = 'index' AND name = ?", physical).
			Scan(&tables).Error
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up index %s: %w", physical, err)
	}

	for _, table := range tables {
		if table != namespace {
			return false, fmt.Errorf("index %s on %s: %w (%s)", physical, namespace, ErrNameTaken, table)
		}
	}
	return len(tables) > 0, nil
}

func (s *Store) ViewExists(ctx context.Context, namespace, designDocument, viewName string) (bool, error) {
	physical := PhysicalViewName(namespace, designDocument, viewName)

	var count int64
	var err error
	if s.postgres() {
		err = s.db.WithContext(ctx).
			Raw("SELECT COUNT(*) FROM pg_views WHERE schemaname = current_schema() AND viewname = ?", physical).
			Scan(&count).Error
	} else {
		err = s.db.WithContext(ctx).
			Raw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'view' AND name = ?", physical).
			Scan(&count).Error
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up view %s: %w", physical, err)
	}
	return count > 0, nil
}

func (s *Store) CreatePrimaryIndex(ctx context.Context, namespace string) error {
	physical := PhysicalIndexName(namespace, index.PrimaryName)
	if err := checkIdentifiers(namespace, physical); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).
		Exec(fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (id)", s.quote(physical), s.quote(namespace))).
		Error
	return s.translate(err, "index", physical)
}

func (s *Store) CreateSecondaryIndex(ctx context.Context, namespace, name, filter string) error {
	physical := PhysicalIndexName(namespace, name)
	if err := checkIdentifiers(namespace, physical); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).
		Exec(fmt.Sprintf("CREATE INDEX %s ON %s (id) WHERE %s", s.quote(physical), s.quote(namespace), filter)).
		Error
	return s.translate(err, "index", physical)
}

func (s *Store) CreateView(ctx context.Context, namespace, designDocument, viewName string, def index.ViewDefinition) error {
	physical := PhysicalViewName(namespace, designDocument, viewName)
	if err := checkIdentifiers(namespace, physical); err != nil {
		return err
	}
	if def.Reduce != "" {
		return fmt.Errorf("view %s: reduce functions: %w", physical, index.ErrUnsupported)
	}
	if strings.TrimSpace(def.Map) == "" {
		return fmt.Errorf("view %s has an empty map statement", physical)
	}

	err := s.db.WithContext(ctx).
		Exec(fmt.Sprintf("CREATE VIEW %s AS %s", s.quote(physical), def.Map)).
		Error
	return s.translate(err, "view", physical)
}

// translate maps "name already taken" answers from either dialect onto
// index.ErrAlreadyExists.
func (s *Store) translate(err error, what, name string) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if duplicateName(pgErr) {
			return fmt.Errorf("%s %s: %w", what, name, index.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create %s %s: %w", what, name, err)
	}

	if strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("%s %s: %w", what, name, index.ErrAlreadyExists)
	}
	return fmt.Errorf("failed to create %s %s: %w", what, name, err)
}

// duplicateName reports postgres answers meaning the name is taken. Two
// sessions creating the same relation concurrently usually lose on the
// catalog's unique index rather than with 42P07.
func duplicateName(pgErr *pgconn.PgError) bool {
	switch pgErr.Code {
	case pgDuplicateTable, pgDuplicateObject:
		return true
	case pgUniqueViolation:
		return pgErr.ConstraintName == pgClassNameIndex || pgErr.ConstraintName == pgTypeNameIndex
	default:
		return false
	}
}
