package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"winescan/internal/services"
)

// Store is the SQLite-backed catalog.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the catalog database and applies migrations.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "open", "catalog path is empty", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, services.Wrap(services.ErrCatalogUnavailable, "catalog", "open", "create catalog directory", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, services.Wrap(services.ErrCatalogUnavailable, "catalog", "open", "open sqlite db", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, services.Wrap(services.ErrCatalogUnavailable, "catalog", "open", fmt.Sprintf("apply pragma %q", pragma), execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrCatalogUnavailable, "catalog", "open", "migrate", err)
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Count returns the number of wines in the catalog.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM wines").Scan(&count); err != nil {
		return 0, unavailable("count", err)
	}
	return count, nil
}

// Get loads a single entry by id.
func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	entries, err := s.load(ctx, []int64{id})
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, services.Wrap(services.ErrNotFound, "catalog", "get", fmt.Sprintf("wine %d", id), nil)
	}
	return entries[0], nil
}

// TopRated returns up to n entries ordered by rating, then name and id.
func (s *Store) TopRated(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM wines ORDER BY rating DESC, name ASC, id ASC LIMIT ?", n)
	if err != nil {
		return nil, unavailable("top rated", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, unavailable("top rated", err)
	}
	return s.load(ctx, ids)
}

// load fetches entries with their aliases, preserving the order of ids.
func (s *Store) load(ctx context.Context, ids []int64) ([]Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(ids)

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, rating, varietal, region, winery FROM wines WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, unavailable("load", err)
	}
	byID := make(map[int64]*Entry, len(ids))
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Name, &e.Rating, &e.Varietal, &e.Region, &e.Winery); err != nil {
			_ = rows.Close()
			return nil, unavailable("load", err)
		}
		byID[e.ID] = &e
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, unavailable("load", err)
	}
	_ = rows.Close()

	aliasRows, err := s.db.QueryContext(ctx,
		"SELECT wine_id, alias FROM wine_aliases WHERE wine_id IN ("+placeholders+") ORDER BY wine_id, alias", args...)
	if err != nil {
		return nil, unavailable("load aliases", err)
	}
	defer aliasRows.Close()
	for aliasRows.Next() {
		var (
			id    int64
			alias string
		)
		if err := aliasRows.Scan(&id, &alias); err != nil {
			return nil, unavailable("load aliases", err)
		}
		if e, ok := byID[id]; ok {
			e.Aliases = append(e.Aliases, alias)
		}
	}
	if err := aliasRows.Err(); err != nil {
		return nil, unavailable("load aliases", err)
	}

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return services.Wrap(services.ErrCatalogUnavailable, "catalog", op, "query failed", err)
}
