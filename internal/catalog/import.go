package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gofrs/flock"

	"winescan/internal/services"
	"winescan/internal/textutil"
)

// ImportOptions controls how entries are merged into the catalog.
type ImportOptions struct {
	// Replace deletes every existing wine before importing.
	Replace bool
}

// Import validates entries and writes them in a single transaction. Entries
// with an id replace the stored wine of that id; entries without one are
// appended. It returns the number of entries written.
func (s *Store) Import(ctx context.Context, entries []Entry, opts ImportOptions) (int, error) {
	cleaned := make([]Entry, 0, len(entries))
	for i, e := range entries {
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" || textutil.Fold(e.Name) == "" {
			return 0, services.Wrap(services.ErrValidation, "catalog", "import", fmt.Sprintf("entry %d has no name", i), nil)
		}
		if !validRating(e.Rating) {
			return 0, services.Wrap(services.ErrValidation, "catalog", "import",
				fmt.Sprintf("entry %d (%s) rating %v outside [%v,%v]", i, e.Name, e.Rating, MinRating, MaxRating), nil)
		}
		if e.ID < 0 {
			return 0, services.Wrap(services.ErrValidation, "catalog", "import", fmt.Sprintf("entry %d has negative id", i), nil)
		}
		e.Varietal = strings.TrimSpace(e.Varietal)
		e.Region = strings.TrimSpace(e.Region)
		e.Winery = strings.TrimSpace(e.Winery)
		e.Aliases = cleanAliases(e.Name, e.Aliases)
		cleaned = append(cleaned, e)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("import", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if opts.Replace {
		for _, stmt := range []string{"DELETE FROM wine_aliases", "DELETE FROM wines", "DELETE FROM wine_search"} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return 0, unavailable("import reset", err)
			}
		}
	}

	for _, e := range cleaned {
		if err := writeEntry(ctx, tx, e); err != nil {
			return 0, unavailable("import", fmt.Errorf("%s: %w", e.Name, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("import commit", err)
	}
	return len(cleaned), nil
}

func writeEntry(ctx context.Context, tx *sql.Tx, e Entry) error {
	nameKey := textutil.Fold(e.Name)
	id := e.ID
	if id > 0 {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO wines (id, name, name_key, rating, varietal, region, winery)
            VALUES (?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                name_key = excluded.name_key,
                rating = excluded.rating,
                varietal = excluded.varietal,
                region = excluded.region,
                winery = excluded.winery`,
			id, e.Name, nameKey, e.Rating, e.Varietal, e.Region, e.Winery); err != nil {
			return fmt.Errorf("upsert wine: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `
            INSERT INTO wines (name, name_key, rating, varietal, region, winery)
            VALUES (?, ?, ?, ?, ?, ?)`,
			e.Name, nameKey, e.Rating, e.Varietal, e.Region, e.Winery)
		if err != nil {
			return fmt.Errorf("insert wine: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM wine_aliases WHERE wine_id = ?", id); err != nil {
		return fmt.Errorf("clear aliases: %w", err)
	}
	foldedAliases := make([]string, 0, len(e.Aliases))
	for _, alias := range e.Aliases {
		key := textutil.Fold(alias)
		if key == "" {
			continue
		}
		foldedAliases = append(foldedAliases, key)
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO wine_aliases (wine_id, alias, alias_key) VALUES (?, ?, ?)", id, alias, key); err != nil {
			return fmt.Errorf("insert alias: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM wine_search WHERE rowid = ?", id); err != nil {
		return fmt.Errorf("clear search row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO wine_search (rowid, name, aliases, winery, varietal, region)
        VALUES (?, ?, ?, ?, ?, ?)`,
		id, nameKey, strings.Join(foldedAliases, " "),
		textutil.Fold(e.Winery), textutil.Fold(e.Varietal), textutil.Fold(e.Region)); err != nil {
		return fmt.Errorf("index wine: %w", err)
	}
	return nil
}

// ReadEntries decodes a JSON array of catalog entries.
func ReadEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "catalog", "read entries", path, err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, services.Wrap(services.ErrValidation, "catalog", "read entries", "decode "+path, err)
	}
	return entries, nil
}

// ImportFile imports a JSON entry file while holding the catalog lock file,
// so two imports never interleave against the same database.
func (s *Store) ImportFile(ctx context.Context, path string, opts ImportOptions) (int, error) {
	entries, err := ReadEntries(path)
	if err != nil {
		return 0, err
	}

	lock := flock.New(s.path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return 0, services.Wrap(services.ErrCatalogUnavailable, "catalog", "import", "acquire lock", err)
	}
	if !ok {
		return 0, services.Wrap(services.ErrTransient, "catalog", "import", "another import holds "+lock.Path(), nil)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	return s.Import(ctx, entries, opts)
}
