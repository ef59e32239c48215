package catalog

import (
	"context"
	"strings"
	"unicode"

	"winescan/internal/textutil"
)

// DefaultSearchLimit bounds candidate retrieval when callers pass no limit.
const DefaultSearchLimit = 40

// stemRunes is how much of a token the last-resort search keeps. OCR misreads
// usually land past the first letters ("caymvs"), which a prefix of the whole
// token can never match.
const stemRunes = 3

// Search returns candidates for query, most specific first: exact name or
// alias hits, then FTS prefix matches on every token, then a looser match on
// any token, then on any token's leading stem when nothing else was found.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	key := textutil.Fold(query)
	if key == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	ids := make([]int64, 0, limit)
	seen := make(map[int64]struct{}, limit)
	add := func(found []int64) {
		for _, id := range found {
			if len(ids) >= limit {
				return
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	exact, err := s.exactIDs(ctx, key)
	if err != nil {
		return nil, err
	}
	add(exact)

	tokens := textutil.Tokenize(key)
	if len(ids) < limit {
		found, err := s.ftsIDs(ctx, matchExpression(tokens, " "), limit)
		if err != nil {
			return nil, err
		}
		add(found)
	}
	if len(ids) == 0 && len(tokens) > 1 {
		found, err := s.ftsIDs(ctx, matchExpression(significant(tokens), " OR "), limit)
		if err != nil {
			return nil, err
		}
		add(found)
	}
	if len(ids) == 0 {
		if stemmed := stems(tokens); len(stemmed) > 0 {
			found, err := s.ftsIDs(ctx, matchExpression(stemmed, " OR "), limit)
			if err != nil {
				return nil, err
			}
			add(found)
		}
	}
	return s.load(ctx, ids)
}

func (s *Store) exactIDs(ctx context.Context, key string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id FROM wines WHERE name_key = ?
        UNION
        SELECT wine_id FROM wine_aliases WHERE alias_key = ?
        ORDER BY 1`, key, key)
	if err != nil {
		return nil, unavailable("search exact", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, unavailable("search exact", err)
	}
	return ids, nil
}

func (s *Store) ftsIDs(ctx context.Context, expr string, limit int) ([]int64, error) {
	if expr == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT rowid FROM wine_search WHERE wine_search MATCH ? ORDER BY rank, rowid LIMIT ?", expr, limit)
	if err != nil {
		return nil, unavailable("search fts", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, unavailable("search fts", err)
	}
	return ids, nil
}

// matchExpression quotes every token as an FTS5 prefix phrase. Folded tokens
// only contain letters and digits, so quoting cannot be escaped.
func matchExpression(tokens []string, sep string) string {
	parts := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token == "" {
			continue
		}
		parts = append(parts, `"`+token+`"*`)
	}
	return strings.Join(parts, sep)
}

// significant drops one-letter tokens from the OR query; as prefixes they
// would match most of the catalog.
func significant(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len([]rune(token)) > 1 {
			out = append(out, token)
		}
	}
	return out
}

// stems cuts letter tokens longer than stemRunes down to their first runes.
// Shorter tokens and numbers were already tried whole and are skipped.
func stems(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		runes := []rune(token)
		if len(runes) <= stemRunes || !unicode.IsLetter(runes[0]) {
			continue
		}
		stem := string(runes[:stemRunes])
		if _, ok := seen[stem]; ok {
			continue
		}
		seen[stem] = struct{}{}
		out = append(out, stem)
	}
	return out
}
