// Package catalog stores the reference wine catalog in SQLite.
//
// Every wine carries a canonical name, a static rating in [1,5] and optional
// aliases. Search combines exact folded-name lookups with an FTS5 index so the
// matcher receives a bounded candidate set for each bottle query. The catalog
// is read-only while requests are served; imports take an exclusive lock file
// next to the database.
package catalog
