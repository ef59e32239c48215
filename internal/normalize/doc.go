// Package normalize turns the raw text read from one bottle into the query the
// catalog matcher searches with, and records what it removed for diagnostics.
package normalize
