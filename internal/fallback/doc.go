// Package fallback asks a language model for a wine's canonical name when
// the catalog alone cannot place a bottle, and caches the answers.
//
// Normalizer is the capability the recognition pipeline depends on;
// LLMNormalizer implements it over any llm.Completer. Guesses are cached by
// normalized text in a Cache: MemoryCache for a single process (optionally
// snapshotted to JSON) or RedisCache when several processes share answers.
// Entries never expire on their own; Invalidate and Clear remove them.
package fallback
