// Package matcher ranks catalog candidates against a normalized bottle query.
//
// Each candidate form (canonical name and aliases) is scored with three
// sequence-matcher ratios combined by configurable weights, plus a small
// phonetic bonus that recovers OCR misreads which keep a word's sound.
package matcher
