// Package textutil provides the string primitives the catalog matcher scores
// with.
//
//   - Fold and Tokenize produce the accent-free, lower-case, punctuation-free
//     form both label text and catalog names are compared in.
//   - Ratio, PartialRatio, and TokenSortRatio are sequence-matcher similarity
//     ratios (whole string, best substring window, word-order insensitive).
//   - PhoneticOverlap compares Double Metaphone codes to catch OCR misreads
//     that keep the sound of a word but not its spelling.
package textutil
