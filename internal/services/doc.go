// Package services defines shared utilities consumed by the recognition
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp request, image, and bottle identifiers for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper so failures from the vision
//     adapter, catalog, and LLM providers classify consistently (HTTPStatus).
//
// Use these helpers when wiring new pipeline code so error handling and
// observability stay uniform.
package services
