// Package api defines the wire format returned for a scanned image and the
// assembler that builds it from a recognition outcome.
//
// # Shape
//
//	{"image_id": "...",
//	 "results": [{"wine_name", "rating", "confidence", "bbox": {"x", "y", "width", "height"}}],
//	 "fallback_list": [{"wine_name", "rating"}]}
//
// Ratings are numbers or null. Arrays are always present, never null, so
// clients can iterate without guards. When debug output is requested a
// "debug" object carries the per-bottle pipeline trace; it never changes the
// other fields.
//
// ErrorResponse is the body of every non-2xx reply from the HTTP service.
package api
