// Package vision adapts the external OCR and bottle-detection service.
//
// The service receives raw image bytes and answers with text fragments and
// bottle boxes normalized to the image frame. Client speaks that HTTP contract;
// FileDetector replays a saved response. Both return sanitized detections:
// boxes clamped to [0,1], blank fragments removed, bottles numbered in order.
package vision
