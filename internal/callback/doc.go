// Package callback implements the inbound assignment-update endpoint through
// which the LockerLink service reports pickup-lifecycle changes.
//
// Request flow:
//
//  1. Optional token-bucket rate limit (429).
//  2. Body read with a size cap (413).
//  3. X-LockerLink-Signature required (401), API key required (500),
//     base64 HMAC-SHA256 of the raw body compared in constant time (401).
//  4. JSON decode and field validation (400).
//  5. Order lookup (404).
//  6. Sanitised fields and an internal note staged, saved once.
//  7. For the notified status, a pickup-ready notification is enqueued.
//
// Every response body is {"success": bool, "message": string}. Nothing is
// written to the order before all checks pass.
package callback
