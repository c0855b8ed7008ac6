// Package uploader flashes the canonical tree to the device only when its
// content changed since the last successful upload.
//
// The gate fingerprints the output tree, compares it with the persisted
// upload state and invokes the external upload action on a mismatch. The new
// fingerprint is persisted only after the action succeeds, so a failed flash
// is retried by the next build.
package uploader
