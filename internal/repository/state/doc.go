// Package state implements persistence for the upload state: the fingerprint
// of the canonical tree that was last flashed to the device successfully.
//
// The FileRepository stores the fingerprint as a plain hex string on disk and
// exposes a Repository interface that the uploader service depends on.
package state
