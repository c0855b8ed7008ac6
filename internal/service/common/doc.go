// Package common holds helpers shared by the preparer and the uploader.
//
// It computes the content fingerprint of a canonical tree, answers whether a
// tree holds any files, and inspects host processes that may keep the
// device's serial port busy.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
