// Package version exposes build metadata for the webfs binaries.
//
// Version, Commit and BuildTime are injected at build time via Go ldflags.
// When Commit is not injected, the VCS revision stamped by the Go toolchain is used.
package version
