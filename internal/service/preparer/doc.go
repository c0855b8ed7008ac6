// Package preparer turns the minified UI build into the canonical tree that
// the device filesystem image is built from.
//
// Every run rebuilds the output tree from scratch: eligible assets are gzip
// compressed with fixed parameters (or copied verbatim when their name carries
// the no-compress marker), then the transient build artifacts are purged from
// the source tree.
package preparer
