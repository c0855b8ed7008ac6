// Package asset contains the core domain types of the web asset pipeline.
//
// It defines Source (a minified file produced by the UI build), Canonical
// (its compressed or verbatim counterpart in the filesystem image tree),
// the Policy that maps one to the other, and the Fingerprint of a tree.
package asset
