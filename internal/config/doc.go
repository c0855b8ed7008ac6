// Package config defines the pipeline settings shared by the build hooks and
// provides helpers to load, validate and save them in YAML format.
//
// The Config type holds the source and output trees, the upload state file,
// the compression policy and the device upload command.
package config
