// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder that writes progress to
//     stdout and warnings or failures to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Both build hooks accept a context and extract the logger from it, enabling
// scoped, structured logging throughout the codebase.
package logger
