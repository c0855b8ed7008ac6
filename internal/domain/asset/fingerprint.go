package asset

// Fingerprint is the hex-encoded digest of a canonical tree.
// The zero value means "no tree" and never matches a computed fingerprint.
type Fingerprint string

// IsZero reports whether the fingerprint is empty.
func (f Fingerprint) IsZero() bool {
	return f == ""
}

// Matches reports whether both fingerprints are set and equal.
func (f Fingerprint) Matches(other Fingerprint) bool {
	return !f.IsZero() && f == other
}

// Short returns the first characters of the fingerprint for log lines.
func (f Fingerprint) Short() string {
	const shortLength = 12

	if len(f) <= shortLength {
		return string(f)
	}

	return string(f[:shortLength])
}

// String implements fmt.Stringer.
func (f Fingerprint) String() string {
	return string(f)
}
