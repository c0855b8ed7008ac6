package asset

import (
	"path"
	"strings"
)

// CompressedSuffix is appended to canonical files stored gzip-compressed.
// The device web server detects it and sets Content-Encoding accordingly.
const CompressedSuffix = ".gz"

// Source is an eligible file found in the source tree.
type Source struct {
	// RelativePath is the slash-separated path below the source root.
	RelativePath string
	// Extension is the lower-cased extension including the dot.
	Extension string
	// NoCompress is set when the filename carries the no-compress marker.
	NoCompress bool
}

// Canonical is the output counterpart of a Source.
type Canonical struct {
	// RelativePath is the slash-separated path below the output root.
	RelativePath string
	// Compressed tells whether the content is stored gzip-compressed.
	Compressed bool
}

// Policy classifies source files and derives their canonical paths.
type Policy struct {
	// extensions is the allow-list of lower-cased extensions.
	extensions map[string]struct{}
	// marker is the dot-prefixed no-compress token, e.g. ".nogz".
	marker string
}

// NewPolicy builds a policy from an extension allow-list and a dot-prefixed marker.
func NewPolicy(extensions []string, marker string) *Policy {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	return &Policy{
		extensions: allowed,
		marker:     marker,
	}
}

// Classify returns the Source for a slash-separated relative path,
// or false when the extension is not in the allow-list.
func (p *Policy) Classify(relativePath string) (Source, bool) {
	ext := strings.ToLower(path.Ext(relativePath))
	if _, ok := p.extensions[ext]; !ok {
		return Source{}, false
	}

	return Source{
		RelativePath: relativePath,
		Extension:    ext,
		NoCompress:   strings.Contains(path.Base(relativePath), p.marker+"."),
	}, true
}

// Canonical derives the output file for src. The result depends on the path only.
func (p *Policy) Canonical(src Source) Canonical {
	cleaned := p.StripMarker(src.RelativePath)
	if src.NoCompress {
		return Canonical{RelativePath: cleaned}
	}

	return Canonical{
		RelativePath: cleaned + CompressedSuffix,
		Compressed:   true,
	}
}

// StripMarker removes the marker token from every segment of a slash-separated path.
func (p *Policy) StripMarker(relativePath string) string {
	segments := strings.Split(relativePath, "/")
	for i, segment := range segments {
		segments[i] = p.stripSegment(segment)
	}

	return strings.Join(segments, "/")
}

func (p *Policy) stripSegment(segment string) string {
	inner := p.marker + "."

	for strings.Contains(segment, inner) {
		segment = strings.ReplaceAll(segment, inner, ".")
	}

	// "dir.nogz" has no extension after the marker.
	for segment != p.marker && strings.HasSuffix(segment, p.marker) {
		segment = strings.TrimSuffix(segment, p.marker)
	}

	return segment
}
