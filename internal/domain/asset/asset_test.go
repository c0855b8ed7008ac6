package asset

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func testPolicy() *Policy {
	return NewPolicy([]string{".html", ".css", ".js", ".svg", ".mp3", ".bin"}, ".nogz")
}

// TestPolicy_Classify checks the allow-list and marker detection.
func TestPolicy_Classify(t *testing.T) {
	t.Parallel()

	p := testPolicy()

	src, ok := p.Classify("js/app.js")
	require.True(t, ok)
	require.Equal(t, Source{RelativePath: "js/app.js", Extension: ".js"}, src)

	src, ok = p.Classify("sounds/move.nogz.MP3")
	require.True(t, ok)
	require.True(t, src.NoCompress)
	require.Equal(t, ".mp3", src.Extension)

	_, ok = p.Classify("README.md")
	require.False(t, ok)

	_, ok = p.Classify("prepare.py")
	require.False(t, ok)

	// The marker must be followed by another extension.
	src, ok = p.Classify("x.nogzz.js")
	require.True(t, ok)
	require.False(t, src.NoCompress)

	// Directory names never mark a file.
	src, ok = p.Classify("raw.nogz.d/app.js")
	require.True(t, ok)
	require.False(t, src.NoCompress)
}

// TestPolicy_Canonical covers the path mapping for both storage modes.
func TestPolicy_Canonical(t *testing.T) {
	t.Parallel()

	p := testPolicy()

	cases := map[string]Canonical{
		"x.nogz.mp3":            {RelativePath: "x.mp3"},
		"x.js":                  {RelativePath: "x.js.gz", Compressed: true},
		"a.css":                 {RelativePath: "a.css.gz", Compressed: true},
		"b.nogz.bin":            {RelativePath: "b.bin"},
		"audio/a.nogz.nogz.mp3": {RelativePath: "audio/a.mp3"},
		"v.nogz/index.html":     {RelativePath: "v/index.html.gz", Compressed: true},
		"x.nogzz.js":            {RelativePath: "x.nogzz.js.gz", Compressed: true},
	}

	for rel, want := range cases {
		src, ok := p.Classify(rel)
		require.True(t, ok, rel)
		require.Equal(t, want, p.Canonical(src), rel)
	}
}

// TestPolicy_CanonicalProperties checks the mapping on generated names.
func TestPolicy_CanonicalProperties(t *testing.T) {
	t.Parallel()

	p := testPolicy()
	extensions := []string{".html", ".css", ".js", ".svg", ".mp3", ".bin"}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("canonical path never keeps the marker and ends in .gz iff compressed", prop.ForAll(
		func(stem string, marked bool, extIndex int) bool {
			ext := extensions[extIndex]
			name := stem
			if marked {
				name += ".nogz"
			}

			src, ok := p.Classify(name + ext)
			if !ok {
				return false
			}

			out := p.Canonical(src)
			if strings.Contains(out.RelativePath, ".nogz.") {
				return false
			}

			return out.Compressed == strings.HasSuffix(out.RelativePath, CompressedSuffix) &&
				out.Compressed == !marked
		},
		gen.AlphaString(),
		gen.Bool(),
		gen.IntRange(0, len(extensions)-1),
	))

	properties.Property("canonical path is a pure function of the source path", prop.ForAll(
		func(stem string) bool {
			a, _ := p.Classify(stem + ".js")
			b, _ := p.Classify(stem + ".js")

			return p.Canonical(a) == p.Canonical(b)
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestFingerprint verifies the zero value never matches.
func TestFingerprint(t *testing.T) {
	t.Parallel()

	var empty Fingerprint

	require.True(t, empty.IsZero())
	require.False(t, empty.Matches(""))

	f := Fingerprint("0123456789abcdef0123")
	require.True(t, f.Matches("0123456789abcdef0123"))
	require.False(t, f.Matches(empty))
	require.Equal(t, "0123456789ab", f.Short())
	require.Equal(t, "abc", Fingerprint("abc").Short())
}
