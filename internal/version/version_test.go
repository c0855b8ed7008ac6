package version

import (
	"bytes"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// TestVersionStrings ensures Short and Full return non-empty consistent information.
func TestVersionStrings(t *testing.T) {
	t.Parallel()

	require.NotEmpty(t, Short())
	require.Contains(t, Full(), Short())
	require.Contains(t, Full(), "go: go")
}

// TestCommitFallback reads the VCS revision only when no commit was injected.
func TestCommitFallback(t *testing.T) {
	t.Parallel()

	stamped := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{
			{Key: "vcs", Value: "git"},
			{Key: "vcs.revision", Value: "0123456789abcdef"},
		}}, true
	}
	missing := func() (*debug.BuildInfo, bool) { return nil, false }

	require.Equal(t, "0123456", commit(stamped))
	require.Equal(t, unsetCommit, commit(missing))
}

// TestVersionCommand prints full and short forms.
func TestVersionCommand(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		args []string
		want string
	}{
		{args: []string{"version"}, want: Full()},
		{args: []string{"version", "--short"}, want: Short()},
	} {
		root := &cobra.Command{Use: "webfs-test"}
		AttachCobraVersionCommand(root)

		var out bytes.Buffer

		root.SetOut(&out)
		root.SetArgs(tc.args)

		require.NoError(t, root.Execute())
		require.Equal(t, tc.want, strings.TrimSpace(out.String()))
	}
}
