package buildinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadPrefersLinkTimeValues(t *testing.T) {
	oldV, oldC, oldD := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldV, oldC, oldD })

	Version, Commit, Date = "v1.4.0", "0123456789abcdef", "2026-01-02T03:04:05Z"
	info := Read()
	require.Equal(t, "v1.4.0", info.Version)
	require.Equal(t, "0123456", info.Commit)
	require.Equal(t, "2026-01-02T03:04:05Z", info.Date)
	require.Equal(t, runtime.Version(), info.GoVersion)
	require.Equal(t, "v1.4.0 (0123456)", info.String())
}

func TestReadAlwaysNamesACommit(t *testing.T) {
	oldC := Commit
	t.Cleanup(func() { Commit = oldC })

	Commit = ""
	require.NotEmpty(t, Read().Commit)
}
