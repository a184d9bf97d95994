package flags

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCobraFlags_ReadFromSubcommand(t *testing.T) {
	root := &cobra.Command{Use: "lazynode", RunE: func(*cobra.Command, []string) error { return nil }}
	var ran bool
	root.AddCommand(&cobra.Command{Use: "version", RunE: func(*cobra.Command, []string) error {
		ran = true
		return nil
	}})
	fp := NewCobraFlags(root)

	root.SetArgs([]string{"version", "--debug", "--token", "123:abc", "--config-dir", "/tmp/ln"})
	require.NoError(t, root.Execute())

	assert.True(t, ran)
	assert.True(t, fp.IsDebug())
	assert.Equal(t, "123:abc", fp.GetFlag(FlagToken))
	assert.Equal(t, "/tmp/ln", fp.GetFlag(FlagConfigDir))
	assert.Empty(t, fp.GetFlag("missing"))
}
