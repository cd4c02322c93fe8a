package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "gyrodesk version dev")
}

func TestRootSharesServeFlags(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"config", "port", "status-addr", "input", "capture", "verbose", "dashboard", "tray"} {
		assert.NotNil(t, root.Flags().Lookup(name), name)
	}
	assert.Equal(t, "p", root.Flags().Lookup("port").Shorthand)
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	root := newRootCommand()
	path := t.TempDir() + "/config.yaml"
	require.NoError(t, writeFile(path, "motion:\n  smoothing: 4\n"))
	root.SetArgs([]string{"serve", "--config", path})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smoothing")
}

func TestAutostartCommand(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"autostart", "sometimes"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")

	root = newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"autostart", "status"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Autostart is")

	root = newRootCommand()
	root.SetArgs([]string{"autostart"})
	assert.Error(t, root.Execute())
}

func writeFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0644)
}
