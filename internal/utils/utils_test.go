package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestAskForConfirmation(t *testing.T) {
	assert.True(t, AskForConfirmationDefaultYes(strings.NewReader("\n"), "ok?"))
	assert.True(t, AskForConfirmationDefaultYes(strings.NewReader("Yes\n"), "ok?"))
	assert.False(t, AskForConfirmationDefaultYes(strings.NewReader("n\n"), "ok?"))
	assert.False(t, AskForConfirmationDefaultYes(strings.NewReader("maybe\n"), "ok?"))
	assert.False(t, AskForConfirmationDefaultYes(strings.NewReader(""), "ok?"))
}

func TestDumpOption(t *testing.T) {
	type opt struct {
		Name  string `yaml:"name"`
		Ports []int  `yaml:"ports"`
	}
	out := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, DumpOption(opt{Name: "flock", Ports: []int{1, 2}}, out, true))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	var got opt
	require.NoError(t, yaml.Unmarshal(b, &got))
	assert.Equal(t, "flock", got.Name)
	assert.Equal(t, []int{1, 2}, got.Ports)

	require.NoError(t, DumpOption(opt{Name: "again"}, out, true))
	b, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), "again")
}
