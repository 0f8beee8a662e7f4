package main

import (
	"bytes"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock_apiserver/internal/sensor/flock"
	"flock_apiserver/internal/sensor/flocksim"
)

func newConsole(t *testing.T) (*console, *flocksim.Bus, *bytes.Buffer) {
	bus := flocksim.NewBus(flocksim.Options{}, flocksim.NewBird(mgl64.Vec3{12, 0, 6}), flocksim.NewBird(mgl64.Vec3{0, 12, 6}))
	d, err := flock.NewSinglePort("sim0", flock.Config{Open: bus.Opener("sim0")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	out := &bytes.Buffer{}
	return &console{driver: d, out: out}, bus, out
}

func TestConsoleCommands(t *testing.T) {
	c, bus, out := newConsole(t)

	require.NoError(t, c.runCommand("status", nil))
	assert.Contains(t, out.String(), "2 trackers")

	out.Reset()
	require.NoError(t, c.runCommand("info", nil))
	assert.Contains(t, out.String(), "bird 1: 6DFOB")
	assert.Contains(t, out.String(), "bird 2: 6DFOB")

	out.Reset()
	require.NoError(t, c.runCommand("examine", []string{"2", "15"}))
	assert.Contains(t, out.String(), "param 15 of bird 2")

	require.NoError(t, c.runCommand("hemisphere", []string{"all", "upper"}))
	assert.Equal(t, [2]byte{0x0C, 0x01}, bus.Hemisphere(2))
	require.NoError(t, c.runCommand("align", []string{"0", "0", "0", "90"}))
	assert.Equal(t, []byte{0, 0, 0, 0, 0x00, 0x40}, bus.AngleAlign(1))
	require.NoError(t, c.runCommand("refframe", []string{"90", "0", "0"}))
	assert.Equal(t, []byte{0x00, 0x40, 0, 0, 0, 0}, bus.ReferenceFrame(2))

	require.NoError(t, c.runCommand("sync", []string{"1"}))
	assert.Equal(t, byte(1), bus.SyncMode())
	require.NoError(t, c.runCommand("xmtr", []string{"1", "2"}))
	assert.Equal(t, byte(0x12), bus.Transmitter())

	out.Reset()
	require.NoError(t, c.runCommand("update", []string{"2"}))
	assert.Contains(t, out.String(), "(bird 2)")

	require.NoError(t, c.runCommand("stream", nil))
	assert.True(t, c.driver.Streaming())
	require.NoError(t, c.runCommand("stop", nil))
	assert.False(t, c.driver.Streaming())

	require.NoError(t, c.runCommand("sleep", nil))
	assert.True(t, bus.Sleeping())
	require.NoError(t, c.runCommand("run", nil))
	assert.False(t, bus.Sleeping())
}

func TestConsoleErrors(t *testing.T) {
	c, _, out := newConsole(t)

	assert.Error(t, c.runCommand("fly", nil))
	assert.Contains(t, out.String(), "unknown command")

	out.Reset()
	assert.ErrorIs(t, c.runCommand("examine", []string{"1"}), errUsage)
	assert.Contains(t, out.String(), "usage: examine")

	assert.ErrorIs(t, c.runCommand("examine", []string{"one", "15"}), errUsage)
	assert.ErrorIs(t, c.runCommand("hemisphere", []string{"0", "inside"}), flock.ErrInvalidHemisphere)
	assert.ErrorIs(t, c.runCommand("xmtr", []string{"1", "7"}), flock.ErrInvalidAddress)
	assert.ErrorIs(t, c.runCommand("change", []string{"1", "35", "zz"}), errUsage)
}

func TestHelpListsEveryCommand(t *testing.T) {
	c, _, out := newConsole(t)
	c.help()
	for _, name := range commandNames() {
		assert.Contains(t, out.String(), cliCommands[name].Usage)
	}
}
