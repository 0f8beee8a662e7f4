package config

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().Int("port", DefaultAPIPort, "")
	cmd.Flags().String("interface", DefaultAPIInterface, "")
	cmd.Flags().Bool("debug", false, "")
	cmd.Flags().String("transport", DefaultTransport, "")
	return cmd
}

const sample = `
api:
  port: 8080
tracker:
  ports: [/dev/ttyS0, /dev/ttyS1]
  transport: tarm
  format: pos_angles
  expected: 2
  rate_hz: 50
  read_timeout_ms: 40
  sim:
    devices: [6DERC, 6DFOB]
    erc: true
osc:
  enabled: true
  address: /birds
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0600))
	return p
}

func TestDefaults(t *testing.T) {
	opt := NewFlockOpt()
	assert.Equal(t, DefaultGRPCPort, opt.GRPC.Port)
	assert.Equal(t, []string{DefaultTrackerPort}, opt.Tracker.Ports)
	assert.Equal(t, DefaultFormat, opt.Tracker.Format)
	assert.NoError(t, opt.Validate())
}

func TestParseFile(t *testing.T) {
	cmd := newServeCmd()
	require.NoError(t, cmd.Flags().Set("config", writeConfig(t, sample)))

	desc := NewFlockDesc()
	require.NoError(t, desc.Parse(cmd))
	opt := desc.Opt
	assert.Equal(t, 8080, opt.API.Port)
	assert.Equal(t, DefaultGRPCPort, opt.GRPC.Port)
	assert.Equal(t, []string{"/dev/ttyS0", "/dev/ttyS1"}, opt.Tracker.Ports)
	assert.Equal(t, "tarm", opt.Tracker.Transport)
	assert.Equal(t, "pos_angles", opt.Tracker.Format)
	assert.Equal(t, 2, opt.Tracker.Expected)
	assert.Equal(t, 50.0, opt.Tracker.RateHz)
	assert.Equal(t, 40, opt.Tracker.ReadTimeoutMs)
	assert.Equal(t, DefaultSettleMs, opt.Tracker.SettleMs)
	assert.Equal(t, []string{"6DERC", "6DFOB"}, opt.Tracker.Sim.Devices)
	assert.True(t, opt.Tracker.Sim.ERC)
	assert.True(t, opt.OSC.Enabled)
	assert.Equal(t, "/birds", opt.OSC.Address)
	assert.NoError(t, opt.Validate())
}

func TestParseEnvAndFlags(t *testing.T) {
	t.Setenv("FLOCK_CONFIG", writeConfig(t, sample))
	t.Setenv("FLOCK_TRACKER_BAUD", "38400")
	t.Setenv("FLOCK_TRACKER_MODE", "standalone")

	cmd := newServeCmd()
	require.NoError(t, cmd.Flags().Set("port", "9999"))
	require.NoError(t, cmd.Flags().Set("transport", "sim"))
	require.NoError(t, cmd.Flags().Set("debug", "true"))

	desc := NewFlockDesc()
	require.NoError(t, desc.Parse(cmd))
	assert.Equal(t, 38400, desc.Opt.Tracker.Baud)
	assert.Equal(t, "standalone", desc.Opt.Tracker.Mode)
	assert.Equal(t, 9999, desc.Opt.API.Port)
	assert.Equal(t, "sim", desc.Opt.Tracker.Transport)
	assert.True(t, desc.Opt.Debug)

	level := log.GetLevel()
	defer log.SetLevel(level)
	desc.PostParse()
	assert.Equal(t, log.DebugLevel, log.GetLevel())
}

func TestParseTrackerFlags(t *testing.T) {
	t.Setenv("FLOCK_CONFIG", writeConfig(t, sample))
	newCmd := func() *cobra.Command {
		cmd := newServeCmd()
		cmd.Flags().StringSlice("ports", []string{DefaultTrackerPort}, "")
		cmd.Flags().Int("baud", DefaultBaud, "")
		cmd.Flags().String("hemisphere", DefaultHemisphere, "")
		cmd.Flags().Bool("stream", false, "")
		cmd.Flags().Bool("osc", false, "")
		return cmd
	}

	desc := NewFlockDesc()
	require.NoError(t, desc.Parse(newCmd()))
	assert.Equal(t, []string{"/dev/ttyS0", "/dev/ttyS1"}, desc.Opt.Tracker.Ports)
	assert.Equal(t, DefaultBaud, desc.Opt.Tracker.Baud)
	assert.True(t, desc.Opt.OSC.Enabled)

	cmd := newCmd()
	require.NoError(t, cmd.Flags().Set("ports", "/dev/ttyUSB3"))
	require.NoError(t, cmd.Flags().Set("baud", "38400"))
	require.NoError(t, cmd.Flags().Set("hemisphere", "upper"))
	require.NoError(t, cmd.Flags().Set("stream", "true"))
	require.NoError(t, cmd.Flags().Set("osc", "false"))
	desc = NewFlockDesc()
	require.NoError(t, desc.Parse(cmd))
	assert.Equal(t, []string{"/dev/ttyUSB3"}, desc.Opt.Tracker.Ports)
	assert.Equal(t, 38400, desc.Opt.Tracker.Baud)
	assert.Equal(t, "upper", desc.Opt.Tracker.Hemisphere)
	assert.True(t, desc.Opt.Tracker.Stream)
	assert.False(t, desc.Opt.OSC.Enabled)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(o *FlockOpt){
		"no ports":     func(o *FlockOpt) { o.Tracker.Ports = nil },
		"blank port":   func(o *FlockOpt) { o.Tracker.Ports = []string{" "} },
		"zero rate":    func(o *FlockOpt) { o.Tracker.RateHz = 0 },
		"zero baud":    func(o *FlockOpt) { o.Tracker.Baud = 0 },
		"negative":     func(o *FlockOpt) { o.Tracker.Expected = -1 },
		"bad mode":     func(o *FlockOpt) { o.Tracker.Mode = "mesh" },
		"osc relative": func(o *FlockOpt) { o.OSC.Enabled = true; o.OSC.Address = "flock" },
	}
	for name, mutate := range cases {
		opt := NewFlockOpt()
		mutate(&opt)
		assert.Error(t, opt.Validate(), name)
	}

	opt := NewFlockOpt()
	opt.Tracker.Transport = "sim"
	opt.Tracker.Ports = nil
	assert.NoError(t, opt.Validate())
}

func TestSaveConfig(t *testing.T) {
	p := writeConfig(t, sample)
	cmd := newServeCmd()
	require.NoError(t, cmd.Flags().Set("config", p))
	desc := NewFlockDesc()
	require.NoError(t, desc.Parse(cmd))

	desc.Opt.Tracker.Expected = 3
	require.NoError(t, desc.SaveConfig())

	again := NewFlockDesc()
	require.NoError(t, again.Parse(cmd))
	assert.Equal(t, 3, again.Opt.Tracker.Expected)
	assert.Equal(t, "/birds", again.Opt.OSC.Address)
}
