package cmd

import (
	"flock_apiserver/internal/config"
	"flock_apiserver/internal/server"
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "flock",
	Short: "control/data plane of a Flock of Birds tracking system",
	Long:  "control/data plane of an Ascension Flock of Birds magnetic tracking system",
}

func ServeCmdRunE(cmd *cobra.Command, args []string) error {
	server.NewMainApp(cmd, args).PrepareRun().Run()
	return nil
}

// trackerFlags are the serial settings shared by every command that opens a flock.
func trackerFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "default configuration path")
	cmd.Flags().StringP("transport", "t", config.DefaultTransport, "serial backend: bugst, tarm, jacobsa or sim")
	cmd.Flags().Int("baud", config.DefaultBaud, "baud rate the birds are jumpered for")
	cmd.Flags().Bool("debug", false, "toggle debug logging")
}

func ServeCmdFlags(cmd *cobra.Command) {
	trackerFlags(cmd)
	cmd.Flags().IntP("port", "p", config.DefaultAPIPort, "port that the REST API listens on")
	cmd.Flags().StringP("interface", "i", config.DefaultAPIInterface, "interface that the REST API listens on, default to 0.0.0.0")
	cmd.Flags().StringSlice("ports", []string{config.DefaultTrackerPort}, "serial ports of the flock; one port shares the FBB bus, several give one cable per bird")
	cmd.Flags().String("hemisphere", config.DefaultHemisphere, "operating hemisphere: forward, aft, upper, lower, left or right")
	cmd.Flags().Bool("stream", false, "use stream mode instead of polling (single cable only)")
	cmd.Flags().Bool("osc", false, "send every frame as OSC messages")
}

func ProbeCmdFlags(cmd *cobra.Command) {
	trackerFlags(cmd)
}

var ServeCmd = &cobra.Command{
	Use: "serve",
	SuggestFor: []string{
		"ru", "ser",
	},
	Short: "serve start the tracker server using predefined configs.",
	Long: `serve start the tracker server using predefined configs, by the following order:
1. path specified in --config flag
2. path defined FLOCK_CONFIG environment variable
3. default location $HOME/.config/flock/config.yaml, /etc/flock/config.yaml, current directory
The parameters in the configuration file will be overwritten by the following order:
1. command line arguments
2. environment variables, e.g. FLOCK_TRACKER_BAUD or FLOCK_GRPC_PORT
The flock is opened on --ports: a single port reaches every bird through FBB
addressing, several ports are taken as one RS-232 cable per bird in address order.
Trackers are polled at tracker.rate_hz unless --stream is given. Frames are served
over gRPC (grpc.port), the REST API under /api/v1 and, with --osc, as OSC messages.
`,
	Example: `  flock serve --config=/path/to/config
  flock serve --ports /dev/ttyUSB0 --baud 38400 --hemisphere upper
  flock serve --ports /dev/ttyUSB0,/dev/ttyUSB1 --transport tarm
  flock serve --transport sim --stream --osc --debug`,
	RunE: ServeCmdRunE,
}

func InitCmdFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("print", false, "print config to stdout")
	cmd.Flags().BoolP("yes", "y", false, "overwrite")
	cmd.Flags().StringP("output", "o", config.DefaultConfig, "specify output directory")
}

var InitCmd = &cobra.Command{
	Use: "init",
	SuggestFor: []string{
		"ini", "in",
	},
	Short: "init create a configuration template",
	Long: `init create a configuration template.
The configuration file can be used to launch the tracker server.
If --print flag is present, the configuration will be printed to stdout.
If --output / -o flag is present, the configuration will be saved to the path specified
Otherwise init will output configuration file to $HOME/.config/flock/config.yaml
If --yes / -y flag is present, the configuration will be overwrite without confirmation
`,
	Example: `  flock init --print
  flock init --output /path/to/config.yaml
  flock init -o /path/to/config.yaml -y`,
	RunE: config.InitCfg,
}

var ProbeCmd = &cobra.Command{
	Use: "probe",
	SuggestFor: []string{
		"pro", "pr", "prob",
	},
	Short: "probe the compatible devices",
	Long: `probe the compatible devices.
The probe command lists the serial ports of the host, opens each one with the
configured transport and asks the bird behind it for its model id (examine value 15).
Ports that answer are printed with the model, e.g. "/dev/ttyUSB0 (6DFOB)".
Warning: Only birds running at the configured baud rate (default 115200) can be detected,
and birds already held by another process will not answer.
`,
	Example: `  flock probe
  flock probe --transport tarm --baud 38400
  flock probe --transport sim`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = server.NewMainApp(cmd, args).PrepareRun().ProbeSensor()
	},
}

func getRootCmd() *cobra.Command {

	ServeCmdFlags(ServeCmd)
	RootCmd.AddCommand(ServeCmd)

	InitCmdFlags(InitCmd)
	RootCmd.AddCommand(InitCmd)

	ProbeCmdFlags(ProbeCmd)
	RootCmd.AddCommand(ProbeCmd)

	return RootCmd
}

func Execute() {
	rootCmd := getRootCmd()
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
