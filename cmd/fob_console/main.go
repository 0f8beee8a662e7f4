package main

import (
	"flock_apiserver/internal/config"
	managerImpl "flock_apiserver/internal/manager/flock"
	"fmt"
	"github.com/peterh/liner"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const historyFile = ".fob_console_history"

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return historyFile
	}
	return filepath.Join(home, historyFile)
}

func trackerOpt(cmd *cobra.Command) *config.TrackerOpt {
	opt := config.NewFlockOpt()
	t := &opt.Tracker
	t.Ports, _ = cmd.Flags().GetStringSlice("ports")
	t.Transport, _ = cmd.Flags().GetString("transport")
	t.Baud, _ = cmd.Flags().GetInt("baud")
	t.Mode, _ = cmd.Flags().GetString("mode")
	t.Format, _ = cmd.Flags().GetString("format")
	t.Hemisphere, _ = cmd.Flags().GetString("hemisphere")
	t.Expected, _ = cmd.Flags().GetInt("expected")
	if erc, _ := cmd.Flags().GetBool("sim-erc"); erc {
		t.Sim.ERC = true
	}
	return t
}

func repl(c *console) {
	shell := liner.NewLiner()
	defer shell.Close()

	shell.SetCtrlCAborts(true)
	shell.SetCompleter(func(line string) (res []string) {
		for _, name := range commandNames() {
			if strings.HasPrefix(name, strings.ToLower(line)) {
				res = append(res, name)
			}
		}
		return
	})

	if f, err := os.Open(historyPath()); err == nil {
		_, _ = shell.ReadHistory(f)
		_ = f.Close()
	}

	fmt.Println(`Interactive mode, type "help" for commands, Ctrl-D to quit.`)
	for {
		input, err := shell.Prompt("fob> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			fmt.Println()
			break
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		shell.AppendHistory(input)

		if input == "help" {
			c.help()
			continue
		}
		if input == "quit" || input == "exit" {
			break
		}
		tokens := strings.Fields(input)
		_ = c.runCommand(tokens[0], tokens[1:])
	}

	if f, err := os.Create(historyPath()); err == nil {
		_, _ = shell.WriteHistory(f)
		_ = f.Close()
	}
}

func _main(cmd *cobra.Command, args []string) error {
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		log.SetLevel(log.DebugLevel)
	}
	d, err := managerImpl.OpenDriver(trackerOpt(cmd), nil)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	c := &console{driver: d, out: os.Stdout}
	if len(args) > 0 {
		return c.runCommand(args[0], args[1:])
	}
	repl(c)
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "fob_console [command [args...]]",
	Short: "fob_console",
	Long:  "interactive console for inspecting and configuring a Flock of Birds",
	RunE:  _main,
}

func main() {
	rootCmd.Flags().StringSlice("ports", []string{config.DefaultTrackerPort}, "serial ports, one per bird when more than one")
	rootCmd.Flags().StringP("transport", "t", config.DefaultTransport, "serial backend: bugst, tarm, jacobsa or sim")
	rootCmd.Flags().Int("baud", config.DefaultBaud, "baud rate")
	rootCmd.Flags().String("mode", config.DefaultMode, "flock or standalone")
	rootCmd.Flags().String("format", config.DefaultFormat, "record format")
	rootCmd.Flags().String("hemisphere", config.DefaultHemisphere, "operating hemisphere")
	rootCmd.Flags().Int("expected", 0, "number of trackers, 0 takes all found")
	rootCmd.Flags().Bool("sim-erc", false, "add an extended range controller to the simulated flock")
	rootCmd.Flags().Bool("debug", false, "toggle debug logging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
