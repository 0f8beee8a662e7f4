package config

import (
	"bufio"
	"errors"
	"flock_apiserver/internal/utils"
	"fmt"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"os"
	"path"
	"strings"
)

const DefaultAppName = "flock"
const DefaultConfigName = "config"
const DefaultGRPCInterface = "0.0.0.0"
const DefaultGRPCPort = 18890
const DefaultAPIInterface = "0.0.0.0"
const DefaultAPIPort = 18889
const DefaultOSCHost = "127.0.0.1"
const DefaultOSCPort = 9000
const DefaultOSCAddress = "/flock"

const DefaultTrackerPort = "/dev/ttyUSB0"
const DefaultTransport = "bugst"
const DefaultBaud = 115200
const DefaultMode = "flock"
const DefaultFormat = "pos_quat"
const DefaultHemisphere = "forward"
const DefaultRateHz = 100.0
const DefaultReadTimeoutMs = 100
const DefaultSettleMs = 600

var userHomeDir, _ = os.UserHomeDir()
var DefaultConfig = path.Join(userHomeDir, ".config/"+DefaultAppName+"/"+DefaultConfigName+".yaml")
var DefaultConfigSearchPath0 = path.Join(userHomeDir, ".config", DefaultAppName)

const DefaultConfigSearchPath1 = "/etc/" + DefaultAppName
const DefaultConfigSearchPath2 = "./"
const DefaultConfigSearchPath3 = "/config"

type GRPCOpt struct {
	Port      int    `yaml:"port" mapstructure:"port"`
	Interface string `yaml:"interface" mapstructure:"interface"`
}

type APIOpt struct {
	Port      int    `yaml:"port" mapstructure:"port"`
	Interface string `yaml:"interface" mapstructure:"interface"`
}

type OSCOpt struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host" mapstructure:"host"`
	Port    int    `yaml:"port" mapstructure:"port"`
	Address string `yaml:"address" mapstructure:"address"`
}

// SimOpt describes the simulated bus used by the sim transport.
type SimOpt struct {
	Devices []string `yaml:"devices" mapstructure:"devices"`
	ERC     bool     `yaml:"erc" mapstructure:"erc"`
	Animate bool     `yaml:"animate" mapstructure:"animate"`
}

type TrackerOpt struct {
	// Ports lists the serial cables. A single entry is a shared cable; more
	// than one means one cable per bird in address order.
	Ports         []string `yaml:"ports" mapstructure:"ports"`
	Transport     string   `yaml:"transport" mapstructure:"transport"`
	Baud          int      `yaml:"baud" mapstructure:"baud"`
	Mode          string   `yaml:"mode" mapstructure:"mode"`
	Expected      int      `yaml:"expected" mapstructure:"expected"`
	Format        string   `yaml:"format" mapstructure:"format"`
	Hemisphere    string   `yaml:"hemisphere" mapstructure:"hemisphere"`
	Stream        bool     `yaml:"stream" mapstructure:"stream"`
	RateHz        float64  `yaml:"rate_hz" mapstructure:"rate_hz"`
	ReadTimeoutMs int      `yaml:"read_timeout_ms" mapstructure:"read_timeout_ms"`
	SettleMs      int      `yaml:"settle_ms" mapstructure:"settle_ms"`
	Sim           SimOpt   `yaml:"sim" mapstructure:"sim"`
}

type FlockOpt struct {
	GRPC    GRPCOpt    `yaml:"grpc" mapstructure:"grpc"`
	API     APIOpt     `yaml:"api" mapstructure:"api"`
	OSC     OSCOpt     `yaml:"osc" mapstructure:"osc"`
	Tracker TrackerOpt `yaml:"tracker" mapstructure:"tracker"`
	Debug   bool       `yaml:"debug" mapstructure:"debug"`
}

type FlockDesc struct {
	Opt   FlockOpt
	Viper *viper.Viper
}

func NewFlockDesc() FlockDesc {
	return FlockDesc{
		Opt:   NewFlockOpt(),
		Viper: nil,
	}
}

func NewFlockOpt() FlockOpt {
	return FlockOpt{
		GRPC: GRPCOpt{
			Port:      DefaultGRPCPort,
			Interface: DefaultGRPCInterface,
		},
		API: APIOpt{
			Port:      DefaultAPIPort,
			Interface: DefaultAPIInterface,
		},
		OSC: OSCOpt{
			Enabled: false,
			Host:    DefaultOSCHost,
			Port:    DefaultOSCPort,
			Address: DefaultOSCAddress,
		},
		Tracker: TrackerOpt{
			Ports:         []string{DefaultTrackerPort},
			Transport:     DefaultTransport,
			Baud:          DefaultBaud,
			Mode:          DefaultMode,
			Expected:      0,
			Format:        DefaultFormat,
			Hemisphere:    DefaultHemisphere,
			Stream:        false,
			RateHz:        DefaultRateHz,
			ReadTimeoutMs: DefaultReadTimeoutMs,
			SettleMs:      DefaultSettleMs,
			Sim: SimOpt{
				Devices: []string{"6DFOB", "6DFOB"},
			},
		},
		Debug: false,
	}
}

func setDefaults(vipCfg *viper.Viper) {
	def := NewFlockOpt()
	vipCfg.SetDefault("grpc.port", def.GRPC.Port)
	vipCfg.SetDefault("grpc.interface", def.GRPC.Interface)
	vipCfg.SetDefault("api.port", def.API.Port)
	vipCfg.SetDefault("api.interface", def.API.Interface)
	vipCfg.SetDefault("osc.enabled", def.OSC.Enabled)
	vipCfg.SetDefault("osc.host", def.OSC.Host)
	vipCfg.SetDefault("osc.port", def.OSC.Port)
	vipCfg.SetDefault("osc.address", def.OSC.Address)
	vipCfg.SetDefault("tracker.ports", def.Tracker.Ports)
	vipCfg.SetDefault("tracker.transport", def.Tracker.Transport)
	vipCfg.SetDefault("tracker.baud", def.Tracker.Baud)
	vipCfg.SetDefault("tracker.mode", def.Tracker.Mode)
	vipCfg.SetDefault("tracker.expected", def.Tracker.Expected)
	vipCfg.SetDefault("tracker.format", def.Tracker.Format)
	vipCfg.SetDefault("tracker.hemisphere", def.Tracker.Hemisphere)
	vipCfg.SetDefault("tracker.stream", def.Tracker.Stream)
	vipCfg.SetDefault("tracker.rate_hz", def.Tracker.RateHz)
	vipCfg.SetDefault("tracker.read_timeout_ms", def.Tracker.ReadTimeoutMs)
	vipCfg.SetDefault("tracker.settle_ms", def.Tracker.SettleMs)
	vipCfg.SetDefault("tracker.sim.devices", def.Tracker.Sim.Devices)
	vipCfg.SetDefault("tracker.sim.erc", def.Tracker.Sim.ERC)
	vipCfg.SetDefault("tracker.sim.animate", def.Tracker.Sim.Animate)
	vipCfg.SetDefault("debug", false)
}

func (o *FlockDesc) Parse(cmd *cobra.Command) error {
	vipCfg := viper.New()
	setDefaults(vipCfg)

	if configFileCmd, err := cmd.Flags().GetString("config"); err == nil && configFileCmd != "" {
		vipCfg.SetConfigFile(configFileCmd)
	} else {
		configFileEnv := os.Getenv("FLOCK_CONFIG")
		if configFileEnv != "" {
			vipCfg.SetConfigFile(configFileEnv)
		} else {
			vipCfg.SetConfigName(DefaultConfigName)
			vipCfg.SetConfigType("yaml")
			vipCfg.AddConfigPath(DefaultConfigSearchPath0)
			vipCfg.AddConfigPath(DefaultConfigSearchPath1)
			vipCfg.AddConfigPath(DefaultConfigSearchPath2)
			vipCfg.AddConfigPath(DefaultConfigSearchPath3)
		}
	}

	vipCfg.SetEnvPrefix(DefaultAppName)
	vipCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vipCfg.AutomaticEnv()

	_ = vipCfg.BindPFlag("api.port", cmd.Flags().Lookup("port"))
	_ = vipCfg.BindPFlag("api.interface", cmd.Flags().Lookup("interface"))
	_ = vipCfg.BindPFlag("debug", cmd.Flags().Lookup("debug"))
	_ = vipCfg.BindPFlag("tracker.transport", cmd.Flags().Lookup("transport"))
	_ = vipCfg.BindPFlag("tracker.ports", cmd.Flags().Lookup("ports"))
	_ = vipCfg.BindPFlag("tracker.baud", cmd.Flags().Lookup("baud"))
	_ = vipCfg.BindPFlag("tracker.hemisphere", cmd.Flags().Lookup("hemisphere"))
	_ = vipCfg.BindPFlag("tracker.stream", cmd.Flags().Lookup("stream"))
	_ = vipCfg.BindPFlag("osc.enabled", cmd.Flags().Lookup("osc"))

	// If a config file is found, read it in.
	if err := vipCfg.ReadInConfig(); err == nil {
		log.Debugln("using config file:", vipCfg.ConfigFileUsed())
		vipCfg.WatchConfig()
	} else {
		log.Warnln(err)
	}

	if err := vipCfg.Unmarshal(&o.Opt); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	o.Viper = vipCfg
	return nil
}

// Validate rejects options no tracker can be opened with.
func (o *FlockOpt) Validate() error {
	t := &o.Tracker
	if t.Transport != "sim" && len(t.Ports) == 0 {
		return errors.New("tracker.ports is empty")
	}
	for _, p := range t.Ports {
		if strings.TrimSpace(p) == "" {
			return errors.New("tracker.ports contains an empty name")
		}
	}
	if t.RateHz <= 0 {
		return fmt.Errorf("tracker.rate_hz must be positive, got %v", t.RateHz)
	}
	if t.Baud <= 0 {
		return fmt.Errorf("tracker.baud must be positive, got %d", t.Baud)
	}
	if t.Expected < 0 {
		return fmt.Errorf("tracker.expected must not be negative, got %d", t.Expected)
	}
	switch strings.ToLower(t.Mode) {
	case "flock", "standalone":
	default:
		return fmt.Errorf("tracker.mode must be flock or standalone, got %q", t.Mode)
	}
	if o.OSC.Enabled && !strings.HasPrefix(o.OSC.Address, "/") {
		return fmt.Errorf("osc.address must start with /, got %q", o.OSC.Address)
	}
	return nil
}

func (o *FlockDesc) PostParse() {
	if o.Opt.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

func (o *FlockDesc) SaveConfig() error {
	if o.Viper == nil {
		return errors.New("viper is nil")
	}
	f, err := os.OpenFile(o.Viper.ConfigFileUsed(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	w := bufio.NewWriter(f)
	s, _ := yaml.Marshal(o.Opt)
	_, err = w.Write(s)
	if err != nil {
		return err
	}
	return w.Flush()
}

// InitCfg initConfig prepares config for the application
func InitCfg(cmd *cobra.Command, _ []string) error {
	printFlag, _ := cmd.Flags().GetBool("print")
	outputPath, _ := cmd.Flags().GetString("output")
	overwriteFlag, _ := cmd.Flags().GetBool("yes")

	desc := NewFlockDesc()
	err := desc.Parse(cmd)
	if err != nil {
		log.Errorln(err)
		return err
	}

	if printFlag {
		configBuffer, _ := yaml.Marshal(desc.Opt)
		fmt.Println(string(configBuffer))
		return nil
	}
	return utils.DumpOption(desc.Opt, outputPath, overwriteFlag)
}
