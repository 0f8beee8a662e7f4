package main

import (
	"encoding/hex"
	"errors"
	"flock_apiserver/internal/manager"
	"flock_apiserver/internal/sensor/flock"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

type cliCommand struct {
	Name        string
	Usage       string
	Description string
	MinArgs     int
	MaxArgs     int
	Handler     func(c *console, args []string) error
}

// console runs device commands against one open driver.
type console struct {
	driver *flock.Driver
	out    io.Writer
}

var errUsage = errors.New("bad arguments")

func parseInt(s string) (int, error) {
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", errUsage, s)
	}
	return int(v), nil
}

func parseFloats(args []string) ([]float64, error) {
	res := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", errUsage, a)
		}
		res[i] = v
	}
	return res, nil
}

func parseSlot(s string) (int, error) {
	if strings.EqualFold(s, "all") {
		return manager.AllTrackers, nil
	}
	return parseInt(s)
}

// addresses lists every bird worth asking about: the trackers and the ERC.
func (c *console) addresses() []int {
	var res []int
	for i := 0; i < c.driver.TrackerCount(); i++ {
		res = append(res, c.driver.Address(i))
	}
	if erc := c.driver.ERCAddress(); erc > 0 {
		res = append(res, erc)
	}
	sort.Ints(res)
	return res
}

func (c *console) printPoses() {
	for i, p := range c.driver.Snapshot() {
		q := p.Orientation
		fmt.Fprintf(c.out, "  %d (bird %d)  pos %8.3f %8.3f %8.3f  quat %7.4f %7.4f %7.4f %7.4f\n",
			i, c.driver.Address(i), p.Position[0], p.Position[1], p.Position[2], q.W, q.V[0], q.V[1], q.V[2])
	}
}

var cliCommands = map[string]cliCommand{}

func register(cmd cliCommand) {
	cliCommands[cmd.Name] = cmd
}

func init() {
	register(cliCommand{Name: "status", Usage: "status", Description: "driver state and bus layout", Handler: func(c *console, _ []string) error {
		d := c.driver
		fmt.Fprintf(c.out, "state %s, %s addressing, format %s, %d trackers on %d devices, erc %d, range %.0f in, failures %d, healthy %v\n",
			d.State(), d.Addressing(), d.Format(), d.TrackerCount(), d.DeviceCount(), d.ERCAddress(), d.PositionRange(), d.ConsecutiveFailures(), d.Healthy())
		return nil
	}})
	register(cliCommand{Name: "info", Usage: "info [addr]", Description: "model, revision, crystal and status of birds", MaxArgs: 1, Handler: func(c *console, args []string) error {
		addrs := c.addresses()
		if len(args) == 1 {
			a, err := parseInt(args[0])
			if err != nil {
				return err
			}
			addrs = []int{a}
		}
		for _, a := range addrs {
			info, err := c.driver.DeviceInfo(a)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, info)
		}
		return nil
	}})
	register(cliCommand{Name: "examine", Usage: "examine <addr> <param>", Description: "read a raw parameter", MinArgs: 2, MaxArgs: 2, Handler: func(c *console, args []string) error {
		a, err := parseInt(args[0])
		if err != nil {
			return err
		}
		p, err := parseInt(args[1])
		if err != nil {
			return err
		}
		b, err := c.driver.ExamineValue(a, byte(p))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "param %d of bird %d: % x\n", p, a, b)
		return nil
	}})
	register(cliCommand{Name: "change", Usage: "change <addr> <param> <hex>", Description: "write a raw parameter", MinArgs: 3, MaxArgs: 3, Handler: func(c *console, args []string) error {
		a, err := parseInt(args[0])
		if err != nil {
			return err
		}
		p, err := parseInt(args[1])
		if err != nil {
			return err
		}
		data, err := hex.DecodeString(args[2])
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		return c.driver.ChangeValue(a, byte(p), data...)
	}})
	register(cliCommand{Name: "hemisphere", Usage: "hemisphere <slot|all> <forward|aft|upper|lower|left|right>", Description: "select the operating hemisphere", MinArgs: 2, MaxArgs: 2, Handler: func(c *console, args []string) error {
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}
		h, err := flock.ParseHemisphere(args[1])
		if err != nil {
			return err
		}
		return c.driver.SetHemisphere(slot, h)
	}})
	register(cliCommand{Name: "refframe", Usage: "refframe <azimuth> <elevation> <roll>", Description: "set the transmitter reference frame in degrees", MinArgs: 3, MaxArgs: 3, Handler: func(c *console, args []string) error {
		v, err := parseFloats(args)
		if err != nil {
			return err
		}
		return c.driver.SetReferenceFrame(v[0], v[1], v[2])
	}})
	register(cliCommand{Name: "align", Usage: "align <slot|all> <azimuth> <elevation> <roll>", Description: "set a sensor mounting offset in degrees", MinArgs: 4, MaxArgs: 4, Handler: func(c *console, args []string) error {
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}
		v, err := parseFloats(args[1:])
		if err != nil {
			return err
		}
		return c.driver.SetAngleAlign(slot, v[0], v[1], v[2])
	}})
	register(cliCommand{Name: "update", Usage: "update [count]", Description: "poll the trackers and print their poses", MaxArgs: 1, Handler: func(c *console, args []string) error {
		n := 1
		if len(args) == 1 {
			var err error
			if n, err = parseInt(args[0]); err != nil {
				return err
			}
		}
		for i := 0; i < n; i++ {
			if err := c.driver.Update(); err != nil {
				return err
			}
		}
		c.printPoses()
		return nil
	}})
	register(cliCommand{Name: "show", Usage: "show", Description: "print the latest poses", Handler: func(c *console, _ []string) error {
		c.printPoses()
		return nil
	}})
	register(cliCommand{Name: "stream", Usage: "stream", Description: "start continuous transmission", Handler: func(c *console, _ []string) error {
		return c.driver.StartStream()
	}})
	register(cliCommand{Name: "stop", Usage: "stop", Description: "stop continuous transmission", Handler: func(c *console, _ []string) error {
		return c.driver.StopStream()
	}})
	register(cliCommand{Name: "sleep", Usage: "sleep", Description: "put the flock to sleep", Handler: func(c *console, _ []string) error {
		return c.driver.Sleep()
	}})
	register(cliCommand{Name: "run", Usage: "run", Description: "wake the flock", Handler: func(c *console, _ []string) error {
		return c.driver.Run()
	}})
	register(cliCommand{Name: "sync", Usage: "sync <mode>", Description: "select transmitter synchronization", MinArgs: 1, MaxArgs: 1, Handler: func(c *console, args []string) error {
		m, err := parseInt(args[0])
		if err != nil {
			return err
		}
		return c.driver.SetSyncMode(byte(m))
	}})
	register(cliCommand{Name: "xmtr", Usage: "xmtr <addr> <number>", Description: "switch to another transmitter", MinArgs: 2, MaxArgs: 2, Handler: func(c *console, args []string) error {
		a, err := parseInt(args[0])
		if err != nil {
			return err
		}
		n, err := parseInt(args[1])
		if err != nil {
			return err
		}
		return c.driver.NextTransmitter(a, n)
	}})
}

func commandNames() []string {
	names := make([]string, 0, len(cliCommands))
	for name := range cliCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *console) help() {
	for _, name := range commandNames() {
		cmd := cliCommands[name]
		fmt.Fprintf(c.out, "  %-45s %s\n", cmd.Usage, cmd.Description)
	}
}

// runCommand executes one command line and reports failures on c.out.
func (c *console) runCommand(name string, args []string) error {
	cmd, ok := cliCommands[strings.ToLower(name)]
	if !ok {
		err := fmt.Errorf("unknown command %q", name)
		fmt.Fprintln(c.out, err)
		return err
	}
	if len(args) < cmd.MinArgs || len(args) > cmd.MaxArgs {
		fmt.Fprintf(c.out, "usage: %s\n", cmd.Usage)
		return errUsage
	}
	if err := cmd.Handler(c, args); err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return err
	}
	return nil
}
