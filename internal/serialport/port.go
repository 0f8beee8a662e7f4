// Package serialport is the byte-stream transport used by the tracker drivers.
// A Port is one physical cable; the driver never needs to know how the
// operating system names it.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const DefaultBaudRate = 115200
const DefaultReadTimeout = time.Millisecond * 100

var ErrUnknownDriver = errors.New("unknown serial driver")

// Port is an open serial line.
type Port interface {
	io.ReadWriteCloser
	// Flush discards any buffered input and output.
	Flush() error
	// SetRTS drives the ready-to-send line.
	SetRTS(bool) error
	// SetDTR drives the data-terminal-ready line.
	SetDTR(bool) error
	Name() string
}

// Opener opens a named port. Read calls on the returned Port must return
// (0, nil) once timeout has elapsed without data.
type Opener func(name string, baud int, timeout time.Duration) (Port, error)

const (
	DriverBugst   = "bugst"
	DriverTarm    = "tarm"
	DriverJacobsa = "jacobsa"
)

// OpenerFor selects a backend by its configuration name. An empty name picks
// the default backend.
func OpenerFor(driver string) (Opener, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverBugst:
		return openBugst, nil
	case DriverTarm:
		return openTarm, nil
	case DriverJacobsa:
		return openJacobsa, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
