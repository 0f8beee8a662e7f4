package serialport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

type bugstPort struct {
	name string
	port serial.Port
}

func openBugst(name string, baud int, timeout time.Duration) (Port, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", name, err)
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", name, err)
	}
	return &bugstPort{name: name, port: p}, nil
}

func (p *bugstPort) Read(b []byte) (int, error)  { return p.port.Read(b) }
func (p *bugstPort) Write(b []byte) (int, error) { return p.port.Write(b) }
func (p *bugstPort) Close() error                { return p.port.Close() }
func (p *bugstPort) Name() string                { return p.name }
func (p *bugstPort) SetRTS(v bool) error         { return p.port.SetRTS(v) }
func (p *bugstPort) SetDTR(v bool) error         { return p.port.SetDTR(v) }

func (p *bugstPort) Flush() error {
	if err := p.port.ResetInputBuffer(); err != nil {
		return err
	}
	return p.port.ResetOutputBuffer()
}
