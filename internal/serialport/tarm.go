package serialport

import (
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// tarmPort has no modem line control; RTS/DTR requests are accepted and dropped.
type tarmPort struct {
	name string
	port *serial.Port
}

func openTarm(name string, baud int, timeout time.Duration) (Port, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	c := &serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: timeout,
	}
	port, err := serial.OpenPort(c)
	if err != nil {
		log.Warnln(err)
		return nil, err
	}
	return &tarmPort{name: name, port: port}, nil
}

// Read maps the zero-byte EOF that a VTIME expiry produces on posix
// systems to a plain timeout.
func (p *tarmPort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if n == 0 && err == io.EOF {
		return 0, nil
	}
	return n, err
}

func (p *tarmPort) Write(b []byte) (int, error) { return p.port.Write(b) }
func (p *tarmPort) Close() error                { return p.port.Close() }
func (p *tarmPort) Flush() error                { return p.port.Flush() }
func (p *tarmPort) Name() string                { return p.name }

func (p *tarmPort) SetRTS(v bool) error {
	log.Debugf("%s: tarm backend cannot drive RTS (requested %v)", p.name, v)
	return nil
}

func (p *tarmPort) SetDTR(v bool) error {
	log.Debugf("%s: tarm backend cannot drive DTR (requested %v)", p.name, v)
	return nil
}
