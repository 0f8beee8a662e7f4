package serialport

import (
	"io"
	"time"

	slib "github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"
)

// jacobsaPort wraps the plain io.ReadWriteCloser returned by go-serial. It has
// neither buffer flushing nor modem line control.
type jacobsaPort struct {
	name string
	rwc  io.ReadWriteCloser
}

func openJacobsa(name string, baud int, timeout time.Duration) (Port, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	// go-serial expresses the timeout in whole tenths of a second
	ms := (uint(timeout/time.Millisecond) + 99) / 100 * 100
	options := slib.OpenOptions{
		PortName:              name,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: ms,
	}
	rwc, err := slib.Open(options)
	if err != nil {
		log.Warnln(err)
		return nil, err
	}
	return &jacobsaPort{name: name, rwc: rwc}, nil
}

func (p *jacobsaPort) Read(b []byte) (int, error) {
	n, err := p.rwc.Read(b)
	if n == 0 && err == io.EOF {
		return 0, nil
	}
	return n, err
}

func (p *jacobsaPort) Write(b []byte) (int, error) { return p.rwc.Write(b) }
func (p *jacobsaPort) Close() error                { return p.rwc.Close() }
func (p *jacobsaPort) Name() string                { return p.name }

// Flush drains whatever is already waiting; the backend offers no ioctl for it.
func (p *jacobsaPort) Flush() error {
	buf := make([]byte, 256)
	for i := 0; i < 64; i++ {
		n, err := p.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}

func (p *jacobsaPort) SetRTS(v bool) error {
	log.Debugf("%s: jacobsa backend cannot drive RTS (requested %v)", p.name, v)
	return nil
}

func (p *jacobsaPort) SetDTR(v bool) error {
	log.Debugf("%s: jacobsa backend cannot drive DTR (requested %v)", p.name, v)
	return nil
}
