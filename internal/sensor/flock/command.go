package flock

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"flock_apiserver/internal/serialport"
)

// Broadcast addresses every device on the bus.
const Broadcast = -1

// portFor returns the cable a command for addr travels on.
func (d *Driver) portFor(addr int) (serialport.Port, error) {
	if !d.multi || addr == 0 {
		return d.ports[0], nil
	}
	if addr < 1 || addr > len(d.ports) {
		return nil, fmt.Errorf("%w: no cable for bird %d", ErrInvalidAddress, addr)
	}
	return d.ports[addr-1], nil
}

// fbbCommand sends cmd and its payload to one device, or to every device when
// addr is Broadcast. With one cable per device the command goes out bare on
// that device's cable; on a shared cable it carries the address prefix of the
// active addressing mode. No response is read.
func (d *Driver) fbbCommand(addr int, cmd byte, payload ...byte) error {
	if addr == Broadcast {
		for _, a := range d.deviceAddresses() {
			if err := d.fbbCommand(a, cmd, payload...); err != nil {
				return err
			}
		}
		return nil
	}
	port, err := d.portFor(addr)
	if err != nil {
		return err
	}
	var msg []byte
	if !d.multi && !d.standalone() {
		prefix, err := EncodeAddress(d.addressing, addr)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		msg = append(msg, prefix...)
	}
	msg = append(msg, cmd)
	msg = append(msg, payload...)

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.log.Debugf("-> bird %d: % X", addr, msg)
	if _, err := port.Write(msg); err != nil {
		return fmt.Errorf("write to %s: %w", port.Name(), err)
	}
	return nil
}

// deviceAddresses lists the addresses a broadcast reaches.
func (d *Driver) deviceAddresses() []int {
	if d.standalone() {
		return []int{0}
	}
	res := make([]int, 0, d.layout.devices)
	for a := 1; a <= d.layout.devices; a++ {
		res = append(res, a)
	}
	return res
}

// readFull fills buf from p, tolerating up to readRetries empty reads.
func (d *Driver) readFull(p serialport.Port, buf []byte) error {
	got, idle := 0, 0
	for got < len(buf) {
		n, err := p.Read(buf[got:])
		if err != nil {
			return fmt.Errorf("read from %s: %w", p.Name(), err)
		}
		if n == 0 {
			idle++
			if idle >= d.cfg.ReadRetries {
				return fmt.Errorf("%w: %d of %d bytes from %s", ErrShortRead, got, len(buf), p.Name())
			}
			continue
		}
		got += n
	}
	return nil
}

// resync drops whatever is buffered on p so the next read starts clean.
func (d *Driver) resync(p serialport.Port) {
	if err := p.Flush(); err != nil {
		d.log.Debugf("flush %s: %v", p.Name(), err)
	}
}

func (d *Driver) examine(addr int, param byte) ([]byte, error) {
	port, err := d.portFor(addr)
	if err != nil {
		return nil, err
	}
	if err := d.fbbCommand(addr, CmdExamineValue, param); err != nil {
		return nil, err
	}
	buf := make([]byte, ExamineLen(param, d.addressing))
	if err := d.readFull(port, buf); err != nil {
		d.resync(port)
		return nil, fmt.Errorf("examine %d on bird %d: %w", param, addr, err)
	}
	d.log.Debugf("<- bird %d param %d: % X", addr, param, buf)
	return buf, nil
}

func (d *Driver) change(addr int, param byte, data ...byte) error {
	return d.fbbCommand(addr, CmdChangeValue, append([]byte{param}, data...)...)
}

func (d *Driver) modelID(addr int) (string, error) {
	b, err := d.examine(addr, ParamModelID)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.TrimRight(string(b), "\x00")), nil
}

func (d *Driver) revision(addr int) (Revision, error) {
	b, err := d.examine(addr, ParamRevision)
	if err != nil {
		return Revision{}, err
	}
	return Revision{Major: int(b[0]), Minor: int(b[1])}, nil
}

func (d *Driver) birdStatus(addr int) (uint16, error) {
	b, err := d.examine(addr, ParamBirdStatus)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Driver) errorCode(addr int) (byte, error) {
	b, err := d.examine(addr, ParamErrorCode)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// angleWord converts degrees to the signed full-scale word used in command
// payloads.
func angleWord(deg float64) int16 {
	v := math.Round(deg / 180 * wordRange)
	if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	if v < math.MinInt16 {
		v = math.MinInt16
	}
	return int16(v)
}

// anglePayload packs three angles as little-endian words.
func anglePayload(a, b, c float64) []byte {
	out := make([]byte, 6)
	binary.LittleEndian.PutUint16(out[0:], uint16(angleWord(a)))
	binary.LittleEndian.PutUint16(out[2:], uint16(angleWord(b)))
	binary.LittleEndian.PutUint16(out[4:], uint16(angleWord(c)))
	return out
}
