package flocksim

import (
	"flock_apiserver/internal/sensor/flock"
)

// Port is one simulated cable. Reads never block: an empty answer queue reads
// as a timeout.
type Port struct {
	bus    *Bus
	name   string
	target int

	in        []byte
	out       []byte
	streaming bool
	closed    bool
	rts       bool
	dtr       bool
}

func (p *Port) Name() string {
	return p.name
}

func (p *Port) Read(buf []byte) (int, error) {
	b := p.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.closed {
		return 0, ErrPortClosed
	}
	if len(p.out) == 0 && p.streaming && !p.rts {
		p.out = b.update(p.target)
	}
	n := copy(buf, p.out)
	p.out = p.out[n:]
	return n, nil
}

func (p *Port) Write(data []byte) (int, error) {
	b := p.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.rts {
		// Birds held in reset hear nothing.
		return len(data), nil
	}
	p.in = append(p.in, data...)
	for p.parse() {
	}
	return len(data), nil
}

// payloadLen is the argument size of cmd, or -1 if it depends on the first
// argument byte.
func payloadLen(cmd byte) int {
	switch cmd {
	case flock.CmdExamineValue, flock.CmdSync, flock.CmdNextTransmitter:
		return 1
	case flock.CmdHemisphere:
		return 2
	case flock.CmdReferenceFrame, flock.CmdAngleAlign:
		return 6
	case flock.CmdChangeValue:
		return -1
	}
	return 0
}

// parse executes the first complete command of the input queue.
func (p *Port) parse() bool {
	b := p.bus
	addr, skip := p.target, 0
	if p.target == 0 && !b.opts.Standalone {
		var a int
		a, skip = flock.DecodeAddress(b.opts.Addressing, p.in)
		if skip > 0 {
			addr = a
		} else if len(p.in) > 0 && p.in[0] == 0xA0 {
			return false
		}
	}
	if addr == 0 {
		addr = 1
	}
	if len(p.in) <= skip {
		return false
	}
	cmd := p.in[skip]
	n := payloadLen(cmd)
	if n < 0 {
		if len(p.in) < skip+2 {
			return false
		}
		n = 1 + flock.ChangeLen(p.in[skip+1])
	}
	if len(p.in) < skip+1+n {
		return false
	}
	args := append([]byte(nil), p.in[skip+1:skip+1+n]...)
	p.in = p.in[skip+1+n:]
	p.exec(addr, cmd, args)
	return true
}

func (p *Port) exec(addr int, cmd byte, args []byte) {
	b := p.bus
	bird := b.bird(addr)
	if bird == nil {
		return
	}
	bird.commands[cmd]++
	wasStreaming := p.streaming
	switch cmd {
	case flock.CmdPoint, flock.CmdSleep, flock.CmdExamineValue, flock.CmdChangeValue:
		p.streaming = false
	}
	switch cmd {
	case flock.CmdPoint:
		p.out = append(p.out, b.update(p.target)...)
	case flock.CmdStream:
		p.streaming = true
		b.sleeping = false
	case flock.CmdRun:
		b.sleeping = false
	case flock.CmdSleep:
		b.sleeping = true
	case flock.CmdExamineValue:
		p.out = append(p.out, b.examine(addr, args[0], wasStreaming)...)
	case flock.CmdChangeValue:
		b.change(addr, args[0], args[1:])
	case flock.CmdHemisphere:
		bird.hemisphere = [2]byte{args[0], args[1]}
	case flock.CmdReferenceFrame:
		bird.refFrame = args
	case flock.CmdAngleAlign:
		bird.angleAlign = args
	case flock.CmdSync:
		b.syncMode = args[0]
	case flock.CmdNextTransmitter:
		b.xmtr = args[0]
	case flock.CmdPosition:
		bird.format = flock.FormatPosition
	case flock.CmdAngles:
		bird.format = flock.FormatAngles
	case flock.CmdMatrix:
		bird.format = flock.FormatMatrix
	case flock.CmdQuaternion:
		bird.format = flock.FormatQuaternion
	case flock.CmdPosAngles:
		bird.format = flock.FormatPosAngles
	case flock.CmdPosMatrix:
		bird.format = flock.FormatPosMatrix
	case flock.CmdPosQuaternion:
		bird.format = flock.FormatPosQuaternion
	}
}

// Flush drops queued answers and any partial command.
func (p *Port) Flush() error {
	b := p.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	p.in = nil
	p.out = nil
	return nil
}

// SetRTS holds every bird on the bus in reset while high.
func (p *Port) SetRTS(on bool) error {
	b := p.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.rts && !on {
		b.sleeping = true
		b.group = false
		p.streaming = false
	}
	p.rts = on
	return nil
}

func (p *Port) SetDTR(on bool) error {
	b := p.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	p.dtr = on
	return nil
}

func (p *Port) Close() error {
	b := p.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.closed {
		return ErrPortClosed
	}
	p.closed = true
	p.streaming = false
	return nil
}
