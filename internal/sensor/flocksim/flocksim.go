// Package flocksim emulates a Flock of Birds bus behind one or more serial
// cables. It answers the commands the flock driver issues and produces
// records from poses set by the caller.
package flocksim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"flock_apiserver/internal/sensor/flock"
	"flock_apiserver/internal/serialport"
)

var ErrPortClosed = errors.New("simulated port closed")

// Bird is one simulated device. Position is in inches and Angles holds
// heading, pitch and roll in degrees, both in the bird's own frame.
type Bird struct {
	Model     string
	Revision  flock.Revision
	ErrorCode byte
	Position  mgl64.Vec3
	Angles    mgl64.Vec3
}

// NewBird is a sensor-bearing bird with current firmware.
func NewBird(pos mgl64.Vec3) Bird {
	return Bird{Model: "6DFOB", Revision: flock.Revision{Major: 3, Minor: 67}, Position: pos}
}

// NewERC is an extended range controller. It reports one major revision
// above the matching bird firmware.
func NewERC() Bird {
	return Bird{Model: flock.ERCModel, Revision: flock.Revision{Major: 4, Minor: 67}}
}

type Options struct {
	Addressing flock.AddressingMode
	// Standalone buses hold a single bird and accept no address prefixes.
	Standalone bool
	// Animate turns the heading of every sensor by one degree per record.
	Animate bool
}

type birdState struct {
	Bird
	format     flock.DataFormat
	hemisphere [2]byte
	refFrame   []byte
	angleAlign []byte
	commands   map[byte]int
}

// Bus is a simulated flock. It is safe for concurrent use.
type Bus struct {
	mu        sync.Mutex
	opts      Options
	birds     []*birdState
	ports     map[string]*Port
	group     bool
	sleeping  bool
	syncMode  byte
	autoCount int
	xmtr      byte
}

func NewBus(opts Options, birds ...Bird) *Bus {
	b := &Bus{opts: opts, ports: make(map[string]*Port), sleeping: true}
	for _, bird := range birds {
		b.birds = append(b.birds, &birdState{
			Bird:     bird,
			format:   flock.FormatPosAngles,
			commands: make(map[byte]int),
		})
	}
	return b
}

// Opener wires the bus to named cables. One name gives a shared cable that
// reaches every bird through address prefixes; several names give one cable
// per bird, in address order.
func (b *Bus) Opener(names ...string) serialport.Opener {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, name := range names {
		target := 0
		if len(names) > 1 {
			target = i + 1
		}
		b.ports[name] = &Port{bus: b, name: name, target: target}
	}
	return func(name string, baud int, timeout time.Duration) (serialport.Port, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		p, ok := b.ports[name]
		if !ok {
			return nil, fmt.Errorf("%s: no such simulated port", name)
		}
		p.closed = false
		return p, nil
	}
}

func (b *Bus) bird(addr int) *birdState {
	if addr < 1 || addr > len(b.birds) {
		return nil
	}
	return b.birds[addr-1]
}

func (b *Bus) hasERC() bool {
	for _, bird := range b.birds {
		if bird.Model == flock.ERCModel {
			return true
		}
	}
	return false
}

func isSensor(model string) bool {
	switch model {
	case "", flock.ERCModel:
		return false
	}
	return true
}

// SetPose moves the bird at addr.
func (b *Bus) SetPose(addr int, pos, angles mgl64.Vec3) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bird := b.bird(addr); bird != nil {
		bird.Position = pos
		bird.Angles = angles
	}
}

func (b *Bus) SetErrorCode(addr int, code byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bird := b.bird(addr); bird != nil {
		bird.ErrorCode = code
	}
}

// Hemisphere returns the last hemisphere argument pair sent to addr.
func (b *Bus) Hemisphere(addr int) [2]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bird := b.bird(addr); bird != nil {
		return bird.hemisphere
	}
	return [2]byte{}
}

func (b *Bus) Format(addr int) flock.DataFormat {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bird := b.bird(addr); bird != nil {
		return bird.format
	}
	return flock.DefaultFormat
}

// ReferenceFrame returns the raw reference frame payload last sent to addr.
func (b *Bus) ReferenceFrame(addr int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bird := b.bird(addr); bird != nil {
		return append([]byte(nil), bird.refFrame...)
	}
	return nil
}

func (b *Bus) AngleAlign(addr int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bird := b.bird(addr); bird != nil {
		return append([]byte(nil), bird.angleAlign...)
	}
	return nil
}

// Commands counts how often cmd reached addr.
func (b *Bus) Commands(addr int, cmd byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bird := b.bird(addr); bird != nil {
		return bird.commands[cmd]
	}
	return 0
}

func (b *Bus) GroupMode() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.group
}

func (b *Bus) Sleeping() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sleeping
}

func (b *Bus) SyncMode() byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.syncMode
}

// AutoConfigured is the device count of the last auto-configuration.
func (b *Bus) AutoConfigured() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.autoCount
}

// Transmitter is the last next-transmitter argument.
func (b *Bus) Transmitter() byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.xmtr
}

// Streaming reports whether any cable is in stream mode.
func (b *Bus) Streaming() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.ports {
		if p.streaming {
			return true
		}
	}
	return false
}

// Closed reports whether the named cable was closed by its user.
func (b *Bus) Closed(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.ports[name]
	return ok && p.closed
}

// InjectNoise queues bytes on the named cable ahead of any pending answer.
func (b *Bus) InjectNoise(name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.ports[name]; ok {
		p.out = append(append([]byte(nil), data...), p.out...)
	}
}

// status is the bird status word of addr.
func (b *Bus) status(addr int, streaming bool) uint16 {
	bird := b.bird(addr)
	var st uint16 = flock.StatusInitialized
	if addr == 1 {
		st |= flock.StatusMaster
	}
	if bird != nil && bird.ErrorCode != 0 {
		st |= flock.StatusError
	}
	if b.opts.Addressing == flock.ExpandedAddressing {
		st |= flock.StatusExpanded
	}
	if b.sleeping {
		st |= flock.StatusSleeping
	} else {
		st |= flock.StatusRunning
	}
	if streaming {
		st |= flock.StatusStreaming
	}
	return st
}

func (b *Bus) examine(addr int, param byte, streaming bool) []byte {
	bird := b.bird(addr)
	if bird == nil {
		return nil
	}
	switch param {
	case flock.ParamBirdStatus:
		out := make([]byte, 2)
		binary.LittleEndian.PutUint16(out, b.status(addr, streaming))
		return out
	case flock.ParamRevision:
		return []byte{byte(bird.Revision.Major), byte(bird.Revision.Minor)}
	case flock.ParamCrystalSpeed:
		return []byte{25, 0}
	case flock.ParamErrorCode:
		code := bird.ErrorCode
		bird.ErrorCode = 0
		return []byte{code}
	case flock.ParamModelID:
		return []byte(fmt.Sprintf("%-10s", bird.Model))[:10]
	case flock.ParamAddressingMode:
		eff := flock.EffectiveRevision(bird.Model, bird.Revision)
		if !eff.AtLeast(3, 67) {
			// Older firmware ignores the query.
			return nil
		}
		return []byte{"NES"[b.opts.Addressing]}
	case flock.ParamFBBAddress:
		return []byte{byte(addr)}
	case flock.ParamGroupMode:
		if b.group {
			return []byte{1}
		}
		return []byte{0}
	case flock.ParamFlockStatus:
		out := make([]byte, b.opts.Addressing.MaxAddress())
		for i, bird := range b.birds {
			if i >= len(out) {
				break
			}
			out[i] = flock.FlockAccessible
			if !b.sleeping {
				out[i] |= flock.FlockRunning
			}
			if bird.Model == flock.ERCModel {
				out[i] |= flock.FlockERC
			} else if isSensor(bird.Model) {
				out[i] |= flock.FlockSensor
			}
		}
		return out
	default:
		return make([]byte, flock.ExamineLen(param, b.opts.Addressing))
	}
}

func (b *Bus) change(addr int, param byte, data []byte) {
	switch param {
	case flock.ParamGroupMode:
		b.group = data[0] != 0
	case flock.ParamAutoConfig:
		b.autoCount = int(data[0])
	}
}

// record encodes the current pose of bird in its selected format.
func (b *Bus) record(bird *birdState) []byte {
	posRange := flock.StandardRange
	if b.hasERC() {
		posRange = flock.ERCRange
	}
	rot := mgl64.QuatRotate(mgl64.DegToRad(bird.Angles[0]), mgl64.Vec3{0, 0, 1}).
		Mul(mgl64.QuatRotate(mgl64.DegToRad(bird.Angles[1]), mgl64.Vec3{1, 0, 0})).
		Mul(mgl64.QuatRotate(mgl64.DegToRad(bird.Angles[2]), mgl64.Vec3{0, 1, 0}))

	var w []float64
	pos := func() {
		for _, v := range bird.Position {
			w = append(w, v/posRange)
		}
	}
	angles := func() {
		for _, v := range bird.Angles {
			w = append(w, v/180)
		}
	}
	matrix := func() {
		m := rot.Mat4().Mat3()
		for i := 0; i < 3; i++ {
			c := m.Col(i)
			w = append(w, c[0], c[1], c[2])
		}
	}
	quat := func() {
		q := rot.Conjugate()
		w = append(w, q.W, q.V[0], q.V[1], q.V[2])
	}
	switch bird.format {
	case flock.FormatPosition:
		pos()
	case flock.FormatAngles:
		angles()
	case flock.FormatMatrix:
		matrix()
	case flock.FormatQuaternion:
		quat()
	case flock.FormatPosAngles:
		pos()
		angles()
	case flock.FormatPosMatrix:
		pos()
		matrix()
	case flock.FormatPosQuaternion:
		pos()
		quat()
	}

	out := make([]byte, 0, 2*len(w))
	for _, v := range w {
		lsb, msb := flock.EncodeWord(fullScale(v))
		out = append(out, lsb, msb)
	}
	out[0] |= flock.PhaseBit

	if b.opts.Animate {
		bird.Angles[0] = math.Mod(bird.Angles[0]+1+180, 360) - 180
	}
	return out
}

// fullScale maps [-1, 1) onto a signed word, saturating at the ends.
func fullScale(v float64) int16 {
	s := math.Round(v * 32768)
	if s > math.MaxInt16 {
		s = math.MaxInt16
	}
	if s < math.MinInt16 {
		s = math.MinInt16
	}
	return int16(s)
}

// update is one answer to a point request on a cable.
func (b *Bus) update(target int) []byte {
	if target != 0 || b.opts.Standalone || !b.group {
		addr := target
		if addr == 0 {
			addr = 1
		}
		bird := b.bird(addr)
		if bird == nil || !isSensor(bird.Model) {
			return nil
		}
		return b.record(bird)
	}
	var out []byte
	for i, bird := range b.birds {
		if !isSensor(bird.Model) {
			continue
		}
		out = append(out, b.record(bird)...)
		out = append(out, byte(i+1))
	}
	return out
}
