package flock

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"flock_apiserver/internal/sensor"
	"flock_apiserver/internal/serialport"
)

// Mode is how a single shared cable is used.
type Mode int

const (
	// FlockMode runs several birds behind one cable in group mode.
	FlockMode Mode = iota
	// StandaloneMode talks to one bird with no bus addressing.
	StandaloneMode
)

func (m Mode) String() string {
	if m == StandaloneMode {
		return "standalone"
	}
	return "flock"
}

// State is the acquisition state of a Driver.
type State int32

const (
	Idle State = iota
	Initialized
	Polling
	Streaming
	ShuttingDown
	Stopped
)

var stateNames = []string{"idle", "initialized", "polling", "streaming", "shutting-down", "stopped"}

func (s State) String() string {
	if s < Idle || s > Stopped {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

const (
	DefaultReadRetries = 10
	DefaultSettle      = time.Millisecond * 600
)

type Config struct {
	Ports []string
	Baud  int
	// Expected is the number of trackers the caller wants; 0 takes all found.
	Expected   int
	Format     DataFormat
	Mode       Mode
	Hemisphere Hemisphere
	// ReadTimeout bounds one transport read; ReadRetries bounds the empty
	// reads tolerated while collecting a response.
	ReadTimeout time.Duration
	ReadRetries int
	// Settle is the pause after line resets and auto-configuration.
	Settle time.Duration
	Open   serialport.Opener
}

// Driver is one Flock of Birds installation: a bus of birds behind one
// shared cable, or one cable per bird.
type Driver struct {
	cfg   Config
	log   *log.Entry
	ports []serialport.Port
	multi bool

	addressing AddressingMode
	layout     busLayout
	format     DataFormat
	posRange   float64
	recLen     int
	groupLen   int
	healthy    bool

	state    atomic.Int32
	ctrlMu   sync.Mutex
	writeMu  sync.Mutex
	failures atomic.Int64

	pubMu     sync.Mutex
	published []sensor.Pose
	seq       uint64

	pollMirror  []sensor.Pose
	pollPending bool

	stopping   atomic.Bool
	closing    atomic.Bool
	workerDone chan struct{}
}

var _ sensor.Tracker = (*Driver)(nil)

// NewSinglePort opens a flock, or a lone bird in StandaloneMode, behind one
// serial cable.
func NewSinglePort(port string, cfg Config) (*Driver, error) {
	cfg.Ports = []string{port}
	return newDriver(cfg, false)
}

// NewMultiPort opens a flock in which every bird has its own cable; ports[i]
// is wired to bus address i+1 and ports[0] reaches the master.
func NewMultiPort(ports []string, cfg Config) (*Driver, error) {
	if len(ports) == 0 {
		return nil, errors.New("no serial ports given")
	}
	cfg.Ports = append([]string(nil), ports...)
	cfg.Mode = FlockMode
	return newDriver(cfg, len(ports) > 1)
}

func newDriver(cfg Config, multi bool) (*Driver, error) {
	if cfg.Open == nil {
		cfg.Open, _ = serialport.OpenerFor("")
	}
	if cfg.Baud <= 0 {
		cfg.Baud = serialport.DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = serialport.DefaultReadTimeout
	}
	if cfg.ReadRetries <= 0 {
		cfg.ReadRetries = DefaultReadRetries
	}
	d := &Driver{
		cfg:   cfg,
		log:   log.WithFields(log.Fields{"driver": "flock", "port": cfg.Ports[0]}),
		multi: multi,
	}
	for _, name := range cfg.Ports {
		p, err := cfg.Open(name, cfg.Baud, cfg.ReadTimeout)
		if err != nil {
			d.log.Errorf("cannot open %s, driver unusable: %v", name, err)
			for _, opened := range d.ports {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		d.ports = append(d.ports, p)
	}
	d.initialize()
	return d, nil
}

func (d *Driver) standalone() bool {
	return !d.multi && d.cfg.Mode == StandaloneMode
}

// group reports whether records carry a trailing address byte.
func (d *Driver) group() bool {
	return !d.multi && d.cfg.Mode == FlockMode
}

func (d *Driver) settle() {
	if d.cfg.Settle > 0 {
		time.Sleep(d.cfg.Settle)
	}
}

func (d *Driver) initialize() {
	d.resetLines()

	if d.standalone() {
		d.addressing = StandardAddressing
		d.layout = d.standaloneLayout()
	} else {
		d.addressing = d.probeAddressingMode()
		d.layout = d.enumerateTrackers()
		d.autoConfigure()
	}
	d.posRange = d.layout.posRange()
	d.setDataFormat(d.cfg.Format)
	if d.group() {
		if err := d.change(0, ParamGroupMode, 1); err != nil {
			d.log.Warnf("cannot enable group mode: %v", err)
		}
	}
	if len(d.layout.slots) > 0 {
		if err := d.setHemisphere(Broadcast, d.cfg.Hemisphere); err != nil {
			d.log.Warnf("cannot set hemisphere: %v", err)
		}
	}
	d.healthy = d.checkErrors()

	d.published = make([]sensor.Pose, len(d.layout.slots))
	for i := range d.published {
		d.published[i] = sensor.IdentityPose()
	}
	d.pollMirror = make([]sensor.Pose, len(d.published))
	copy(d.pollMirror, d.published)
	d.state.Store(int32(Initialized))

	d.log.Infof("%s addressing, %d birds, %d trackers, erc at %d, format %s, healthy %v",
		d.addressing, d.layout.devices, len(d.layout.slots), d.layout.erc, d.format, d.healthy)
}

// resetLines pulses RTS, which holds the birds in reset while high.
func (d *Driver) resetLines() {
	for _, p := range d.ports {
		if err := p.SetDTR(true); err != nil {
			d.log.Debugf("%s: DTR: %v", p.Name(), err)
		}
		if err := p.SetRTS(true); err != nil {
			d.log.Debugf("%s: RTS: %v", p.Name(), err)
		}
	}
	d.settle()
	for _, p := range d.ports {
		if err := p.SetRTS(false); err != nil {
			d.log.Debugf("%s: RTS: %v", p.Name(), err)
		}
	}
	d.settle()
	for _, p := range d.ports {
		d.resync(p)
	}
}

// probeAddressingMode asks the master which addressing mode it runs. Newer
// firmware answers directly; older firmware only flags expanded mode in its
// status word.
func (d *Driver) probeAddressingMode() AddressingMode {
	model, errModel := d.modelID(0)
	rev, errRev := d.revision(0)
	if errModel == nil && errRev == nil {
		eff := EffectiveRevision(model, rev)
		d.log.Debugf("master %s firmware %s (effective %s)", model, rev, eff)
		if supportsAddressingQuery(eff) {
			b, err := d.examine(0, ParamAddressingMode)
			if err == nil {
				if m, ok := modeFromQuery(b[0]); ok {
					return m
				}
				d.log.Warnf("unrecognized addressing mode answer %#x", b[0])
			} else {
				d.log.Warnf("addressing mode query failed: %v", err)
			}
		}
	}
	if st, err := d.birdStatus(0); err == nil {
		return modeFromStatus(st)
	}
	d.log.Warnln("no addressing mode answer from master, assuming standard addressing")
	return StandardAddressing
}

// enumerateTrackers walks the bus and assigns tracker slots.
func (d *Driver) enumerateTrackers() busLayout {
	status, err := d.examine(0, ParamFlockStatus)
	if err != nil {
		d.log.Warnf("flock status unavailable, assuming a single bird: %v", err)
		status = []byte{FlockAccessible}
	}
	l := enumerate(status, d.modelID, d.log)
	if d.multi && l.devices > len(d.ports) {
		d.log.Warnf("%d birds on the bus but only %d cables", l.devices, len(d.ports))
	}
	return l.reconcile(d.cfg.Expected, d.log)
}

func (d *Driver) standaloneLayout() busLayout {
	l := busLayout{devices: 1, slotByAddr: map[int]int{}, models: map[int]string{}}
	model, err := d.modelID(0)
	if err != nil {
		d.log.Warnf("model query failed, assuming a sensor: %v", err)
	} else {
		l.models[1] = model
	}
	if err == nil && isERCModel(model) {
		d.log.Warnln("standalone device is an extended range controller, no trackers")
		l.erc = 1
		return l
	}
	l.sensors = []int{1}
	l.slots = []int{1}
	l.slotByAddr[1] = 0
	return l
}

func (d *Driver) autoConfigure() {
	if d.layout.devices < 1 {
		return
	}
	if err := d.change(0, ParamAutoConfig, byte(d.layout.devices)); err != nil {
		d.log.Warnf("auto-configuration failed: %v", err)
	}
	d.settle()
}

// setDataFormat selects f on every sensor-bearing bird. Unknown tags fall
// back to DefaultFormat.
func (d *Driver) setDataFormat(f DataFormat) {
	if !f.Valid() {
		d.log.Warnf("unknown data format %d, using %s", int(f), DefaultFormat)
		f = DefaultFormat
	}
	d.format = f
	d.recLen = f.RecordLen()
	switch {
	case d.group():
		d.groupLen = GroupRecordLen(f, len(d.layout.sensors), true)
	default:
		d.groupLen = d.recLen
	}
	for _, addr := range d.layout.sensors {
		if d.standalone() {
			addr = 0
		}
		if err := d.fbbCommand(addr, f.Command()); err != nil {
			d.log.Warnf("bird %d: cannot select %s: %v", addr, f, err)
		}
	}
}

// checkErrors reads the error flag of every bird and reports flagged codes.
func (d *Driver) checkErrors() bool {
	healthy := true
	for _, addr := range d.deviceAddresses() {
		st, err := d.birdStatus(addr)
		if err != nil {
			d.log.Warnf("bird %d: status unavailable: %v", addr, err)
			continue
		}
		if st&StatusError == 0 {
			continue
		}
		healthy = false
		code, err := d.errorCode(addr)
		if err != nil {
			d.log.Errorf("bird %d: error flagged, code unavailable: %v", addr, err)
			continue
		}
		d.log.Errorln(DeviceError{Address: addr, Code: code})
	}
	return healthy
}

func (d *Driver) State() State {
	return State(d.state.Load())
}

// Healthy is false when a bird reported a hardware error at initialization.
func (d *Driver) Healthy() bool {
	return d.healthy
}

func (d *Driver) Streaming() bool {
	return d.State() == Streaming
}

func (d *Driver) TrackerCount() int {
	return len(d.layout.slots)
}

// DeviceCount is the number of birds on the bus, trackers or not.
func (d *Driver) DeviceCount() int {
	return d.layout.devices
}

// ERCAddress is the bus address of the extended range controller, 0 if none.
func (d *Driver) ERCAddress() int {
	return d.layout.erc
}

func (d *Driver) Addressing() AddressingMode {
	return d.addressing
}

func (d *Driver) Format() DataFormat {
	return d.format
}

// PositionRange is the full-scale position range in inches.
func (d *Driver) PositionRange() float64 {
	return d.posRange
}

func (d *Driver) Address(slot int) int {
	if slot < 0 || slot >= len(d.layout.slots) {
		return 0
	}
	return d.layout.slots[slot]
}

// Model returns the model id a bird reported during enumeration.
func (d *Driver) Model(addr int) string {
	return d.layout.models[addr]
}

// ConsecutiveFailures counts acquisition errors since the last good record.
func (d *Driver) ConsecutiveFailures() int64 {
	return d.failures.Load()
}

// Seq counts published sample sets.
func (d *Driver) Seq() uint64 {
	d.pubMu.Lock()
	defer d.pubMu.Unlock()
	return d.seq
}

func (d *Driver) Sample(slot int) (sensor.Pose, error) {
	if slot < 0 || slot >= len(d.layout.slots) {
		d.log.Warnf("sample: tracker %d out of range [0,%d)", slot, len(d.layout.slots))
		return sensor.IdentityPose(), ErrInvalidTracker
	}
	d.pubMu.Lock()
	defer d.pubMu.Unlock()
	return d.published[slot], nil
}

func (d *Driver) Snapshot() []sensor.Pose {
	d.pubMu.Lock()
	defer d.pubMu.Unlock()
	res := make([]sensor.Pose, len(d.published))
	copy(res, d.published)
	return res
}

func (d *Driver) publish(poses []sensor.Pose) {
	d.pubMu.Lock()
	copy(d.published, poses)
	d.seq++
	d.pubMu.Unlock()
}

// lockIdle takes the control lock and fails if the driver cannot talk to
// the bus right now.
func (d *Driver) lockIdle(allowStreaming bool) error {
	d.ctrlMu.Lock()
	switch d.State() {
	case ShuttingDown, Stopped:
		d.ctrlMu.Unlock()
		return ErrClosed
	case Streaming:
		if !allowStreaming {
			d.ctrlMu.Unlock()
			return ErrStreaming
		}
	}
	return nil
}

func (d *Driver) slotAddress(slot int) (int, error) {
	if slot == Broadcast {
		return Broadcast, nil
	}
	if slot < 0 || slot >= len(d.layout.slots) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTracker, slot)
	}
	if d.standalone() {
		return 0, nil
	}
	return d.layout.slots[slot], nil
}

// sendToTrackers sends cmd to one tracker's bird, or to every tracker when
// slot is Broadcast.
func (d *Driver) sendToTrackers(slot int, cmd byte, payload ...byte) error {
	addr, err := d.slotAddress(slot)
	if err != nil {
		return err
	}
	if addr != Broadcast {
		return d.fbbCommand(addr, cmd, payload...)
	}
	for i := range d.layout.slots {
		a, _ := d.slotAddress(i)
		if err := d.fbbCommand(a, cmd, payload...); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) setHemisphere(slot int, h Hemisphere) error {
	b, err := h.Bytes()
	if err != nil {
		return err
	}
	return d.sendToTrackers(slot, CmdHemisphere, b[0], b[1])
}

// SetHemisphere selects the operating half-space of one tracker, or of all
// trackers when slot is Broadcast.
func (d *Driver) SetHemisphere(slot int, h Hemisphere) error {
	if err := d.lockIdle(true); err != nil {
		return err
	}
	defer d.ctrlMu.Unlock()
	if err := d.setHemisphere(slot, h); err != nil {
		d.log.Warnf("set hemisphere %s on tracker %d: %v", h, slot, err)
		return err
	}
	return nil
}

// SetReferenceFrame sets the transmitter reference frame angles, in degrees,
// on every tracker.
func (d *Driver) SetReferenceFrame(azimuth, elevation, roll float64) error {
	if err := d.lockIdle(true); err != nil {
		return err
	}
	defer d.ctrlMu.Unlock()
	return d.sendToTrackers(Broadcast, CmdReferenceFrame, anglePayload(azimuth, elevation, roll)...)
}

// SetAngleAlign sets the sensor mounting offset, in degrees, of one tracker.
func (d *Driver) SetAngleAlign(slot int, azimuth, elevation, roll float64) error {
	if err := d.lockIdle(true); err != nil {
		return err
	}
	defer d.ctrlMu.Unlock()
	if slot == Broadcast {
		return d.sendToTrackers(Broadcast, CmdAngleAlign, anglePayload(azimuth, elevation, roll)...)
	}
	if err := d.sendToTrackers(slot, CmdAngleAlign, anglePayload(azimuth, elevation, roll)...); err != nil {
		d.log.Warnf("set angle align on tracker %d: %v", slot, err)
		return err
	}
	return nil
}

// SetSyncMode selects transmitter synchronization on the master.
func (d *Driver) SetSyncMode(mode byte) error {
	if err := d.lockIdle(false); err != nil {
		return err
	}
	defer d.ctrlMu.Unlock()
	return d.fbbCommand(0, CmdSync, mode)
}

// NextTransmitter switches the active transmitter to number xmtr on the bird
// at addr.
func (d *Driver) NextTransmitter(addr, xmtr int) error {
	if addr < 1 || addr > 15 || xmtr < 0 || xmtr > 3 {
		return fmt.Errorf("%w: transmitter %d on bird %d", ErrInvalidAddress, xmtr, addr)
	}
	if err := d.lockIdle(false); err != nil {
		return err
	}
	defer d.ctrlMu.Unlock()
	return d.fbbCommand(0, CmdNextTransmitter, byte(addr<<4|xmtr))
}

func (d *Driver) Run() error {
	if err := d.lockIdle(false); err != nil {
		return err
	}
	defer d.ctrlMu.Unlock()
	return d.fbbCommand(0, CmdRun)
}

func (d *Driver) Sleep() error {
	if err := d.lockIdle(false); err != nil {
		return err
	}
	defer d.ctrlMu.Unlock()
	return d.fbbCommand(0, CmdSleep)
}

// ExamineValue reads a raw parameter from one bird.
func (d *Driver) ExamineValue(addr int, param byte) ([]byte, error) {
	if err := d.lockIdle(false); err != nil {
		return nil, err
	}
	defer d.ctrlMu.Unlock()
	return d.examine(addr, param)
}

// ChangeValue writes a raw parameter on one bird.
func (d *Driver) ChangeValue(addr int, param byte, data ...byte) error {
	if err := d.lockIdle(false); err != nil {
		return err
	}
	defer d.ctrlMu.Unlock()
	return d.change(addr, param, data...)
}

// DeviceInfo is what a bird reports about itself.
type DeviceInfo struct {
	Address    int
	Model      string
	Revision   Revision
	CrystalMHz int
	Status     uint16
	ErrorCode  byte
}

func (i DeviceInfo) String() string {
	return fmt.Sprintf("bird %d: %s rev %s, %d MHz, status %#04x, %s",
		i.Address, i.Model, i.Revision, i.CrystalMHz, i.Status, ErrorMessage(i.ErrorCode))
}

func (d *Driver) DeviceInfo(addr int) (DeviceInfo, error) {
	if err := d.lockIdle(false); err != nil {
		return DeviceInfo{}, err
	}
	defer d.ctrlMu.Unlock()
	info := DeviceInfo{Address: addr}
	var err error
	if info.Model, err = d.modelID(addr); err != nil {
		return info, err
	}
	if info.Revision, err = d.revision(addr); err != nil {
		return info, err
	}
	b, err := d.examine(addr, ParamCrystalSpeed)
	if err != nil {
		return info, err
	}
	info.CrystalMHz = int(b[0])
	if info.Status, err = d.birdStatus(addr); err != nil {
		return info, err
	}
	if info.Status&StatusError != 0 {
		if info.ErrorCode, err = d.errorCode(addr); err != nil {
			return info, err
		}
	}
	return info, nil
}

// Close stops streaming, puts the flock to sleep and releases the cables.
// When a stream worker runs, it performs the shutdown itself.
func (d *Driver) Close() error {
	d.ctrlMu.Lock()
	defer d.ctrlMu.Unlock()
	prev := d.State()
	if prev == Stopped || prev == ShuttingDown {
		return nil
	}
	d.state.Store(int32(ShuttingDown))
	if prev == Streaming {
		d.closing.Store(true)
		d.stopping.Store(true)
		<-d.workerDone
	} else {
		d.shutdownHardware()
	}
	d.state.Store(int32(Stopped))
	d.log.Infoln("driver stopped")
	return nil
}

func (d *Driver) shutdownHardware() {
	if err := d.fbbCommand(0, CmdSleep); err != nil {
		d.log.Debugf("sleep: %v", err)
	}
	for _, p := range d.ports {
		_ = p.SetDTR(false)
		if err := p.Close(); err != nil {
			d.log.Warnf("close %s: %v", p.Name(), err)
		}
	}
}
