package flock

import (
	"context"
	"errors"
	"flock_apiserver/internal/config"
	"flock_apiserver/internal/manager"
	"flock_apiserver/internal/sensor"
	"flock_apiserver/internal/sensor/flock"
	"flock_apiserver/internal/sensor/flocksim"
	"flock_apiserver/internal/serialport"
	"fmt"
	"github.com/cskr/pubsub"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const BufLen = 1024

// TransportSim selects the in-memory simulated bus instead of a serial backend.
const TransportSim = "sim"

// maxConsecutiveFailures is how many acquisition errors in a row fault the manager.
const maxConsecutiveFailures = 50

type flockManager struct {
	opt     *config.FlockOpt
	open    serialport.Opener
	driver  *flock.Driver
	broker  *pubsub.PubSub
	session string

	ringBuffer []*sensor.Frame
	counter    int64
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	// ctrl serializes Start and Stop; lock guards the driver pointer and
	// the ring buffer.
	ctrl sync.Mutex
	lock sync.RWMutex

	manuallyStopped  atomic.Bool
	faulted          atomic.Bool
	subscribers      atomic.Int32
	lastAccessSecond atomic.Int64
	idleTimeout      time.Duration
}

// TrackerID names the tracker behind a bus address.
func TrackerID(addr int) string {
	return fmt.Sprintf("bird_%d", addr)
}

// DriverConfig translates tracker options into a driver configuration.
// Unusable values are reported and replaced by defaults.
func DriverConfig(t *config.TrackerOpt) flock.Config {
	format, err := flock.ParseFormat(t.Format)
	if err != nil {
		log.Warnf("%v, using %s", err, format)
	}
	hemisphere, err := flock.ParseHemisphere(t.Hemisphere)
	if err != nil {
		log.Warnf("%v, using %s", err, hemisphere)
	}
	mode := flock.FlockMode
	if strings.EqualFold(t.Mode, flock.StandaloneMode.String()) {
		mode = flock.StandaloneMode
	}
	settle := time.Duration(t.SettleMs) * time.Millisecond
	if settle < 0 {
		settle = 0
	}
	return flock.Config{
		Baud:        t.Baud,
		Expected:    t.Expected,
		Format:      format,
		Mode:        mode,
		Hemisphere:  hemisphere,
		ReadTimeout: time.Duration(t.ReadTimeoutMs) * time.Millisecond,
		Settle:      settle,
	}
}

// NewSimBus builds the simulated flock described by the sim options.
func NewSimBus(t *config.TrackerOpt) *flocksim.Bus {
	var birds []flocksim.Bird
	if t.Sim.ERC {
		birds = append(birds, flocksim.NewERC())
	}
	for i, model := range t.Sim.Devices {
		model = strings.ToUpper(strings.TrimSpace(model))
		if model == flock.ERCModel {
			birds = append(birds, flocksim.NewERC())
			continue
		}
		b := flocksim.NewBird(mgl64.Vec3{12 * float64(i+1), 0, 6})
		b.Model = model
		birds = append(birds, b)
	}
	return flocksim.NewBus(flocksim.Options{
		Standalone: strings.EqualFold(t.Mode, flock.StandaloneMode.String()),
		Animate:    t.Sim.Animate,
	}, birds...)
}

func simPorts(t *config.TrackerOpt) []string {
	if len(t.Ports) == 0 {
		return []string{"sim0"}
	}
	return t.Ports
}

// OpenDriver opens the tracker installation described by t. A nil open
// selects the backend named by t.Transport.
func OpenDriver(t *config.TrackerOpt, open serialport.Opener) (*flock.Driver, error) {
	cfg := DriverConfig(t)
	ports := t.Ports
	if open == nil {
		if strings.EqualFold(t.Transport, TransportSim) {
			ports = simPorts(t)
			open = NewSimBus(t).Opener(ports...)
		} else {
			var err error
			if open, err = serialport.OpenerFor(t.Transport); err != nil {
				return nil, err
			}
		}
	}
	cfg.Open = open
	if len(ports) == 1 {
		return flock.NewSinglePort(ports[0], cfg)
	}
	return flock.NewMultiPort(ports, cfg)
}

func (m *flockManager) touch() {
	m.lastAccessSecond.Store(time.Now().Unix())
}

// TrySleep stops acquisition when nobody has read frames for a while.
// Subscribers keep the manager awake.
func (m *flockManager) TrySleep() error {
	idle := time.Duration(time.Now().Unix()-m.lastAccessSecond.Load()) * time.Second
	if !m.Running() || m.subscribers.Load() > 0 || idle <= m.idleTimeout {
		return nil
	}
	log.Infof("timeout after %v, enter sleep mode", m.idleTimeout)
	return m.Stop()
}

// ListDev returns the ids of all trackers
func (m *flockManager) ListDev() ([]string, error) {
	m.touch()
	d := m.currentDriver()
	if d == nil {
		return nil, manager.ErrNotRunning
	}
	res := make([]string, d.TrackerCount())
	for i := range res {
		res[i] = TrackerID(d.Address(i))
	}
	return res, nil
}

func (m *flockManager) currentDriver() *flock.Driver {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.driver
}

func (m *flockManager) Running() bool {
	return m.currentDriver() != nil && !m.faulted.Load()
}

func (m *flockManager) Faulted() bool {
	return m.faulted.Load()
}

func (m *flockManager) ManuallyStopped() bool {
	return m.manuallyStopped.Load()
}

func (m *flockManager) Session() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.session
}

func (m *flockManager) Status() manager.Status {
	m.lock.RLock()
	d, counter, session := m.driver, m.counter, m.session
	m.lock.RUnlock()

	st := manager.Status{
		Running: d != nil && !m.faulted.Load(),
		Faulted: m.faulted.Load(),
		Session: session,
		Frames:  counter,
		State:   flock.Stopped.String(),
	}
	if d == nil {
		return st
	}
	st.Streaming = d.Streaming()
	st.Healthy = d.Healthy()
	st.Trackers = d.TrackerCount()
	st.Devices = d.DeviceCount()
	st.ERCAddress = d.ERCAddress()
	st.Addressing = d.Addressing().String()
	st.Format = d.Format().String()
	st.State = d.State().String()
	st.Failures = d.ConsecutiveFailures()
	return st
}

// frame snapshots every tracker of d.
func frame(d *flock.Driver) *sensor.Frame {
	poses := d.Snapshot()
	now := time.Now().UnixNano()
	f := &sensor.Frame{SysTicks: now, Samples: make([]sensor.TrackerSample, len(poses))}
	for i, p := range poses {
		addr := d.Address(i)
		f.Samples[i] = sensor.TrackerSample{
			Pose:     p,
			ID:       TrackerID(addr),
			Slot:     i,
			Address:  addr,
			SysTicks: now,
		}
	}
	return f
}

func (m *flockManager) push(f *sensor.Frame) {
	m.lock.Lock()
	f.Seq = uint64(m.counter)
	for i := range f.Samples {
		f.Samples[i].Seq = f.Seq
	}
	m.ringBuffer[m.counter%BufLen] = f
	m.counter++
	m.lock.Unlock()
	m.broker.TryPub(f, manager.FramesTopic)
}

func (m *flockManager) acquire(ctx context.Context, d *flock.Driver, rateHz float64) {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rateHz))
	defer ticker.Stop()

	var lastSeq uint64
	failures := 0

	// diagnose variables
	diagLastCheck := time.Now()
	diagFrames := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := d.Update(); err != nil {
			if errors.Is(err, flock.ErrClosed) {
				m.faulted.Store(true)
				return
			}
			failures++
			log.Debugf("update failed: %v", err)
			if failures >= maxConsecutiveFailures {
				log.Errorf("%d consecutive update failures, last: %v", failures, err)
				m.faulted.Store(true)
				return
			}
			continue
		}
		failures = 0
		if d.Streaming() && d.ConsecutiveFailures() >= maxConsecutiveFailures {
			log.Errorf("stream worker failing, %d consecutive errors", d.ConsecutiveFailures())
			m.faulted.Store(true)
			return
		}

		seq := d.Seq()
		if seq == lastSeq {
			continue
		}
		lastSeq = seq
		m.push(frame(d))
		diagFrames++

		if diagDuration := time.Since(diagLastCheck).Seconds(); diagDuration >= 10 {
			log.Debugf("acquire fps: %3.1f", float64(diagFrames)/diagDuration)
			diagLastCheck = time.Now()
			diagFrames = 0
		}
	}
}

func (m *flockManager) start() error {
	m.touch()
	if m.currentDriver() != nil {
		return nil
	}
	rate := m.opt.Tracker.RateHz
	if rate <= 0 {
		rate = config.DefaultRateHz
	}
	d, err := OpenDriver(&m.opt.Tracker, m.open)
	if err != nil {
		return err
	}
	if m.opt.Tracker.Stream {
		if err := d.StartStream(); err != nil {
			log.Warnf("streaming unavailable, polling instead: %v", err)
		}
	}

	m.lock.Lock()
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.driver = d
	m.session = uuid.NewString()
	ctx := m.ctx
	m.lock.Unlock()

	m.faulted.Store(false)
	m.manuallyStopped.Store(false)
	m.wg.Add(1)
	go m.acquire(ctx, d, rate)
	log.Infof("manager started, session %s, %d trackers", m.Session(), d.TrackerCount())
	return nil
}

func (m *flockManager) stop(manual bool) error {
	m.touch()
	m.lock.Lock()
	d, cancel := m.driver, m.cancel
	m.lock.Unlock()
	if d == nil {
		return nil
	}
	cancel()
	m.wg.Wait()
	err := d.Close()

	m.lock.Lock()
	m.driver = nil
	m.counter = 0
	m.ringBuffer = make([]*sensor.Frame, BufLen)
	m.lock.Unlock()
	m.manuallyStopped.Store(manual)
	log.Infof("manager stopped")
	return err
}

// Start opens the trackers and starts acquisition
func (m *flockManager) Start() error {
	m.ctrl.Lock()
	defer m.ctrl.Unlock()
	return m.start()
}

// Stop stops acquisition and releases the trackers
func (m *flockManager) Stop() error {
	m.ctrl.Lock()
	defer m.ctrl.Unlock()
	return m.stop(true)
}

// Restart restarts the sensor manager
func (m *flockManager) Restart() error {
	m.ctrl.Lock()
	defer m.ctrl.Unlock()
	if err := m.stop(false); err != nil {
		log.Warnln(err)
	}
	return m.start()
}

// Close stops the manager for good and closes all subscriptions.
func (m *flockManager) Close() error {
	err := m.Stop()
	m.broker.Shutdown()
	return err
}

// Read returns the latest frame when cursor is negative, otherwise every
// frame after cursor still held in the ring buffer.
func (m *flockManager) Read(cursor int64) (int64, []*sensor.Frame, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	m.touch()

	if cursor < 0 {
		if m.counter == 0 {
			return -1, nil, manager.ErrNotReady
		}
		cursor = m.counter - 1
		return cursor, []*sensor.Frame{m.ringBuffer[cursor%BufLen]}, nil
	}

	start := cursor + 1
	if start > m.counter {
		// the manager restarted since cursor was handed out
		start = 0
	}
	if start >= m.counter {
		return cursor, nil, manager.ErrNoNewData
	}
	if m.counter-start > BufLen {
		start = m.counter - BufLen
	}
	res := make([]*sensor.Frame, 0, m.counter-start)
	for i := start; i < m.counter; i++ {
		res = append(res, m.ringBuffer[i%BufLen])
	}
	return m.counter - 1, res, nil
}

func (m *flockManager) Subscribe() chan interface{} {
	m.subscribers.Add(1)
	return m.broker.Sub(manager.FramesTopic)
}

func (m *flockManager) Unsubscribe(ch chan interface{}) {
	m.subscribers.Add(-1)
	m.broker.Unsub(ch, manager.FramesTopic)
}

func (m *flockManager) SetHemisphere(slot int, hemisphere string) error {
	m.touch()
	h, err := flock.ParseHemisphere(hemisphere)
	if err != nil {
		return err
	}
	d := m.currentDriver()
	if d == nil {
		return manager.ErrNotRunning
	}
	return d.SetHemisphere(slot, h)
}

func (m *flockManager) SetReferenceFrame(azimuth, elevation, roll float64) error {
	m.touch()
	d := m.currentDriver()
	if d == nil {
		return manager.ErrNotRunning
	}
	return d.SetReferenceFrame(azimuth, elevation, roll)
}

func (m *flockManager) SetAngleAlign(slot int, azimuth, elevation, roll float64) error {
	m.touch()
	d := m.currentDriver()
	if d == nil {
		return manager.ErrNotRunning
	}
	return d.SetAngleAlign(slot, azimuth, elevation, roll)
}

// SetStreaming switches between polled and streamed acquisition. The choice
// survives restarts.
func (m *flockManager) SetStreaming(on bool) error {
	m.ctrl.Lock()
	defer m.ctrl.Unlock()
	m.touch()
	d := m.currentDriver()
	if d == nil {
		return manager.ErrNotRunning
	}
	var err error
	if on {
		err = d.StartStream()
	} else {
		err = d.StopStream()
	}
	if err == nil {
		m.opt.Tracker.Stream = on
	}
	return err
}

// NewManager returns a manager for the trackers described by opt.
func NewManager(opt *config.FlockOpt) manager.Manager {
	return NewManagerWithOpener(opt, nil)
}

// NewManagerWithOpener is NewManager with the serial backend replaced.
func NewManagerWithOpener(opt *config.FlockOpt, open serialport.Opener) manager.Manager {
	m := &flockManager{
		opt:         opt,
		open:        open,
		broker:      pubsub.New(32),
		ringBuffer:  make([]*sensor.Frame, BufLen),
		idleTimeout: time.Second * 60,
	}
	m.touch()
	return m
}

// Daemon keeps m running until ctx ends: a faulted manager is restarted and
// an idle one is put to sleep.
func Daemon(ctx context.Context, m manager.Manager) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if m.Faulted() {
			log.Infoln("status is faulted, restarting")
			if err := m.Restart(); err != nil {
				log.Errorln(err)
			}
		} else if !m.Running() && !m.ManuallyStopped() {
			if err := m.Start(); err != nil {
				log.Errorln(err)
			}
		}
		_ = m.TrySleep()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
