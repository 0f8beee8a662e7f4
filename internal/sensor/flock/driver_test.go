package flock_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock_apiserver/internal/sensor"
	"flock_apiserver/internal/sensor/flock"
	"flock_apiserver/internal/sensor/flocksim"
	"flock_apiserver/internal/serialport"
)

const port = "/dev/ttySIM0"

func newConfig(bus *flocksim.Bus, names ...string) flock.Config {
	if len(names) == 0 {
		names = []string{port}
	}
	return flock.Config{
		Open:        bus.Opener(names...),
		Format:      flock.FormatPosQuaternion,
		ReadRetries: 3,
	}
}

func openShared(t *testing.T, bus *flocksim.Bus, cfg flock.Config) *flock.Driver {
	t.Helper()
	d, err := flock.NewSinglePort(port, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// expected returns the output pose of a bird at pos with the given heading,
// pitch and roll.
func expected(pos, angles mgl64.Vec3) sensor.Pose {
	a := flock.FrameAlign()
	rot := mgl64.QuatRotate(mgl64.DegToRad(angles[0]), mgl64.Vec3{0, 0, 1}).
		Mul(mgl64.QuatRotate(mgl64.DegToRad(angles[1]), mgl64.Vec3{1, 0, 0})).
		Mul(mgl64.QuatRotate(mgl64.DegToRad(angles[2]), mgl64.Vec3{0, 1, 0}))
	return sensor.Pose{
		Position:    a.Rotate(pos),
		Orientation: a.Mul(rot).Mul(a.Conjugate()),
	}
}

func assertPosition(t *testing.T, want, got mgl64.Vec3, delta float64) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], delta, "axis %d", i)
	}
}

func assertOrientation(t *testing.T, want, got mgl64.Quat, delta float64) {
	t.Helper()
	if want.Dot(got) < 0 {
		got = got.Scale(-1)
	}
	assert.InDelta(t, want.W, got.W, delta, "w")
	for i := range want.V {
		assert.InDelta(t, want.V[i], got.V[i], delta, "v%d", i)
	}
}

func TestSharedFlockWithERC(t *testing.T) {
	p1, p2 := mgl64.Vec3{40, 10, -5}, mgl64.Vec3{-20, 60, 12}
	bus := flocksim.NewBus(flocksim.Options{}, flocksim.NewERC(), flocksim.NewBird(p1), flocksim.NewBird(p2))
	cfg := newConfig(bus)
	cfg.Hemisphere = flock.Upper
	d := openShared(t, bus, cfg)

	assert.Equal(t, 2, d.TrackerCount())
	assert.Equal(t, 3, d.DeviceCount())
	assert.Equal(t, 1, d.ERCAddress())
	assert.Equal(t, 2, d.Address(0))
	assert.Equal(t, 3, d.Address(1))
	assert.Equal(t, flock.ERCRange, d.PositionRange())
	assert.Equal(t, flock.StandardAddressing, d.Addressing())
	assert.Equal(t, flock.Initialized, d.State())
	assert.True(t, d.Healthy())

	assert.True(t, bus.GroupMode())
	assert.Equal(t, 3, bus.AutoConfigured())
	assert.Equal(t, flock.FormatPosQuaternion, bus.Format(2))
	assert.Equal(t, [2]byte{0x0C, 0x01}, bus.Hemisphere(2))
	assert.Equal(t, [2]byte{0x0C, 0x01}, bus.Hemisphere(3))
	assert.Zero(t, bus.Commands(1, flock.CmdHemisphere))

	pose, err := d.Sample(0)
	require.NoError(t, err)
	assert.Equal(t, sensor.IdentityPose(), pose)

	require.NoError(t, d.Update())
	assert.Equal(t, flock.Polling, d.State())
	got := d.Snapshot()
	require.Len(t, got, 2)
	assertPosition(t, expected(p1, mgl64.Vec3{}).Position, got[0].Position, 0.02)
	assertPosition(t, expected(p2, mgl64.Vec3{}).Position, got[1].Position, 0.02)
}

func TestPollingIsPipelined(t *testing.T) {
	bus := flocksim.NewBus(flocksim.Options{}, flocksim.NewBird(mgl64.Vec3{1, 2, 3}))
	d := openShared(t, bus, newConfig(bus))

	require.NoError(t, d.Update())
	assert.Equal(t, 2, bus.Commands(1, flock.CmdPoint))
	require.NoError(t, d.Update())
	assert.Equal(t, 3, bus.Commands(1, flock.CmdPoint))
	assert.Equal(t, uint64(2), d.Seq())

	moved := mgl64.Vec3{-10, 5, 8}
	bus.SetPose(1, moved, mgl64.Vec3{})
	require.NoError(t, d.Update())
	require.NoError(t, d.Update())
	pose, err := d.Sample(0)
	require.NoError(t, err)
	assertPosition(t, expected(moved, mgl64.Vec3{}).Position, pose.Position, 0.01)
}

func TestAllFormatsAgree(t *testing.T) {
	pos, angles := mgl64.Vec3{10, -5, 3}, mgl64.Vec3{30, 20, -10}
	want := expected(pos, angles)
	formats := []flock.DataFormat{
		flock.FormatPosition, flock.FormatAngles, flock.FormatMatrix, flock.FormatQuaternion,
		flock.FormatPosAngles, flock.FormatPosMatrix, flock.FormatPosQuaternion,
	}
	for _, f := range formats {
		t.Run(f.String(), func(t *testing.T) {
			bird := flocksim.NewBird(pos)
			bird.Angles = angles
			bus := flocksim.NewBus(flocksim.Options{}, bird)
			cfg := newConfig(bus)
			cfg.Format = f
			d := openShared(t, bus, cfg)
			require.NoError(t, d.Update())
			pose, err := d.Sample(0)
			require.NoError(t, err)

			switch f {
			case flock.FormatPosition:
				assertOrientation(t, mgl64.QuatIdent(), pose.Orientation, 1e-9)
			case flock.FormatAngles, flock.FormatMatrix, flock.FormatQuaternion:
				assert.Equal(t, mgl64.Vec3{}, pose.Position)
				assertOrientation(t, want.Orientation, pose.Orientation, 2e-3)
			default:
				assertOrientation(t, want.Orientation, pose.Orientation, 2e-3)
			}
			if f != flock.FormatAngles && f != flock.FormatMatrix && f != flock.FormatQuaternion {
				assertPosition(t, want.Position, pose.Position, 0.01)
			}
			assert.InDelta(t, 1, pose.Orientation.Len(), 1e-9)
		})
	}
}

func TestInvalidFormatFallsBack(t *testing.T) {
	bus := flocksim.NewBus(flocksim.Options{}, flocksim.NewBird(mgl64.Vec3{}))
	cfg := newConfig(bus)
	cfg.Format = flock.DataFormat(99)
	d := openShared(t, bus, cfg)
	assert.Equal(t, flock.DefaultFormat, d.Format())
	assert.Equal(t, flock.DefaultFormat, bus.Format(1))
}

func TestExpectedTrackerCount(t *testing.T) {
	birds := []flocksim.Bird{
		flocksim.NewBird(mgl64.Vec3{1, 0, 0}),
		flocksim.NewBird(mgl64.Vec3{2, 0, 0}),
		flocksim.NewBird(mgl64.Vec3{3, 0, 0}),
	}

	bus := flocksim.NewBus(flocksim.Options{}, birds...)
	cfg := newConfig(bus)
	cfg.Expected = 2
	d := openShared(t, bus, cfg)
	assert.Equal(t, 2, d.TrackerCount())
	require.NoError(t, d.Update())
	pose, err := d.Sample(1)
	require.NoError(t, err)
	assertPosition(t, expected(mgl64.Vec3{2, 0, 0}, mgl64.Vec3{}).Position, pose.Position, 0.01)
	_, err = d.Sample(2)
	assert.ErrorIs(t, err, flock.ErrInvalidTracker)

	bus = flocksim.NewBus(flocksim.Options{}, birds[:2]...)
	cfg = newConfig(bus)
	cfg.Expected = 4
	d = openShared(t, bus, cfg)
	assert.Equal(t, 2, d.TrackerCount())
}

func TestNoTrackers(t *testing.T) {
	bus := flocksim.NewBus(flocksim.Options{}, flocksim.NewERC())
	d := openShared(t, bus, newConfig(bus))
	assert.Zero(t, d.TrackerCount())
	assert.NoError(t, d.Update())
	assert.Empty(t, d.Snapshot())
	assert.Error(t, d.StartStream())
}

func TestStandalone(t *testing.T) {
	pos := mgl64.Vec3{5, 5, 5}
	bus := flocksim.NewBus(flocksim.Options{Standalone: true}, flocksim.NewBird(pos))
	cfg := newConfig(bus)
	cfg.Mode = flock.StandaloneMode
	d := openShared(t, bus, cfg)

	assert.Equal(t, 1, d.TrackerCount())
	assert.Equal(t, 1, d.Address(0))
	assert.False(t, bus.GroupMode())
	require.NoError(t, d.Update())
	pose, err := d.Sample(0)
	require.NoError(t, err)
	assertPosition(t, expected(pos, mgl64.Vec3{}).Position, pose.Position, 0.01)

	require.NoError(t, d.SetHemisphere(0, flock.Left))
	assert.Equal(t, [2]byte{0x06, 0x01}, bus.Hemisphere(1))
}

func TestMultiPort(t *testing.T) {
	p1, p2 := mgl64.Vec3{3, 1, 0}, mgl64.Vec3{0, -7, 2}
	bus := flocksim.NewBus(flocksim.Options{}, flocksim.NewBird(p1), flocksim.NewBird(p2))
	names := []string{"/dev/ttySIM0", "/dev/ttySIM1"}
	d, err := flock.NewMultiPort(names, newConfig(bus, names...))
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, 2, d.TrackerCount())
	assert.False(t, bus.GroupMode())
	require.NoError(t, d.Update())
	got := d.Snapshot()
	assertPosition(t, expected(p1, mgl64.Vec3{}).Position, got[0].Position, 0.01)
	assertPosition(t, expected(p2, mgl64.Vec3{}).Position, got[1].Position, 0.01)

	assert.ErrorIs(t, d.StartStream(), flock.ErrNotStreamable)
	assert.False(t, d.Streaming())
	require.NoError(t, d.Update())
}

func TestStreaming(t *testing.T) {
	p1 := mgl64.Vec3{12, -3, 4}
	bus := flocksim.NewBus(flocksim.Options{}, flocksim.NewBird(p1), flocksim.NewBird(mgl64.Vec3{}))
	d := openShared(t, bus, newConfig(bus))

	require.NoError(t, d.Update())
	require.NoError(t, d.StartStream())
	assert.True(t, d.Streaming())
	assert.True(t, bus.Streaming())
	assert.NoError(t, d.Update())

	start := d.Seq()
	require.Eventually(t, func() bool { return d.Seq() > start+5 }, time.Second*2, time.Millisecond*5)
	pose, err := d.Sample(0)
	require.NoError(t, err)
	assertPosition(t, expected(p1, mgl64.Vec3{}).Position, pose.Position, 0.01)

	_, err = d.ExamineValue(1, flock.ParamBirdStatus)
	assert.ErrorIs(t, err, flock.ErrStreaming)

	require.NoError(t, d.SetHemisphere(flock.Broadcast, flock.Aft))
	assert.Equal(t, [2]byte{0x00, 0x01}, bus.Hemisphere(2))
	start = d.Seq()
	require.Eventually(t, func() bool { return d.Seq() > start+5 }, time.Second*2, time.Millisecond*5)

	require.NoError(t, d.StopStream())
	assert.Equal(t, flock.Polling, d.State())
	assert.False(t, bus.Streaming())

	moved := mgl64.Vec3{-1, -2, -3}
	bus.SetPose(1, moved, mgl64.Vec3{})
	require.NoError(t, d.Update())
	require.NoError(t, d.Update())
	pose, err = d.Sample(0)
	require.NoError(t, err)
	assertPosition(t, expected(moved, mgl64.Vec3{}).Position, pose.Position, 0.01)
}

// unpluggedPort fails every read while dead is set.
type unpluggedPort struct {
	serialport.Port
	dead  *atomic.Bool
	reads *atomic.Int64
}

func (p unpluggedPort) Read(b []byte) (int, error) {
	if p.dead.Load() {
		p.reads.Add(1)
		return 0, errors.New("device unplugged")
	}
	return p.Port.Read(b)
}

func TestStreamBacksOffOnDeadCable(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	bus := flocksim.NewBus(flocksim.Options{}, flocksim.NewBird(mgl64.Vec3{1, 2, 3}))
	var dead atomic.Bool
	var reads atomic.Int64
	cfg := newConfig(bus)
	cfg.ReadTimeout = time.Millisecond * 20
	open := cfg.Open
	cfg.Open = func(name string, baud int, timeout time.Duration) (serialport.Port, error) {
		p, err := open(name, baud, timeout)
		if err != nil {
			return nil, err
		}
		return unpluggedPort{Port: p, dead: &dead, reads: &reads}, nil
	}
	d := openShared(t, bus, cfg)
	require.NoError(t, d.StartStream())
	start := d.Seq()
	require.Eventually(t, func() bool { return d.Seq() > start }, time.Second, time.Millisecond*5)

	hook.Reset()
	dead.Store(true)
	time.Sleep(time.Millisecond * 200)

	n := reads.Load()
	assert.Positive(t, n)
	assert.LessOrEqual(t, n, int64(20))
	assert.InDelta(t, n, d.ConsecutiveFailures(), 1)
	errs := 0
	for _, e := range hook.AllEntries() {
		if e.Level == log.ErrorLevel {
			errs++
		}
	}
	assert.Equal(t, 1, errs)

	dead.Store(false)
	start = d.Seq()
	require.Eventually(t, func() bool { return d.Seq() > start }, time.Second, time.Millisecond*5)
	assert.Zero(t, d.ConsecutiveFailures())
	require.NoError(t, d.StopStream())
}

// lateFlushPort ignores flushes, as if the device answered after them.
type lateFlushPort struct {
	serialport.Port
}

func (lateFlushPort) Flush() error {
	return nil
}

func TestStopStreamDrainsPointAnswer(t *testing.T) {
	bus := flocksim.NewBus(flocksim.Options{}, flocksim.NewBird(mgl64.Vec3{4, 5, 6}), flocksim.NewBird(mgl64.Vec3{}))
	var opened serialport.Port
	cfg := newConfig(bus)
	open := cfg.Open
	cfg.Open = func(name string, baud int, timeout time.Duration) (serialport.Port, error) {
		p, err := open(name, baud, timeout)
		if err != nil {
			return nil, err
		}
		opened = lateFlushPort{Port: p}
		return opened, nil
	}
	d := openShared(t, bus, cfg)
	require.NoError(t, d.StartStream())
	start := d.Seq()
	require.Eventually(t, func() bool { return d.Seq() > start+2 }, time.Second, time.Millisecond*5)
	require.NoError(t, d.StopStream())

	n, err := opened.Read(make([]byte, 64))
	require.NoError(t, err)
	assert.Zero(t, n)

	moved := mgl64.Vec3{-4, 0, 2}
	bus.SetPose(1, moved, mgl64.Vec3{})
	require.NoError(t, d.Update())
	require.NoError(t, d.Update())
	pose, err := d.Sample(0)
	require.NoError(t, err)
	assertPosition(t, expected(moved, mgl64.Vec3{}).Position, pose.Position, 0.01)
}

func TestDeviceErrorMarksUnhealthy(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	bird := flocksim.NewBird(mgl64.Vec3{})
	bird.ErrorCode = 5
	bus := flocksim.NewBus(flocksim.Options{}, bird, flocksim.NewBird(mgl64.Vec3{}))
	d := openShared(t, bus, newConfig(bus))

	assert.False(t, d.Healthy())
	assert.Equal(t, 2, d.TrackerCount())
	found := false
	for _, e := range hook.AllEntries() {
		if e.Level == log.ErrorLevel && e.Message == (flock.DeviceError{Address: 1, Code: 5}).Error() {
			found = true
		}
	}
	assert.True(t, found)
}

func TestOutOfPhaseRecovery(t *testing.T) {
	pos := mgl64.Vec3{8, 8, -8}
	bus := flocksim.NewBus(flocksim.Options{}, flocksim.NewBird(pos), flocksim.NewBird(mgl64.Vec3{}))
	d := openShared(t, bus, newConfig(bus))
	require.NoError(t, d.Update())

	bus.InjectNoise(port, []byte{0x01, 0x02, 0x03})
	assert.ErrorIs(t, d.Update(), flock.ErrOutOfPhase)
	assert.Equal(t, int64(1), d.ConsecutiveFailures())

	require.NoError(t, d.Update())
	assert.Zero(t, d.ConsecutiveFailures())
	pose, err := d.Sample(0)
	require.NoError(t, err)
	assertPosition(t, expected(pos, mgl64.Vec3{}).Position, pose.Position, 0.01)
}

func TestHemisphereTargets(t *testing.T) {
	bus := flocksim.NewBus(flocksim.Options{}, flocksim.NewBird(mgl64.Vec3{}), flocksim.NewBird(mgl64.Vec3{}))
	d := openShared(t, bus, newConfig(bus))
	sent := bus.Commands(1, flock.CmdHemisphere) + bus.Commands(2, flock.CmdHemisphere)

	assert.ErrorIs(t, d.SetHemisphere(5, flock.Upper), flock.ErrInvalidTracker)
	assert.ErrorIs(t, d.SetHemisphere(0, flock.Hemisphere(9)), flock.ErrInvalidHemisphere)
	assert.Equal(t, sent, bus.Commands(1, flock.CmdHemisphere)+bus.Commands(2, flock.CmdHemisphere))

	require.NoError(t, d.SetHemisphere(1, flock.Left))
	assert.Equal(t, [2]byte{0x06, 0x01}, bus.Hemisphere(2))
	assert.Equal(t, [2]byte{0x00, 0x00}, bus.Hemisphere(1))

	require.NoError(t, d.SetHemisphere(flock.Broadcast, flock.Lower))
	assert.Equal(t, [2]byte{0x0C, 0x00}, bus.Hemisphere(1))
	assert.Equal(t, [2]byte{0x0C, 0x00}, bus.Hemisphere(2))
}

func TestExpandedAddressing(t *testing.T) {
	birds := make([]flocksim.Bird, 17)
	for i := range birds {
		birds[i] = flocksim.NewBird(mgl64.Vec3{float64(i), 0, 0})
	}
	bus := flocksim.NewBus(flocksim.Options{Addressing: flock.ExpandedAddressing}, birds...)
	d := openShared(t, bus, newConfig(bus))

	assert.Equal(t, flock.ExpandedAddressing, d.Addressing())
	require.Equal(t, 17, d.TrackerCount())
	assert.Equal(t, 17, d.Address(16))

	require.NoError(t, d.SetHemisphere(16, flock.Aft))
	assert.Equal(t, [2]byte{0x00, 0x01}, bus.Hemisphere(17))

	require.NoError(t, d.Update())
	pose, err := d.Sample(16)
	require.NoError(t, err)
	assertPosition(t, expected(mgl64.Vec3{16, 0, 0}, mgl64.Vec3{}).Position, pose.Position, 0.01)
}

func TestSuperExpandedAddressing(t *testing.T) {
	bus := flocksim.NewBus(flocksim.Options{Addressing: flock.SuperExpandedAddressing},
		flocksim.NewBird(mgl64.Vec3{}), flocksim.NewBird(mgl64.Vec3{}))
	d := openShared(t, bus, newConfig(bus))
	assert.Equal(t, flock.SuperExpandedAddressing, d.Addressing())
	require.NoError(t, d.SetHemisphere(1, flock.Right))
	assert.Equal(t, [2]byte{0x06, 0x00}, bus.Hemisphere(2))
}

func TestOldFirmwareUsesStatusWord(t *testing.T) {
	for _, mode := range []flock.AddressingMode{flock.StandardAddressing, flock.ExpandedAddressing} {
		bird := flocksim.NewBird(mgl64.Vec3{})
		bird.Revision = flock.Revision{Major: 3, Minor: 33}
		bus := flocksim.NewBus(flocksim.Options{Addressing: mode}, bird)
		d := openShared(t, bus, newConfig(bus))
		assert.Equal(t, mode, d.Addressing())
		assert.Equal(t, 1, d.TrackerCount())
	}
}

func TestDeviceControl(t *testing.T) {
	bus := flocksim.NewBus(flocksim.Options{}, flocksim.NewBird(mgl64.Vec3{}), flocksim.NewBird(mgl64.Vec3{}))
	d := openShared(t, bus, newConfig(bus))

	info, err := d.DeviceInfo(2)
	require.NoError(t, err)
	assert.Equal(t, "6DFOB", info.Model)
	assert.Equal(t, flock.Revision{Major: 3, Minor: 67}, info.Revision)
	assert.Equal(t, 25, info.CrystalMHz)
	assert.Zero(t, info.ErrorCode)

	require.NoError(t, d.SetReferenceFrame(90, 0, 0))
	assert.Equal(t, []byte{0x00, 0x40, 0, 0, 0, 0}, bus.ReferenceFrame(1))
	assert.Equal(t, []byte{0x00, 0x40, 0, 0, 0, 0}, bus.ReferenceFrame(2))

	require.NoError(t, d.SetAngleAlign(1, 0, 90, 0))
	assert.Equal(t, []byte{0, 0, 0x00, 0x40, 0, 0}, bus.AngleAlign(2))
	assert.Nil(t, bus.AngleAlign(1))
	assert.ErrorIs(t, d.SetAngleAlign(7, 0, 0, 0), flock.ErrInvalidTracker)

	require.NoError(t, d.SetSyncMode(1))
	assert.Equal(t, byte(1), bus.SyncMode())
	require.NoError(t, d.NextTransmitter(1, 2))
	assert.Equal(t, byte(0x12), bus.Transmitter())
	assert.ErrorIs(t, d.NextTransmitter(1, 9), flock.ErrInvalidAddress)

	require.NoError(t, d.Run())
	assert.False(t, bus.Sleeping())
	require.NoError(t, d.Sleep())
	assert.True(t, bus.Sleeping())

	b, err := d.ExamineValue(1, flock.ParamFBBAddress)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, b)
	require.NoError(t, d.ChangeValue(0, flock.ParamGroupMode, 0))
	assert.False(t, bus.GroupMode())
}

func TestClose(t *testing.T) {
	bus := flocksim.NewBus(flocksim.Options{}, flocksim.NewBird(mgl64.Vec3{}))
	d := openShared(t, bus, newConfig(bus))
	require.NoError(t, d.Update())

	require.NoError(t, d.Close())
	assert.Equal(t, flock.Stopped, d.State())
	assert.True(t, bus.Closed(port))
	assert.True(t, bus.Sleeping())
	assert.ErrorIs(t, d.Update(), flock.ErrClosed)
	assert.ErrorIs(t, d.StartStream(), flock.ErrClosed)
	assert.NoError(t, d.Close())
}

func TestCloseWhileStreaming(t *testing.T) {
	bus := flocksim.NewBus(flocksim.Options{}, flocksim.NewBird(mgl64.Vec3{}))
	d := openShared(t, bus, newConfig(bus))
	require.NoError(t, d.StartStream())

	require.NoError(t, d.Close())
	assert.Equal(t, flock.Stopped, d.State())
	assert.False(t, bus.Streaming())
	assert.True(t, bus.Closed(port))
}

func TestOpenFailure(t *testing.T) {
	bus := flocksim.NewBus(flocksim.Options{}, flocksim.NewBird(mgl64.Vec3{}))
	d, err := flock.NewSinglePort("/dev/missing", newConfig(bus))
	assert.Error(t, err)
	assert.Nil(t, d)

	names := []string{"/dev/ttySIM0", "/dev/ttySIM1"}
	cfg := newConfig(bus, names[0])
	d, err = flock.NewMultiPort(names, cfg)
	assert.Error(t, err)
	assert.Nil(t, d)
	assert.True(t, bus.Closed(names[0]))
}
