package flock

import (
	"fmt"
	"time"

	"flock_apiserver/internal/sensor"
	"flock_apiserver/internal/serialport"
)

// Update acquires one sample set in polling mode. Requests are pipelined: the
// answer to the previous point request is read, published, and the next
// request goes out before Update returns. While streaming Update does nothing.
func (d *Driver) Update() error {
	switch d.State() {
	case Streaming:
		return nil
	case ShuttingDown, Stopped:
		return ErrClosed
	}
	d.ctrlMu.Lock()
	defer d.ctrlMu.Unlock()
	if st := d.State(); st != Initialized && st != Polling {
		if st == Streaming {
			return nil
		}
		return ErrClosed
	}
	d.state.Store(int32(Polling))
	if len(d.layout.slots) == 0 {
		return nil
	}

	if !d.pollPending {
		if err := d.requestPoint(); err != nil {
			return d.pollFailed(err)
		}
	}
	d.pollPending = false
	if err := d.readPoint(); err != nil {
		return d.pollFailed(err)
	}
	d.failures.Store(0)
	d.publish(d.pollMirror)

	if err := d.requestPoint(); err != nil {
		return d.pollFailed(err)
	}
	d.pollPending = true
	return nil
}

func (d *Driver) pollFailed(err error) error {
	d.pollPending = false
	for _, p := range d.ports {
		d.resync(p)
	}
	n := d.failures.Add(1)
	d.log.Debugf("poll failed (%d in a row): %v", n, err)
	return err
}

// requestPoint asks for one record set: from the master in group mode, from
// the lone bird in standalone mode, or from every tracker's own cable.
func (d *Driver) requestPoint() error {
	if !d.multi {
		return d.fbbCommand(0, CmdPoint)
	}
	for _, addr := range d.layout.slots {
		if err := d.fbbCommand(addr, CmdPoint); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) readPoint() error {
	if !d.multi {
		buf := make([]byte, d.groupLen)
		if err := d.readFull(d.ports[0], buf); err != nil {
			return err
		}
		return d.decodeRecord(buf, d.pollMirror)
	}
	buf := make([]byte, d.recLen)
	for slot, addr := range d.layout.slots {
		port, err := d.portFor(addr)
		if err != nil {
			return err
		}
		if err := d.readFull(port, buf); err != nil {
			return err
		}
		if err := d.decodeOne(buf, slot, d.pollMirror); err != nil {
			return err
		}
	}
	return nil
}

// decodeRecord decodes one update read from the shared cable into poses. In
// group mode the update holds one record per sensor-bearing bird, each
// followed by its bus address; records of birds without a slot are skipped.
func (d *Driver) decodeRecord(buf []byte, poses []sensor.Pose) error {
	if !d.group() {
		return d.decodeOne(buf, 0, poses)
	}
	stride := d.recLen + 1
	if len(buf) < stride*len(d.layout.sensors) {
		return fmt.Errorf("%w: group update of %d bytes", ErrShortRead, len(buf))
	}
	for i := range d.layout.sensors {
		rec := buf[i*stride : i*stride+d.recLen]
		addr := int(buf[i*stride+d.recLen])
		if err := checkPhase(rec); err != nil {
			return err
		}
		slot, ok := d.layout.slotByAddr[addr]
		if !ok {
			continue
		}
		if err := d.decodeOne(rec, slot, poses); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) decodeOne(rec []byte, slot int, poses []sensor.Pose) error {
	if err := checkPhase(rec); err != nil {
		return err
	}
	pose, err := Decode(d.format, rec, d.posRange)
	if err != nil {
		return err
	}
	poses[slot] = pose
	return nil
}

// checkPhase verifies that only the first byte of rec carries the phase bit.
func checkPhase(rec []byte) error {
	if len(rec) == 0 || rec[0]&PhaseBit == 0 {
		return ErrOutOfPhase
	}
	for _, b := range rec[1:] {
		if b&PhaseBit != 0 {
			return ErrOutOfPhase
		}
	}
	return nil
}

// StartStream switches the flock to continuous output and starts the worker
// that publishes every received update. Only a single shared cable streams.
func (d *Driver) StartStream() error {
	if d.multi {
		d.log.Warnln("stream requested on a multi-cable flock")
		return ErrNotStreamable
	}
	if err := d.lockIdle(true); err != nil {
		return err
	}
	defer d.ctrlMu.Unlock()
	if d.State() == Streaming {
		return nil
	}
	if len(d.layout.slots) == 0 {
		return fmt.Errorf("%w: no trackers", ErrInvalidTracker)
	}
	// A pending point answer would otherwise be taken for stream data.
	d.pollPending = false
	d.resync(d.ports[0])
	if err := d.fbbCommand(0, CmdStream); err != nil {
		return err
	}
	d.stopping.Store(false)
	d.workerDone = make(chan struct{})
	d.state.Store(int32(Streaming))
	go d.streamWorker(d.ports[0], d.workerDone)
	d.log.Infoln("streaming started")
	return nil
}

// StopStream halts the worker and returns to polling with the cable open.
func (d *Driver) StopStream() error {
	d.ctrlMu.Lock()
	defer d.ctrlMu.Unlock()
	if d.State() != Streaming {
		return nil
	}
	d.stopping.Store(true)
	<-d.workerDone
	d.pollPending = false
	d.state.Store(int32(Polling))
	d.log.Infoln("streaming stopped")
	return nil
}

func (d *Driver) streamWorker(port serialport.Port, done chan struct{}) {
	defer close(done)

	stride := d.groupLen
	budget := 4*stride + d.cfg.ReadRetries
	buf := make([]byte, stride)
	mirror := d.Snapshot()
	one := make([]byte, 1)

	readErrs := 0
	for !d.stopping.Load() {
		// Find the first byte of the next update.
		synced, failed := false, false
		for tries := 0; tries < budget && !d.stopping.Load(); tries++ {
			n, err := port.Read(one)
			if err != nil {
				failed = true
				d.failures.Add(1)
				if readErrs++; readErrs == 1 {
					d.log.Errorf("stream read: %v", err)
				} else {
					d.log.Debugf("stream read: %v (%d in a row)", err, readErrs)
				}
				break
			}
			if n == 1 && one[0]&PhaseBit != 0 {
				synced = true
				break
			}
		}
		if d.stopping.Load() {
			break
		}
		if failed {
			// The transport itself is failing; give it a read timeout to recover.
			time.Sleep(d.cfg.ReadTimeout)
			continue
		}
		readErrs = 0
		if !synced {
			n := d.failures.Add(1)
			d.log.Warnf("%v: no record start within %d reads (%d in a row)", ErrRetryExhausted, budget, n)
			d.resync(port)
			continue
		}
		buf[0] = one[0]
		if err := d.readFull(port, buf[1:]); err != nil {
			d.failures.Add(1)
			d.log.Debugf("stream: %v", err)
			continue
		}
		if err := d.decodeRecord(buf, mirror); err != nil {
			d.failures.Add(1)
			d.log.Debugf("stream: dropping update: %v", err)
			continue
		}
		d.failures.Store(0)
		d.publish(mirror)
	}

	// Any command ends stream mode; a point request is the harmless one. Its
	// answer is drained before the flush so the next poll starts in step.
	if err := d.fbbCommand(0, CmdPoint); err != nil {
		d.log.Debugf("stream stop: %v", err)
	} else if err := d.readFull(port, buf); err != nil {
		d.log.Debugf("stream stop: %v", err)
	}
	d.settle()
	d.resync(port)
	if d.closing.Load() {
		d.shutdownHardware()
	}
}
