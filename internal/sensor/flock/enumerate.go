package flock

import (
	log "github.com/sirupsen/logrus"
)

// busLayout is what enumeration learned about the bus.
type busLayout struct {
	// devices is the number of contiguous accessible addresses from 1.
	devices int
	// erc is the extended range controller address, 0 when absent.
	erc int
	// sensors lists every sensor-bearing address, including any dropped
	// from slots; in group mode they all still transmit.
	sensors []int
	// slots maps a tracker slot to its bus address.
	slots      []int
	slotByAddr map[int]int
	models     map[int]string
}

// countAccessible returns how many addresses, from 1 upward, answer on the
// bus. The first inaccessible address ends the chain.
func countAccessible(status []byte) int {
	n := 0
	for _, b := range status {
		if b&FlockAccessible == 0 {
			break
		}
		n++
	}
	return n
}

// enumerate classifies the devices behind a flock status record. modelOf is
// asked for the model id of every accessible address.
func enumerate(status []byte, modelOf func(addr int) (string, error), logger *log.Entry) busLayout {
	l := busLayout{
		devices:    countAccessible(status),
		slotByAddr: make(map[int]int),
		models:     make(map[int]string),
	}
	for addr := 1; addr <= l.devices; addr++ {
		model, err := modelOf(addr)
		if err != nil {
			logger.Warnf("bird %d: model query failed: %v", addr, err)
			continue
		}
		l.models[addr] = model
		switch {
		case isERCModel(model):
			if l.erc != 0 {
				logger.Warnf("bird %d: second extended range controller ignored, keeping %d", addr, l.erc)
				continue
			}
			l.erc = addr
		case isSensorModel(model):
			l.sensors = append(l.sensors, addr)
			l.slotByAddr[addr] = len(l.slots)
			l.slots = append(l.slots, addr)
		default:
			logger.Debugf("bird %d: model %q carries no sensor", addr, model)
		}
	}
	return l
}

// reconcile applies the caller's expected tracker count. Fewer trackers than
// expected is only reported; surplus trackers past the expectation are dropped.
// l itself is left untouched.
func (l busLayout) reconcile(expected int, logger *log.Entry) busLayout {
	if expected <= 0 || expected == len(l.slots) {
		return l
	}
	if len(l.slots) < expected {
		logger.Warnf("expected %d trackers, found %d", expected, len(l.slots))
		return l
	}
	logger.Warnf("expected %d trackers, found %d: ignoring birds %v", expected, len(l.slots), l.slots[expected:])
	byAddr := make(map[int]int, expected)
	for slot, addr := range l.slots[:expected] {
		byAddr[addr] = slot
	}
	l.slotByAddr = byAddr
	l.slots = l.slots[:expected:expected]
	return l
}

func (l busLayout) posRange() float64 {
	if l.erc != 0 {
		return ERCRange
	}
	return StandardRange
}
