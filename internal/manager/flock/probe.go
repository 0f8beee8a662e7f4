package flock

import (
	"errors"
	"flock_apiserver/internal/sensor/flock"
	"flock_apiserver/internal/serialport"
	"fmt"
	log "github.com/sirupsen/logrus"
	"strings"
	"time"
	"unicode"
)

const probeTimeout = time.Millisecond * 200

// probePort asks whatever answers on name for its model id, without any
// address prefix, the way a lone bird or a flock master is reached.
func probePort(open serialport.Opener, name string, baud int) (string, bool) {
	p, err := open(name, baud, probeTimeout)
	if err != nil {
		log.Debugf("probe %s: %v", name, err)
		return "", false
	}
	defer func() { _ = p.Close() }()
	fmt.Print(".")

	_ = p.Flush()
	if _, err := p.Write([]byte{flock.CmdExamineValue, flock.ParamModelID}); err != nil {
		return "", false
	}
	buf := make([]byte, flock.ExamineLen(flock.ParamModelID, flock.StandardAddressing))
	got := 0
	for tries := 0; got < len(buf) && tries < 5; tries++ {
		n, err := p.Read(buf[got:])
		if err != nil {
			return "", false
		}
		got += n
	}
	if got < len(buf) {
		return "", false
	}
	model := strings.TrimSpace(strings.TrimRight(string(buf), "\x00"))
	if model == "" {
		return "", false
	}
	for _, r := range model {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return "", false
		}
	}
	return model, true
}

// ProbeDev scans the host's serial ports for a bird that answers a model
// id query at the configured baud rate.
func (m *flockManager) ProbeDev() ([]string, error) {
	t := &m.opt.Tracker
	open := m.open
	var names []string
	switch {
	case open == nil && strings.EqualFold(t.Transport, TransportSim):
		names = simPorts(t)
		open = NewSimBus(t).Opener(names...)
	case open != nil:
		names = t.Ports
	default:
		var err error
		if open, err = serialport.OpenerFor(t.Transport); err != nil {
			return nil, err
		}
		ports, err := serialport.List()
		if err != nil {
			return nil, err
		}
		for _, p := range ports {
			log.Debugf("found %s", p)
			names = append(names, p.Name)
		}
	}

	var validPorts []string
	for _, name := range names {
		if model, ok := probePort(open, name, t.Baud); ok {
			validPorts = append(validPorts, fmt.Sprintf("%s (%s)", name, model))
		}
	}
	fmt.Println()

	if len(validPorts) == 0 {
		return nil, errors.New("no flock devices found")
	}
	return validPorts, nil
}
