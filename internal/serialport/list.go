package serialport

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes one serial device found on the host.
type PortInfo struct {
	Name    string
	USB     bool
	VID     string
	PID     string
	Serial  string
	Product string
}

func (p PortInfo) String() string {
	if !p.USB {
		return p.Name
	}
	return fmt.Sprintf("%s [%s:%s %s %s]", p.Name, p.VID, p.PID, p.Product, p.Serial)
}

// List returns the serial devices present on the host.
func List() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		log.Errorln("error listing serial ports:", err)
		return nil, err
	}
	res := make([]PortInfo, 0, len(details))
	for _, d := range details {
		res = append(res, PortInfo{
			Name:    d.Name,
			USB:     d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	return res, nil
}
