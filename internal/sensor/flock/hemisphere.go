package flock

import (
	"fmt"
	"strings"
)

// Hemisphere is the half-space around the transmitter the sensors operate in.
type Hemisphere int

const (
	Forward Hemisphere = iota
	Aft
	Upper
	Lower
	Left
	Right
)

var hemisphereNames = []string{"forward", "aft", "upper", "lower", "left", "right"}

// hemisphereBytes are the two argument bytes of the hemisphere command.
var hemisphereBytes = [][2]byte{
	Forward: {0x00, 0x00},
	Aft:     {0x00, 0x01},
	Upper:   {0x0C, 0x01},
	Lower:   {0x0C, 0x00},
	Left:    {0x06, 0x01},
	Right:   {0x06, 0x00},
}

func (h Hemisphere) Valid() bool {
	return h >= Forward && h <= Right
}

func (h Hemisphere) String() string {
	if !h.Valid() {
		return fmt.Sprintf("Hemisphere(%d)", int(h))
	}
	return hemisphereNames[h]
}

// Bytes returns the command argument pair.
func (h Hemisphere) Bytes() ([2]byte, error) {
	if !h.Valid() {
		return [2]byte{}, fmt.Errorf("%w: %d", ErrInvalidHemisphere, int(h))
	}
	return hemisphereBytes[h], nil
}

func ParseHemisphere(s string) (Hemisphere, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range hemisphereNames {
		if n == s {
			return Hemisphere(i), nil
		}
	}
	switch s {
	case "rear", "back":
		return Aft, nil
	case "front":
		return Forward, nil
	}
	return Forward, fmt.Errorf("%w: %q", ErrInvalidHemisphere, s)
}
