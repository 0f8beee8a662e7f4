package flock

import (
	"fmt"
	"strings"
)

// AddressingMode is the FBB addressing scheme the flock firmware runs.
type AddressingMode int

const (
	StandardAddressing AddressingMode = iota
	ExpandedAddressing
	SuperExpandedAddressing
)

func (m AddressingMode) String() string {
	switch m {
	case StandardAddressing:
		return "standard"
	case ExpandedAddressing:
		return "expanded"
	case SuperExpandedAddressing:
		return "super-expanded"
	default:
		return fmt.Sprintf("AddressingMode(%d)", int(m))
	}
}

// MaxAddress is the highest bus address of the mode. It is also the length
// of the flock system status record.
func (m AddressingMode) MaxAddress() int {
	switch m {
	case ExpandedAddressing:
		return 30
	case SuperExpandedAddressing:
		return 126
	default:
		return 14
	}
}

const (
	toFBBStandard      = 0xF0
	toFBBExpandedHigh  = 0xE0
	toFBBSuperExpanded = 0xA0
)

// EncodeAddress returns the bytes that route the following command to addr
// over the shared cable. Address 0 is the device on the master cable and
// takes no prefix.
func EncodeAddress(mode AddressingMode, addr int) ([]byte, error) {
	if addr == 0 {
		return nil, nil
	}
	if addr < 0 || addr > mode.MaxAddress() {
		return nil, fmt.Errorf("address %d out of range for %s addressing", addr, mode)
	}
	switch mode {
	case ExpandedAddressing:
		if addr > 15 {
			return []byte{byte(toFBBExpandedHigh + addr - 16)}, nil
		}
		return []byte{byte(toFBBStandard + addr)}, nil
	case SuperExpandedAddressing:
		return []byte{toFBBSuperExpanded, byte(addr)}, nil
	default:
		return []byte{byte(toFBBStandard + addr)}, nil
	}
}

// DecodeAddress parses an address prefix at the start of b. It returns the
// address and the number of prefix bytes consumed; 0 bytes means b carries no
// prefix and is aimed at the master cable's device.
func DecodeAddress(mode AddressingMode, b []byte) (int, int) {
	if len(b) == 0 {
		return 0, 0
	}
	switch mode {
	case SuperExpandedAddressing:
		if b[0] == toFBBSuperExpanded && len(b) >= 2 {
			return int(b[1]), 2
		}
	case ExpandedAddressing:
		if b[0]&0xF0 == toFBBStandard && b[0] != toFBBStandard {
			return int(b[0] & 0x0F), 1
		}
		if b[0]&0xF0 == toFBBExpandedHigh {
			return int(b[0]&0x0F) + 16, 1
		}
	default:
		if b[0]&0xF0 == toFBBStandard && b[0] != toFBBStandard && int(b[0]&0x0F) <= mode.MaxAddress() {
			return int(b[0] & 0x0F), 1
		}
	}
	return 0, 0
}

// Revision is a firmware revision as reported by examine value parameter 1.
type Revision struct {
	Major int
	Minor int
}

func (r Revision) String() string {
	return fmt.Sprintf("%d.%d", r.Major, r.Minor)
}

func (r Revision) AtLeast(major, minor int) bool {
	return r.Major > major || (r.Major == major && r.Minor >= minor)
}

// EffectiveRevision normalizes a reported revision for capability checks.
// An ERC reports a major revision one above the matching bird firmware.
func EffectiveRevision(model string, reported Revision) Revision {
	if isERCModel(strings.TrimSpace(model)) && reported.Major > 0 {
		reported.Major--
	}
	return reported
}

// addressingQueryRevision is the first firmware able to report its
// addressing mode directly.
var addressingQueryRevision = Revision{Major: 3, Minor: 67}

func supportsAddressingQuery(r Revision) bool {
	return r.AtLeast(addressingQueryRevision.Major, addressingQueryRevision.Minor)
}

// modeFromQuery interprets the answer to examine parameter 19.
func modeFromQuery(b byte) (AddressingMode, bool) {
	switch b {
	case 'N':
		return StandardAddressing, true
	case 'E':
		return ExpandedAddressing, true
	case 'S':
		return SuperExpandedAddressing, true
	}
	return StandardAddressing, false
}

// modeFromStatus interprets the bird status word of older firmware, which
// can only flag expanded addressing.
func modeFromStatus(status uint16) AddressingMode {
	if status&StatusExpanded != 0 {
		return ExpandedAddressing
	}
	return StandardAddressing
}
