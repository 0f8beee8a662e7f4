package flock

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTracker    = errors.New("invalid tracker index")
	ErrInvalidHemisphere = errors.New("invalid hemisphere")
	ErrInvalidAddress    = errors.New("invalid bus address")
	ErrNotStreamable     = errors.New("streaming requires a single shared cable")
	ErrShortRead         = errors.New("short read")
	ErrOutOfPhase        = errors.New("record out of phase")
	ErrRetryExhausted    = errors.New("retry budget exhausted")
	ErrClosed            = errors.New("driver closed")
	ErrStreaming         = errors.New("driver is streaming")
)

// DeviceError is a vendor error code reported by one bird.
type DeviceError struct {
	Address int
	Code    byte
}

func (e DeviceError) Error() string {
	return fmt.Sprintf("bird %d: error %d: %s", e.Address, e.Code, ErrorMessage(e.Code))
}

var errorMessages = map[byte]string{
	1:  "system RAM failure",
	2:  "non-volatile storage write failure",
	3:  "PCB configuration data corrupt",
	4:  "transmitter calibration data corrupt or not connected",
	5:  "sensor calibration data corrupt or not connected",
	6:  "invalid RS232 command",
	7:  "not an FBB master",
	8:  "no birds accessible in device list",
	9:  "bird is not initialized",
	10: "FBB serial port receive error, intra bird bus",
	11: "RS232 serial port receive error",
	12: "FBB serial port receive error, FBB host bus",
	13: "no FBB command response",
	14: "invalid FBB host command",
	15: "FBB run time error",
	16: "invalid CPU speed",
	17: "no FBB data",
	18: "illegal baud rate",
	19: "slave acknowledge error",
	20: "CPU error: unused interrupt",
	21: "CPU error: divide by zero",
	22: "CPU error: single step",
	23: "CPU error: non-maskable interrupt",
	24: "CPU error: breakpoint",
	25: "CPU error: overflow",
	26: "CPU error: array bounds",
	27: "CPU error: invalid opcode",
	28: "CRT synchronization",
	29: "transmitter not accessible",
	30: "extended range transmitter not attached",
	31: "CPU time overflow",
	32: "sensor saturated",
	33: "slave configuration",
	34: "watch dog timer",
	35: "over temperature",
}

// ErrorMessage names a vendor error code.
func ErrorMessage(code byte) string {
	if code == 0 {
		return "no error"
	}
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("unknown error code %d", code)
}
