package flock

import (
	"fmt"
	"strings"
)

// DataFormat selects the record layout every bird transmits.
type DataFormat int

const (
	FormatPosition DataFormat = iota
	FormatAngles
	FormatMatrix
	FormatQuaternion
	FormatPosAngles
	FormatPosMatrix
	FormatPosQuaternion
)

// DefaultFormat is the richest layout and the substitute for unknown tags.
const DefaultFormat = FormatPosQuaternion

type formatLayout struct {
	name    string
	command byte
	words   int
}

var layouts = map[DataFormat]formatLayout{
	FormatPosition:      {"position", CmdPosition, 3},
	FormatAngles:        {"angles", CmdAngles, 3},
	FormatMatrix:        {"matrix", CmdMatrix, 9},
	FormatQuaternion:    {"quaternion", CmdQuaternion, 4},
	FormatPosAngles:     {"pos_angles", CmdPosAngles, 6},
	FormatPosMatrix:     {"pos_matrix", CmdPosMatrix, 12},
	FormatPosQuaternion: {"pos_quat", CmdPosQuaternion, 7},
}

func (f DataFormat) Valid() bool {
	_, ok := layouts[f]
	return ok
}

func (f DataFormat) String() string {
	if l, ok := layouts[f]; ok {
		return l.name
	}
	return fmt.Sprintf("DataFormat(%d)", int(f))
}

// Command is the mode-select command byte of the format.
func (f DataFormat) Command() byte {
	return layouts[f].command
}

// RecordLen is the per-device record size in bytes.
func (f DataFormat) RecordLen() int {
	return layouts[f].words * 2
}

func (f DataFormat) hasPosition() bool {
	switch f {
	case FormatPosition, FormatPosAngles, FormatPosMatrix, FormatPosQuaternion:
		return true
	}
	return false
}

// ParseFormat maps a configuration name to a format tag.
func ParseFormat(s string) (DataFormat, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, l := range layouts {
		if l.name == s {
			return f, nil
		}
	}
	return DefaultFormat, fmt.Errorf("unknown data format %q", s)
}

// GroupRecordLen is the size of one update covering n devices. Group mode
// appends each device's bus address to its record.
func GroupRecordLen(f DataFormat, n int, group bool) int {
	per := f.RecordLen()
	if group {
		per++
	}
	return per * n
}
