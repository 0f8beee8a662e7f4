// Package flock drives Ascension Flock of Birds / MotionStar magnetic trackers
// over the FBB (Flock Bus). Devices are daisy-chained behind a master and are
// reached either through one shared serial cable with per-command address
// prefixes, or through one cable per device.
package flock

// RS232 commands.
const (
	CmdPoint           = 'B'
	CmdStream          = '@'
	CmdRun             = 'F'
	CmdSleep           = 'G'
	CmdExamineValue    = 'O'
	CmdChangeValue     = 'P'
	CmdHemisphere      = 'L'
	CmdReferenceFrame  = 'r'
	CmdAngleAlign      = 'q'
	CmdSync            = 'A'
	CmdNextTransmitter = '0'

	CmdPosition      = 'V'
	CmdAngles        = 'W'
	CmdMatrix        = 'X'
	CmdPosAngles     = 'Y'
	CmdPosMatrix     = 'Z'
	CmdQuaternion    = 0x5C
	CmdPosQuaternion = 0x5D
)

// Examine/change value parameter numbers.
const (
	ParamBirdStatus     = 0
	ParamRevision       = 1
	ParamCrystalSpeed   = 2
	ParamErrorCode      = 10
	ParamModelID        = 15
	ParamExpandedError  = 16
	ParamAddressingMode = 19
	ParamFBBAddress     = 21
	ParamGroupMode      = 35
	ParamFlockStatus    = 36
	ParamAutoConfig     = 50
)

// Bird status word bits (examine parameter 0, LSB first on the wire).
const (
	StatusMaster      = 1 << 15
	StatusInitialized = 1 << 14
	StatusError       = 1 << 13
	StatusRunning     = 1 << 12
	StatusExpanded    = 1 << 10
	StatusSleeping    = 1 << 5
	StatusStreaming   = 1 << 0
)

// Flock system status bits, one byte per bus address.
const (
	FlockAccessible = 0x80
	FlockRunning    = 0x40
	FlockSensor     = 0x20
	FlockERC        = 0x10
)

// PhaseBit marks the first byte of every record on the wire.
const PhaseBit = 0x80

const (
	// Full-scale position range in inches.
	StandardRange = 36.0
	ERCRange      = 144.0

	wordRange  = 32768.0
	angleScale = 180.0 / wordRange
	unitScale  = 1.0 / wordRange
)

const modelIDLen = 10

// ERCModel is the model id reported by an extended range controller.
const ERCModel = "6DERC"

// sensorModels lists the model ids of devices that carry a sensor.
var sensorModels = []string{
	"6DFOB",
	"6DBOF",
	"PCBIRD",
	"SPACEPAD",
	"MOTIONSTAR",
	"WIRELESS",
}

func isSensorModel(model string) bool {
	for _, m := range sensorModels {
		if model == m {
			return true
		}
	}
	return false
}

func isERCModel(model string) bool {
	return model == ERCModel
}

// ExamineLen is the size of the answer to an examine value request.
func ExamineLen(param byte, mode AddressingMode) int {
	switch param {
	case ParamErrorCode, ParamAddressingMode, ParamFBBAddress, ParamGroupMode:
		return 1
	case ParamModelID:
		return modelIDLen
	case ParamFlockStatus:
		return mode.MaxAddress()
	case ParamAutoConfig:
		return 5
	default:
		return 2
	}
}

// ChangeLen is the payload size of a change value request.
func ChangeLen(param byte) int {
	switch param {
	case ParamGroupMode, ParamAutoConfig, ParamFBBAddress:
		return 1
	default:
		return 2
	}
}
