package manager

import (
	"errors"
	"flock_apiserver/internal/sensor"
)

var (
	ErrNotRunning = errors.New("manager is not running")
	ErrNotReady   = errors.New("not ready")
	ErrNoNewData  = errors.New("no new data")
)

// AllTrackers addresses every tracker in per-tracker operations.
const AllTrackers = -1

// FramesTopic is the pubsub topic every acquired frame is published on.
const FramesTopic = "frames"

// Status summarizes a manager and the tracker installation it owns.
type Status struct {
	Running    bool   `json:"running"`
	Faulted    bool   `json:"faulted"`
	Streaming  bool   `json:"streaming"`
	Healthy    bool   `json:"healthy"`
	Session    string `json:"session"`
	Trackers   int    `json:"trackers"`
	Devices    int    `json:"devices"`
	ERCAddress int    `json:"erc_address"`
	Addressing string `json:"addressing"`
	Format     string `json:"format"`
	State      string `json:"state"`
	Frames     int64  `json:"frames"`
	Failures   int64  `json:"failures"`
}

type Manager interface {
	Start() error
	Stop() error
	Restart() error
	Close() error
	Read(int64) (int64, []*sensor.Frame, error)
	Running() bool
	ManuallyStopped() bool
	Faulted() bool
	ListDev() ([]string, error)
	ProbeDev() ([]string, error)
	TrySleep() error
	Session() string
	Status() Status

	// Subscribe returns a channel receiving every new *sensor.Frame. The
	// channel must be drained until it is closed by Unsubscribe.
	Subscribe() chan interface{}
	Unsubscribe(chan interface{})

	SetHemisphere(slot int, hemisphere string) error
	SetReferenceFrame(azimuth, elevation, roll float64) error
	SetAngleAlign(slot int, azimuth, elevation, roll float64) error
	SetStreaming(bool) error
}
