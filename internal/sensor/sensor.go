package sensor

import "github.com/go-gl/mathgl/mgl64"

// Pose is one position/orientation estimate in the output frame
// (right-handed, Y up). Position is in device units (inches).
type Pose struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

func IdentityPose() Pose {
	return Pose{Orientation: mgl64.QuatIdent()}
}

// TrackerSample is a Pose tagged with where and when it was acquired.
type TrackerSample struct {
	Pose
	ID       string
	Slot     int
	Address  int
	Seq      uint64
	SysTicks int64
}

// Frame is the set of samples taken from every tracker in one acquisition tick.
type Frame struct {
	Seq      uint64
	SysTicks int64
	Samples  []TrackerSample
}

type Tracker interface {
	// Update acquires one sample set when polling; it is a no-op while streaming.
	Update() error
	TrackerCount() int
	Sample(slot int) (Pose, error)
	// Snapshot returns all published poses, copied under one lock.
	Snapshot() []Pose
	// Address returns the bus address backing a tracker slot.
	Address(slot int) int
	StartStream() error
	StopStream() error
	Streaming() bool
	Healthy() bool
	Close() error
}
