// Package pb holds the messages and service descriptor of the TrackerService.
// Messages are plain structs carried by the json codec registered in codec.go.
package pb

type Empty struct{}

// TrackerSample is one tracker pose. Positions are in inches, orientations
// are unit quaternions, both in the right-handed Y-up output frame.
type TrackerSample struct {
	Id       string  `json:"id"`
	Slot     int32   `json:"slot"`
	Address  int32   `json:"address"`
	PosX     float64 `json:"pos_x"`
	PosY     float64 `json:"pos_y"`
	PosZ     float64 `json:"pos_z"`
	QuatW    float64 `json:"quat_w"`
	QuatX    float64 `json:"quat_x"`
	QuatY    float64 `json:"quat_y"`
	QuatZ    float64 `json:"quat_z"`
	Seq      uint64  `json:"seq"`
	SysTicks int64   `json:"sys_ticks"`
}

type Frame struct {
	Samples  []*TrackerSample `json:"samples"`
	Seq      uint64           `json:"seq"`
	SysTicks int64            `json:"sys_ticks"`
	Valid    bool             `json:"valid"`
}

type FrameRequest struct {
	Timestamp uint64 `json:"timestamp"`
}

// FrameStreamRequest starts a frame stream after Cursor. A negative cursor
// starts at the newest frame.
type FrameStreamRequest struct {
	Cursor int64 `json:"cursor"`
}

type FrameStreamResponse struct {
	Frames []*Frame `json:"frames"`
	Cursor int64    `json:"cursor"`
	Valid  bool     `json:"valid"`
}

type StatusResponse struct {
	Status     bool   `json:"status"`
	Err        string `json:"err"`
	Faulted    bool   `json:"faulted"`
	Streaming  bool   `json:"streaming"`
	Healthy    bool   `json:"healthy"`
	Session    string `json:"session"`
	Trackers   int32  `json:"trackers"`
	Addressing string `json:"addressing"`
	Format     string `json:"format"`
	State      string `json:"state"`
}

type SetStatusRequest struct {
	Status bool `json:"status"`
}

type TrackerList struct {
	Ids []string `json:"ids"`
}

// HemisphereRequest addresses every tracker when Slot is -1.
type HemisphereRequest struct {
	Slot       int32  `json:"slot"`
	Hemisphere string `json:"hemisphere"`
}

// AnglesRequest carries azimuth, elevation and roll in degrees. Slot is
// ignored for the reference frame, which is set on every tracker.
type AnglesRequest struct {
	Slot      int32   `json:"slot"`
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
	Roll      float64 `json:"roll"`
}

type StreamingRequest struct {
	Streaming bool `json:"streaming"`
}
