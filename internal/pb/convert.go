package pb

import "flock_apiserver/internal/sensor"

func fromSample(sample *sensor.TrackerSample) *TrackerSample {
	q := sample.Orientation
	return &TrackerSample{
		Id:       sample.ID,
		Slot:     int32(sample.Slot),
		Address:  int32(sample.Address),
		PosX:     sample.Position[0],
		PosY:     sample.Position[1],
		PosZ:     sample.Position[2],
		QuatW:    q.W,
		QuatX:    q.V[0],
		QuatY:    q.V[1],
		QuatZ:    q.V[2],
		Seq:      sample.Seq,
		SysTicks: sample.SysTicks,
	}
}

// FromFrame converts a manager frame into its wire form. A nil frame is
// returned as an invalid one.
func FromFrame(frame *sensor.Frame) *Frame {
	if frame == nil {
		return &Frame{Valid: false}
	}
	res := &Frame{
		Samples:  make([]*TrackerSample, len(frame.Samples)),
		Seq:      frame.Seq,
		SysTicks: frame.SysTicks,
		Valid:    true,
	}
	for i := range frame.Samples {
		res.Samples[i] = fromSample(&frame.Samples[i])
	}
	return res
}
