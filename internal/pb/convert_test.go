package pb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock_apiserver/internal/sensor"
)

func TestFromFrame(t *testing.T) {
	assert.False(t, FromFrame(nil).Valid)

	f := &sensor.Frame{Seq: 3, Samples: []sensor.TrackerSample{{
		Pose:    sensor.IdentityPose(),
		ID:      "bird_2",
		Slot:    1,
		Address: 2,
		Seq:     3,
	}}}
	f.Samples[0].Position[1] = 4.5
	res := FromFrame(f)
	assert.True(t, res.Valid)
	assert.Equal(t, uint64(3), res.Seq)
	require.Len(t, res.Samples, 1)
	s := res.Samples[0]
	assert.Equal(t, "bird_2", s.Id)
	assert.Equal(t, int32(1), s.Slot)
	assert.Equal(t, int32(2), s.Address)
	assert.Equal(t, 4.5, s.PosY)
	assert.Equal(t, 1.0, s.QuatW)
	assert.Zero(t, s.QuatX)
}
