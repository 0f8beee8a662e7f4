package pb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	assert.Equal(t, CodecName, c.Name())
}

func TestCodecFieldNames(t *testing.T) {
	c := jsonCodec{}
	b, err := c.Marshal(&Frame{
		Samples: []*TrackerSample{{Id: "bird_1", Address: 1, QuatW: 1}},
		Seq:     7,
		Valid:   true,
	})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"id":"bird_1"`)
	assert.Contains(t, string(b), `"quat_w":1`)
	assert.Contains(t, string(b), `"seq":7`)

	var f Frame
	require.NoError(t, c.Unmarshal(b, &f))
	require.Len(t, f.Samples, 1)
	assert.Equal(t, int32(1), f.Samples[0].Address)
	assert.True(t, f.Valid)
}

func TestDescriptorCoversServer(t *testing.T) {
	names := map[string]bool{}
	for _, m := range TrackerService_ServiceDesc.Methods {
		names[m.MethodName] = true
	}
	for _, want := range []string{"ListTrackers", "GetStatus", "SetStatus", "GetFrame", "SetHemisphere", "SetReferenceFrame", "SetAngleAlign", "SetStreaming"} {
		assert.True(t, names[want], want)
	}
	require.Len(t, TrackerService_ServiceDesc.Streams, 1)
	assert.True(t, TrackerService_ServiceDesc.Streams[0].ServerStreams)
}
