package grpc_test

import (
	"context"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"flock_apiserver/internal/config"
	controller "flock_apiserver/internal/controller/grpc"
	managerImpl "flock_apiserver/internal/manager/flock"
	"flock_apiserver/internal/pb"
)

func newClient(t *testing.T) pb.TrackerServiceClient {
	t.Helper()
	opt := config.NewFlockOpt()
	opt.Tracker.Transport = managerImpl.TransportSim
	opt.Tracker.Ports = []string{"sim0"}
	opt.Tracker.RateHz = 200
	opt.Tracker.SettleMs = 0
	m := managerImpl.NewManager(&opt)
	t.Cleanup(func() { _ = m.Close() })

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	pb.RegisterTrackerServiceServer(s, controller.NewGRPCServer(m))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return pb.NewTrackerServiceClient(conn)
}

func TestTrackerService(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	st, err := c.GetStatus(ctx, &pb.Empty{})
	require.NoError(t, err)
	assert.False(t, st.Status)
	_, err = c.GetFrame(ctx, &pb.FrameRequest{})
	assert.Error(t, err)

	st, err = c.SetStatus(ctx, &pb.SetStatusRequest{Status: true})
	require.NoError(t, err)
	assert.True(t, st.Status)
	assert.Empty(t, st.Err)
	assert.Equal(t, int32(2), st.Trackers)
	assert.NotEmpty(t, st.Session)

	list, err := c.ListTrackers(ctx, &pb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, []string{"bird_1", "bird_2"}, list.Ids)

	var frame *pb.Frame
	require.Eventually(t, func() bool {
		frame, err = c.GetFrame(ctx, &pb.FrameRequest{Timestamp: uint64(time.Now().UnixNano())})
		return err == nil
	}, time.Second*3, time.Millisecond*10)
	assert.True(t, frame.Valid)
	require.Len(t, frame.Samples, 2)
	s := frame.Samples[0]
	assert.Equal(t, "bird_1", s.Id)
	norm := math.Sqrt(s.QuatW*s.QuatW + s.QuatX*s.QuatX + s.QuatY*s.QuatY + s.QuatZ*s.QuatZ)
	assert.InDelta(t, 1.0, norm, 1e-9)

	_, err = c.SetHemisphere(ctx, &pb.HemisphereRequest{Slot: -1, Hemisphere: "upper"})
	assert.NoError(t, err)
	_, err = c.SetHemisphere(ctx, &pb.HemisphereRequest{Slot: 0, Hemisphere: "inside"})
	assert.ErrorContains(t, err, "hemisphere")
	_, err = c.SetReferenceFrame(ctx, &pb.AnglesRequest{Azimuth: 90})
	assert.NoError(t, err)
	_, err = c.SetAngleAlign(ctx, &pb.AnglesRequest{Slot: 1, Roll: 45})
	assert.NoError(t, err)

	st, err = c.SetStreaming(ctx, &pb.StreamingRequest{Streaming: true})
	require.NoError(t, err)
	assert.True(t, st.Streaming)
	assert.Equal(t, "streaming", st.State)

	st, err = c.SetStatus(ctx, &pb.SetStatusRequest{Status: false})
	require.NoError(t, err)
	assert.False(t, st.Status)
	_, err = c.ListTrackers(ctx, &pb.Empty{})
	assert.Error(t, err)
}

func TestFrameStream(t *testing.T) {
	c := newClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := c.SetStatus(ctx, &pb.SetStatusRequest{Status: true})
	require.NoError(t, err)

	stream, err := c.GetFrameStream(ctx, &pb.FrameStreamRequest{Cursor: -1})
	require.NoError(t, err)

	var last int64 = -1
	for i := 0; i < 3; i++ {
		resp, err := stream.Recv()
		require.NoError(t, err)
		assert.True(t, resp.Valid)
		require.NotEmpty(t, resp.Frames)
		assert.Greater(t, resp.Cursor, last)
		assert.Equal(t, uint64(resp.Cursor), resp.Frames[len(resp.Frames)-1].Seq)
		last = resp.Cursor
	}
}
