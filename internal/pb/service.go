package pb

import (
	"context"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	TrackerService_ListTrackers_FullMethodName      = "/flock.TrackerService/ListTrackers"
	TrackerService_GetStatus_FullMethodName         = "/flock.TrackerService/GetStatus"
	TrackerService_SetStatus_FullMethodName         = "/flock.TrackerService/SetStatus"
	TrackerService_GetFrame_FullMethodName          = "/flock.TrackerService/GetFrame"
	TrackerService_GetFrameStream_FullMethodName    = "/flock.TrackerService/GetFrameStream"
	TrackerService_SetHemisphere_FullMethodName     = "/flock.TrackerService/SetHemisphere"
	TrackerService_SetReferenceFrame_FullMethodName = "/flock.TrackerService/SetReferenceFrame"
	TrackerService_SetAngleAlign_FullMethodName     = "/flock.TrackerService/SetAngleAlign"
	TrackerService_SetStreaming_FullMethodName      = "/flock.TrackerService/SetStreaming"
)

type TrackerServiceServer interface {
	ListTrackers(context.Context, *Empty) (*TrackerList, error)
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
	SetStatus(context.Context, *SetStatusRequest) (*StatusResponse, error)
	GetFrame(context.Context, *FrameRequest) (*Frame, error)
	GetFrameStream(*FrameStreamRequest, TrackerService_GetFrameStreamServer) error
	SetHemisphere(context.Context, *HemisphereRequest) (*StatusResponse, error)
	SetReferenceFrame(context.Context, *AnglesRequest) (*StatusResponse, error)
	SetAngleAlign(context.Context, *AnglesRequest) (*StatusResponse, error)
	SetStreaming(context.Context, *StreamingRequest) (*StatusResponse, error)
}

// UnimplementedTrackerServiceServer answers every call with codes.Unimplemented.
type UnimplementedTrackerServiceServer struct{}

func (UnimplementedTrackerServiceServer) ListTrackers(context.Context, *Empty) (*TrackerList, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListTrackers not implemented")
}
func (UnimplementedTrackerServiceServer) GetStatus(context.Context, *Empty) (*StatusResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetStatus not implemented")
}
func (UnimplementedTrackerServiceServer) SetStatus(context.Context, *SetStatusRequest) (*StatusResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SetStatus not implemented")
}
func (UnimplementedTrackerServiceServer) GetFrame(context.Context, *FrameRequest) (*Frame, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetFrame not implemented")
}
func (UnimplementedTrackerServiceServer) GetFrameStream(*FrameStreamRequest, TrackerService_GetFrameStreamServer) error {
	return status.Errorf(codes.Unimplemented, "method GetFrameStream not implemented")
}
func (UnimplementedTrackerServiceServer) SetHemisphere(context.Context, *HemisphereRequest) (*StatusResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SetHemisphere not implemented")
}
func (UnimplementedTrackerServiceServer) SetReferenceFrame(context.Context, *AnglesRequest) (*StatusResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SetReferenceFrame not implemented")
}
func (UnimplementedTrackerServiceServer) SetAngleAlign(context.Context, *AnglesRequest) (*StatusResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SetAngleAlign not implemented")
}
func (UnimplementedTrackerServiceServer) SetStreaming(context.Context, *StreamingRequest) (*StatusResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SetStreaming not implemented")
}

type TrackerService_GetFrameStreamServer interface {
	Send(*FrameStreamResponse) error
	grpc.ServerStream
}

type trackerServiceGetFrameStreamServer struct {
	grpc.ServerStream
}

func (x *trackerServiceGetFrameStreamServer) Send(m *FrameStreamResponse) error {
	return x.ServerStream.SendMsg(m)
}

// unaryHandler adapts a typed server method to a grpc method handler func.
func unaryHandler[Req any, Resp any](method string, call func(TrackerServiceServer, context.Context, *Req) (*Resp, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TrackerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(TrackerServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func getFrameStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(FrameStreamRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(TrackerServiceServer).GetFrameStream(m, &trackerServiceGetFrameStreamServer{stream})
}

var TrackerService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "flock.TrackerService",
	HandlerType: (*TrackerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListTrackers", Handler: unaryHandler(TrackerService_ListTrackers_FullMethodName, TrackerServiceServer.ListTrackers)},
		{MethodName: "GetStatus", Handler: unaryHandler(TrackerService_GetStatus_FullMethodName, TrackerServiceServer.GetStatus)},
		{MethodName: "SetStatus", Handler: unaryHandler(TrackerService_SetStatus_FullMethodName, TrackerServiceServer.SetStatus)},
		{MethodName: "GetFrame", Handler: unaryHandler(TrackerService_GetFrame_FullMethodName, TrackerServiceServer.GetFrame)},
		{MethodName: "SetHemisphere", Handler: unaryHandler(TrackerService_SetHemisphere_FullMethodName, TrackerServiceServer.SetHemisphere)},
		{MethodName: "SetReferenceFrame", Handler: unaryHandler(TrackerService_SetReferenceFrame_FullMethodName, TrackerServiceServer.SetReferenceFrame)},
		{MethodName: "SetAngleAlign", Handler: unaryHandler(TrackerService_SetAngleAlign_FullMethodName, TrackerServiceServer.SetAngleAlign)},
		{MethodName: "SetStreaming", Handler: unaryHandler(TrackerService_SetStreaming_FullMethodName, TrackerServiceServer.SetStreaming)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "GetFrameStream",
			Handler:       getFrameStreamHandler,
			ServerStreams: true,
		},
	},
	Metadata: "flock.proto",
}

func RegisterTrackerServiceServer(s grpc.ServiceRegistrar, srv TrackerServiceServer) {
	s.RegisterService(&TrackerService_ServiceDesc, srv)
}

type TrackerServiceClient interface {
	ListTrackers(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*TrackerList, error)
	GetStatus(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*StatusResponse, error)
	SetStatus(ctx context.Context, in *SetStatusRequest, opts ...grpc.CallOption) (*StatusResponse, error)
	GetFrame(ctx context.Context, in *FrameRequest, opts ...grpc.CallOption) (*Frame, error)
	GetFrameStream(ctx context.Context, in *FrameStreamRequest, opts ...grpc.CallOption) (TrackerService_GetFrameStreamClient, error)
	SetHemisphere(ctx context.Context, in *HemisphereRequest, opts ...grpc.CallOption) (*StatusResponse, error)
	SetReferenceFrame(ctx context.Context, in *AnglesRequest, opts ...grpc.CallOption) (*StatusResponse, error)
	SetAngleAlign(ctx context.Context, in *AnglesRequest, opts ...grpc.CallOption) (*StatusResponse, error)
	SetStreaming(ctx context.Context, in *StreamingRequest, opts ...grpc.CallOption) (*StatusResponse, error)
}

type trackerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTrackerServiceClient returns a client whose calls all use the json codec.
func NewTrackerServiceClient(cc grpc.ClientConnInterface) TrackerServiceClient {
	return &trackerServiceClient{cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{CallOption()}, opts...)
}

func (c *trackerServiceClient) ListTrackers(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*TrackerList, error) {
	out := new(TrackerList)
	if err := c.cc.Invoke(ctx, TrackerService_ListTrackers_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *trackerServiceClient) GetStatus(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.cc.Invoke(ctx, TrackerService_GetStatus_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *trackerServiceClient) SetStatus(ctx context.Context, in *SetStatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.cc.Invoke(ctx, TrackerService_SetStatus_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *trackerServiceClient) GetFrame(ctx context.Context, in *FrameRequest, opts ...grpc.CallOption) (*Frame, error) {
	out := new(Frame)
	if err := c.cc.Invoke(ctx, TrackerService_GetFrame_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *trackerServiceClient) SetHemisphere(ctx context.Context, in *HemisphereRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.cc.Invoke(ctx, TrackerService_SetHemisphere_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *trackerServiceClient) SetReferenceFrame(ctx context.Context, in *AnglesRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.cc.Invoke(ctx, TrackerService_SetReferenceFrame_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *trackerServiceClient) SetAngleAlign(ctx context.Context, in *AnglesRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.cc.Invoke(ctx, TrackerService_SetAngleAlign_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *trackerServiceClient) SetStreaming(ctx context.Context, in *StreamingRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.cc.Invoke(ctx, TrackerService_SetStreaming_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *trackerServiceClient) GetFrameStream(ctx context.Context, in *FrameStreamRequest, opts ...grpc.CallOption) (TrackerService_GetFrameStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &TrackerService_ServiceDesc.Streams[0], TrackerService_GetFrameStream_FullMethodName, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &trackerServiceGetFrameStreamClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type TrackerService_GetFrameStreamClient interface {
	Recv() (*FrameStreamResponse, error)
	grpc.ClientStream
}

type trackerServiceGetFrameStreamClient struct {
	grpc.ClientStream
}

func (x *trackerServiceGetFrameStreamClient) Recv() (*FrameStreamResponse, error) {
	m := new(FrameStreamResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
