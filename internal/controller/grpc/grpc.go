package grpc

import (
	"context"
	"errors"
	"flock_apiserver/internal/manager"
	"flock_apiserver/internal/pb"
	log "github.com/sirupsen/logrus"
	"sync"
	"time"
)

type server struct {
	pb.UnimplementedTrackerServiceServer
	manager    manager.Manager
	streamLock sync.Mutex
}

func (s *server) statusResponse(err error) *pb.StatusResponse {
	st := s.manager.Status()
	res := &pb.StatusResponse{
		Status:     st.Running,
		Faulted:    st.Faulted,
		Streaming:  st.Streaming,
		Healthy:    st.Healthy,
		Session:    st.Session,
		Trackers:   int32(st.Trackers),
		Addressing: st.Addressing,
		Format:     st.Format,
		State:      st.State,
	}
	if err != nil {
		res.Err = err.Error()
	}
	return res
}

// SetStatus starts or stops the manager
func (s *server) SetStatus(ctx context.Context, req *pb.SetStatusRequest) (*pb.StatusResponse, error) {
	log.Infof("SetStatus: %v", req.Status)
	var err error
	if req.Status {
		err = s.manager.Start()
	} else {
		err = s.manager.Stop()
	}
	return s.statusResponse(err), nil
}

// GetStatus returns the status of the manager
func (s *server) GetStatus(ctx context.Context, req *pb.Empty) (*pb.StatusResponse, error) {
	log.Debugf("GetStatus: %v", s.manager.Running())
	return s.statusResponse(nil), nil
}

func (s *server) checkRunning() error {
	if s.manager.Faulted() {
		return errors.New("tracker manager is faulted")
	}
	if !s.manager.Running() {
		return manager.ErrNotRunning
	}
	return nil
}

// GetFrame returns the newest frame
func (s *server) GetFrame(ctx context.Context, req *pb.FrameRequest) (*pb.Frame, error) {
	if err := s.checkRunning(); err != nil {
		return nil, err
	}
	_, frames, err := s.manager.Read(-1)
	if err != nil {
		return nil, err
	}
	return pb.FromFrame(frames[0]), nil
}

// GetFrameStream sends every new frame until the client leaves or the manager
// stops producing frames for a second.
func (s *server) GetFrameStream(req *pb.FrameStreamRequest, srv pb.TrackerService_GetFrameStreamServer) error {
	s.streamLock.Lock()
	defer s.streamLock.Unlock()
	var lastCursor = req.Cursor

	lastSuccess := time.Now()
	for {
		if err := srv.Context().Err(); err != nil {
			return err
		}
		if err := s.checkRunning(); err != nil {
			return err
		}
		cursor, frames, err := s.manager.Read(lastCursor)
		if err != nil {
			if time.Since(lastSuccess) > time.Second {
				return err
			}
			time.Sleep(time.Millisecond * 10)
			continue
		}
		lastSuccess = time.Now()
		lastCursor = cursor

		resp := &pb.FrameStreamResponse{
			Frames: make([]*pb.Frame, len(frames)),
			Cursor: cursor,
			Valid:  true,
		}
		for idx, frame := range frames {
			resp.Frames[idx] = pb.FromFrame(frame)
		}
		if err := srv.Send(resp); err != nil {
			return err
		}
	}
}

func (s *server) ListTrackers(ctx context.Context, req *pb.Empty) (*pb.TrackerList, error) {
	ids, err := s.manager.ListDev()
	return &pb.TrackerList{Ids: ids}, err
}

func (s *server) SetHemisphere(ctx context.Context, req *pb.HemisphereRequest) (*pb.StatusResponse, error) {
	log.Infof("SetHemisphere: tracker %d %s", req.Slot, req.Hemisphere)
	err := s.manager.SetHemisphere(int(req.Slot), req.Hemisphere)
	return s.statusResponse(err), err
}

func (s *server) SetReferenceFrame(ctx context.Context, req *pb.AnglesRequest) (*pb.StatusResponse, error) {
	err := s.manager.SetReferenceFrame(req.Azimuth, req.Elevation, req.Roll)
	return s.statusResponse(err), err
}

func (s *server) SetAngleAlign(ctx context.Context, req *pb.AnglesRequest) (*pb.StatusResponse, error) {
	err := s.manager.SetAngleAlign(int(req.Slot), req.Azimuth, req.Elevation, req.Roll)
	return s.statusResponse(err), err
}

func (s *server) SetStreaming(ctx context.Context, req *pb.StreamingRequest) (*pb.StatusResponse, error) {
	log.Infof("SetStreaming: %v", req.Streaming)
	err := s.manager.SetStreaming(req.Streaming)
	return s.statusResponse(err), err
}

var _ pb.TrackerServiceServer = &server{}

func NewGRPCServer(manager manager.Manager) pb.TrackerServiceServer {
	return &server{
		manager: manager,
	}
}
