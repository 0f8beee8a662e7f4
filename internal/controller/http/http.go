package http

import (
	"errors"
	"flock_apiserver/internal/manager"
	"flock_apiserver/internal/pb"
	"flock_apiserver/internal/sensor/flock"
	"fmt"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"net/http"
	"strconv"
	"strings"
)

type StatusRequest struct {
	Status bool `json:"status"`
}

type HemisphereRequest struct {
	Hemisphere string `json:"hemisphere" binding:"required"`
}

type AnglesRequest struct {
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
	Roll      float64 `json:"roll"`
}

type StreamRequest struct {
	Streaming bool `json:"streaming"`
}

type controller struct {
	manager manager.Manager
}

// httpStatus maps manager and driver errors to response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, manager.ErrNotRunning), errors.Is(err, manager.ErrNotReady), errors.Is(err, flock.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, flock.ErrInvalidTracker):
		return http.StatusNotFound
	case errors.Is(err, flock.ErrInvalidHemisphere), errors.Is(err, flock.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, flock.ErrNotStreamable), errors.Is(err, flock.ErrStreaming):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{
		"err": err.Error(),
	})
}

// slot resolves the :id path parameter. It accepts "all", a tracker id such
// as bird_2, or a slot index.
func (ctl *controller) slot(id string) (int, error) {
	if strings.EqualFold(id, "all") {
		return manager.AllTrackers, nil
	}
	ids, err := ctl.manager.ListDev()
	if err != nil {
		return 0, err
	}
	for i, v := range ids {
		if v == id {
			return i, nil
		}
	}
	i, err := strconv.Atoi(id)
	if err != nil || i < 0 || i >= len(ids) {
		return 0, fmt.Errorf("%w: %s", flock.ErrInvalidTracker, id)
	}
	return i, nil
}

func (ctl *controller) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, ctl.manager.Status())
}

func (ctl *controller) postStatus(c *gin.Context) {
	req := StatusRequest{}
	if err := c.BindJSON(&req); err != nil {
		return
	}
	log.Infof("set status: %v", req.Status)
	var err error
	if req.Status {
		err = ctl.manager.Start()
	} else {
		err = ctl.manager.Stop()
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ctl.manager.Status())
}

func (ctl *controller) getTrackers(c *gin.Context) {
	ids, err := ctl.manager.ListDev()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ids": ids,
	})
}

func (ctl *controller) latest() (*pb.Frame, error) {
	_, frames, err := ctl.manager.Read(-1)
	if err != nil {
		return nil, err
	}
	return pb.FromFrame(frames[0]), nil
}

func (ctl *controller) getTracker(c *gin.Context) {
	slot, err := ctl.slot(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if slot == manager.AllTrackers {
		ctl.getFrame(c)
		return
	}
	frame, err := ctl.latest()
	if err != nil {
		fail(c, err)
		return
	}
	if slot >= len(frame.Samples) {
		fail(c, fmt.Errorf("%w: %d", flock.ErrInvalidTracker, slot))
		return
	}
	c.JSON(http.StatusOK, frame.Samples[slot])
}

// getFrame returns the newest frame, or with ?cursor=n every buffered frame
// after n.
func (ctl *controller) getFrame(c *gin.Context) {
	raw, ok := c.GetQuery("cursor")
	if !ok {
		frame, err := ctl.latest()
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, frame)
		return
	}
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"err": err.Error(),
		})
		return
	}
	next, frames, err := ctl.manager.Read(cursor)
	if err != nil && !errors.Is(err, manager.ErrNoNewData) {
		fail(c, err)
		return
	}
	resp := &pb.FrameStreamResponse{Cursor: next, Valid: err == nil, Frames: make([]*pb.Frame, len(frames))}
	for i, f := range frames {
		resp.Frames[i] = pb.FromFrame(f)
	}
	c.JSON(http.StatusOK, resp)
}

func (ctl *controller) putHemisphere(c *gin.Context) {
	req := HemisphereRequest{}
	if err := c.BindJSON(&req); err != nil {
		return
	}
	slot, err := ctl.slot(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if err := ctl.manager.SetHemisphere(slot, req.Hemisphere); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"err": nil,
		"msg": "hemisphere set to " + req.Hemisphere,
	})
}

func (ctl *controller) putAngleAlign(c *gin.Context) {
	req := AnglesRequest{}
	if err := c.BindJSON(&req); err != nil {
		return
	}
	slot, err := ctl.slot(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if err := ctl.manager.SetAngleAlign(slot, req.Azimuth, req.Elevation, req.Roll); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"err": nil,
		"msg": "angle align updated",
	})
}

func (ctl *controller) putReferenceFrame(c *gin.Context) {
	req := AnglesRequest{}
	if err := c.BindJSON(&req); err != nil {
		return
	}
	if err := ctl.manager.SetReferenceFrame(req.Azimuth, req.Elevation, req.Roll); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"err": nil,
		"msg": "reference frame updated",
	})
}

func (ctl *controller) putStream(c *gin.Context) {
	req := StreamRequest{}
	if err := c.BindJSON(&req); err != nil {
		return
	}
	if err := ctl.manager.SetStreaming(req.Streaming); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ctl.manager.Status())
}

// RegisterRoutes installs the REST API under /api/v1.
func RegisterRoutes(router gin.IRouter, m manager.Manager) {
	ctl := &controller{manager: m}
	v1 := router.Group("/api/v1")
	v1.GET("/status", ctl.getStatus)
	v1.POST("/status", ctl.postStatus)
	v1.GET("/trackers", ctl.getTrackers)
	v1.GET("/trackers/:id", ctl.getTracker)
	v1.PUT("/trackers/:id/hemisphere", ctl.putHemisphere)
	v1.PUT("/trackers/:id/angle_align", ctl.putAngleAlign)
	v1.GET("/frame", ctl.getFrame)
	v1.PUT("/reference_frame", ctl.putReferenceFrame)
	v1.PUT("/stream", ctl.putStream)
}

// NewRouter returns a gin engine serving the REST API.
func NewRouter(m manager.Manager) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	RegisterRoutes(router, m)
	return router
}
