package server

import (
	"context"
	"errors"
	"flock_apiserver/internal/config"
	grpc2 "flock_apiserver/internal/controller/grpc"
	http2 "flock_apiserver/internal/controller/http"
	"flock_apiserver/internal/manager"
	managerImpl "flock_apiserver/internal/manager/flock"
	"flock_apiserver/internal/pb"
	"flock_apiserver/internal/sink/osc"
	"fmt"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
)

type mainApp struct {
	name string
	cmd  *cobra.Command
	args []string
	opt  *config.FlockOpt
}

func (a *mainApp) ProbeSensor() error {
	m := managerImpl.NewManager(a.opt)
	log.Infoln("Probing flock devices...")
	res, err := m.ProbeDev()
	if err != nil {
		log.Errorln(err)
		return err
	} else {
		log.Infof("Found %d valid flock devices: \n", len(res))
		for _, v := range res {
			fmt.Printf("- %s\n", strings.TrimSpace(v))
		}
	}
	return nil
}

func (a *mainApp) GetOpt() *config.FlockOpt {
	return a.opt
}

func (a *mainApp) SetOpt(opt *config.FlockOpt) { a.opt = opt }

func listenAddr(iface string, port int) string {
	return net.JoinHostPort(iface, strconv.Itoa(port))
}

// serveGRPC serves the TrackerService until ctx ends.
func serveGRPC(ctx context.Context, opt *config.GRPCOpt, m manager.Manager) error {
	s := grpc.NewServer()
	pb.RegisterTrackerServiceServer(s, grpc2.NewGRPCServer(m))
	listener, err := net.Listen("tcp", listenAddr(opt.Interface, opt.Port))
	if err != nil {
		return fmt.Errorf("net listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()
	log.Info("start gRPC listen on ", listener.Addr())
	if err := s.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// serveAPI serves the REST API until ctx ends.
func serveAPI(ctx context.Context, opt *config.APIOpt, debug bool, m manager.Manager) error {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if debug {
		router.Use(gin.Logger())
	}
	http2.RegisterRoutes(router, m)
	srv := &http.Server{Addr: listenAddr(opt.Interface, opt.Port), Handler: router}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	log.Info("start API listen on ", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *mainApp) Run() {
	log.Infoln("grpc.port:", a.opt.GRPC.Port)
	log.Infoln("grpc.interface:", a.opt.GRPC.Interface)
	log.Infoln("api.port:", a.opt.API.Port)
	log.Infoln("api.interface:", a.opt.API.Interface)
	log.Infoln("osc.enabled:", a.opt.OSC.Enabled)
	log.Infoln("debug:", a.opt.Debug)
	log.Infoln("tracker.ports:", a.opt.Tracker.Ports)
	log.Infoln("tracker.transport:", a.opt.Tracker.Transport)
	log.Infoln("tracker.format:", a.opt.Tracker.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// start manager
	m := managerImpl.NewManager(a.opt)
	defer func() {
		if err := m.Close(); err != nil {
			log.Warnln(err)
		}
	}()
	go managerImpl.Daemon(ctx, m)

	if a.opt.OSC.Enabled {
		go osc.NewPublisher(&a.opt.OSC).Run(ctx, m)
	}

	// install and start api server
	errCh := make(chan error, 2)
	go func() { errCh <- serveAPI(ctx, &a.opt.API, a.opt.Debug, m) }()

	// install and start grpc server
	go func() { errCh <- serveGRPC(ctx, &a.opt.GRPC, m) }()

	// wait for exit
	select {
	case <-ctx.Done():
		log.Infoln("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Errorln("failed to serve...", err)
		}
		stop()
	}
}

func (a *mainApp) PrepareRun() MainApp {
	desc := config.NewFlockDesc()
	err := desc.Parse(a.cmd)
	if err != nil {
		log.Errorln(err)
		os.Exit(1)
		return nil
	}
	desc.PostParse()
	if err := desc.Opt.Validate(); err != nil {
		log.Errorln(err)
		os.Exit(1)
		return nil
	}
	a.opt = &desc.Opt
	a.name = config.DefaultAppName

	return a
}

type MainApp interface {
	Run()
	PrepareRun() MainApp
	GetOpt() *config.FlockOpt
	SetOpt(*config.FlockOpt)
	ProbeSensor() error
}

func NewMainApp(cmd *cobra.Command, args []string) MainApp {
	return &mainApp{
		cmd:  cmd,
		args: args,
	}
}
