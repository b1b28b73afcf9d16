package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edwarnicke/genericsync"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/David-Antunes/klonet/api"
)

var daemonLog = logrus.WithField("component", "daemon")

type Options struct {
	// Images is served to every user.
	Images api.ImageCatalog
	// Workers are assigned round robin to nodes without a worker hint.
	Workers []string
	// ProgressStep is how far a deploy or delete advances per progress poll.
	ProgressStep float64
	// BlockingCommands never finish, so their results stay empty.
	BlockingCommands []string
	// FirstHostPort is the first host port handed out for ssh forwarding.
	FirstHostPort int
}

func DefaultOptions() Options {
	return Options{
		Images:           DefaultImages(),
		Workers:          []string{"172.17.0.16", "172.17.0.17"},
		ProgressStep:     25,
		BlockingCommands: []string{"iperf3 -s", "iperf -s", "sleep infinity"},
		FirstHostPort:    30000,
	}
}

func DefaultImages() api.ImageCatalog {
	image := func(t, subtype, name string) api.Image {
		return api.Image{
			Type:          t,
			Subtype:       subtype,
			ImageName:     name,
			ResourceLimit: api.ResourceLimit{CPU: "100", Mem: "512"},
			Interfaces:    []api.Interface{},
			Config:        map[string]any{},
		}
	}
	return api.ImageCatalog{
		"public": {
			api.TypeHost:       {image(api.TypeHost, "ubuntu", "vemu/ubuntu:20.04")},
			api.TypeSwitch:     {image(api.TypeSwitch, "ovs", "vemu/ovs:2.13")},
			api.TypeRouter:     {image(api.TypeRouter, "frr", "vemu/frr:8.1")},
			api.TypeController: {image(api.TypeController, "ryu", "vemu/ryu:4.34")},
		},
		"private": {
			api.TypeHost: {image(api.TypeHost, "iperf", "vemu/iperf3:3.9")},
		},
	}
}

// Server is an in-memory emulation backend speaking the same protocol as the
// real platform.
type Server struct {
	opts       Options
	projects   genericsync.Map[string, *project]
	mu         sync.Mutex
	nextWorker int
	nextPort   atomic.Int64
	engine     *gin.Engine
}

func NewServer(opts Options) *Server {
	if opts.ProgressStep <= 0 {
		opts.ProgressStep = 100
	}
	if len(opts.Workers) == 0 {
		opts.Workers = []string{"127.0.0.1"}
	}
	s := &Server{opts: opts}
	s.nextPort.Store(int64(opts.FirstHostPort))

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		daemonLog.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"request": c.GetHeader("X-Request-Id"),
			"took":    time.Since(start),
		}).Debug("handled")
	})

	r.GET("/my/image/", s.listImages)
	r.GET("/my/edit/", s.nicNames)

	r.GET("/re/project/", s.listProjects)
	r.GET("/re/project/:project/", s.projectState)
	r.GET("/re/project/:project/worker_ip/", s.workerIPs)

	r.POST("/modification/container/", s.addNode)
	r.PUT("/modification/container/", s.updateNode)
	r.DELETE("/modification/container/", s.deleteNode)
	r.POST("/modification/link/", s.addLink)
	r.DELETE("/modification/link/", s.deleteLink)

	r.POST("/master/topo/", s.deploy)
	r.DELETE("/master/topo/", s.destroy)
	r.POST("/master/process_bar/", s.progress)
	r.POST("/master/link/", s.configLink)
	r.DELETE("/master/link/", s.clearLink)
	r.POST("/master/node_exec_cmd/", s.execCommands)
	r.POST("/master/ssh_service/", s.sshService)
	r.GET("/master/ssh_service/", s.portMapping)
	r.PUT("/master/modify_port_mapping/", s.modifyPortMapping)

	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve runs the backend on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	socket, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	daemonLog.Info("listening on ", socket.Addr().String())
	err = srv.Serve(socket)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}

func (s *Server) assignWorker() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.opts.Workers[s.nextWorker%len(s.opts.Workers)]
	s.nextWorker++
	return w
}

func (s *Server) allocatePort() int {
	return int(s.nextPort.Add(1) - 1)
}

// LinkConfiguration returns the QoS last applied to one side of a link.
func (s *Server) LinkConfiguration(user, projectName, link, ne string) (api.LinkConfiguration, bool) {
	p, ok := s.projects.Load(projectKey(user, projectName))
	if !ok {
		return api.LinkConfiguration{}, false
	}
	p.Lock()
	defer p.Unlock()
	cfg, ok := p.qos[link][ne]
	return cfg, ok
}

// SSHEnabled reports whether ssh was switched on for a node.
func (s *Server) SSHEnabled(user, projectName, node string) bool {
	p, ok := s.projects.Load(projectKey(user, projectName))
	if !ok {
		return false
	}
	p.Lock()
	defer p.Unlock()
	return p.ssh[node]
}

func (s *Server) blocking(cmd string) bool {
	for _, b := range s.opts.BlockingCommands {
		if strings.HasPrefix(strings.TrimSpace(cmd), b) {
			return true
		}
	}
	return false
}
