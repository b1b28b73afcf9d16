package daemon

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slices"

	"github.com/David-Antunes/klonet/api"
	"github.com/David-Antunes/klonet/internal/network"
	"github.com/David-Antunes/klonet/internal/topology"
)

var errMissingUser = errors.New("user is required")

func projectMissing(user, name string) error {
	return fmt.Errorf("project %s of user %s does not exist", name, user)
}

// lookup returns the active project, answering the request itself when
// there is none.
func (s *Server) lookup(c *gin.Context, user, name string) (*project, bool) {
	if user == "" {
		SendError(c, errMissingUser)
		return nil, false
	}
	p, ok := s.projects.Load(projectKey(user, name))
	if !ok {
		SendError(c, projectMissing(user, name))
		return nil, false
	}
	p.Lock()
	if !p.active() {
		p.Unlock()
		SendError(c, projectMissing(user, name))
		return nil, false
	}
	return p, true
}

func (s *Server) listImages(c *gin.Context) {
	if c.Query("username") == "" {
		SendError(c, errMissingUser)
		return
	}
	// The real endpoint answers with the bare catalog and no envelope code.
	c.JSON(http.StatusOK, s.opts.Images)
}

func (s *Server) listProjects(c *gin.Context) {
	user := c.Query("user")
	if user == "" {
		SendError(c, errMissingUser)
		return
	}
	names := make([]string, 0)
	s.projects.Range(func(_ string, p *project) bool {
		p.Lock()
		defer p.Unlock()
		if p.user == user && p.active() {
			names = append(names, p.name)
		}
		return true
	})
	slices.Sort(names)
	SendResponse(c, gin.H{"topo_list": names})
}

func (s *Server) projectState(c *gin.Context) {
	p, ok := s.lookup(c, c.Query("user"), c.Param("project"))
	if !ok {
		return
	}
	defer p.Unlock()
	SendResponse(c, gin.H{"project": api.ProjectState{Topo: p.networks}})
}

func (s *Server) workerIPs(c *gin.Context) {
	p, ok := s.lookup(c, c.Query("user"), c.Param("project"))
	if !ok {
		return
	}
	defer p.Unlock()
	workers := make(map[string]string, len(p.workers))
	for n, w := range p.workers {
		workers[n] = w
	}
	SendResponse(c, gin.H{"worker_ip": workers})
}

func (s *Server) nicNames(c *gin.Context) {
	p, ok := s.lookup(c, c.Query("username"), c.Query("toponame"))
	if !ok {
		return
	}
	defer p.Unlock()
	static := make(map[string]map[string]string, len(p.nics))
	for n, nics := range p.nics {
		static[n] = make(map[string]string, len(nics))
		for nick, realName := range nics {
			static[n][nick] = realName
		}
	}
	SendResponse(c, gin.H{"static": static})
}

func (s *Server) deploy(c *gin.Context) {
	req := &api.DeployRequest{}
	if !ParseRequest(c, req) {
		return
	}
	if req.User == "" || req.Topo == "" {
		SendError(c, errors.New("user and topo are required"))
		return
	}
	if _, err := topology.FromNetworks(req.Networks); err != nil {
		SendError(c, err)
		return
	}
	key := projectKey(req.User, req.Topo)
	if old, ok := s.projects.Load(key); ok {
		old.Lock()
		active := old.active()
		old.Unlock()
		if active {
			SendError(c, fmt.Errorf("project %s already exists", req.Topo))
			return
		}
	}
	p := newProject(req.User, req.Topo, req.Networks)
	for _, n := range req.Networks.AllNodes() {
		p.place(n, s.assignWorker())
	}
	s.projects.Store(key, p)
	daemonLog.WithField("project", key).Info("deployment accepted")
	SendResponse(c, gin.H{"msg": "deployment accepted"})
}

func (s *Server) destroy(c *gin.Context) {
	req := &api.DestroyRequest{}
	if !ParseRequest(c, req) {
		return
	}
	p, ok := s.lookup(c, req.User, req.Topo)
	if !ok {
		return
	}
	defer p.Unlock()
	p.phase = deleting
	p.deleteProgress = 0
	daemonLog.WithField("project", projectKey(req.User, req.Topo)).Info("deletion accepted")
	SendResponse(c, gin.H{"msg": "deletion accepted"})
}

func (s *Server) progress(c *gin.Context) {
	req := &api.ProgressRequest{}
	if !ParseRequest(c, req) {
		return
	}
	p, ok := s.projects.Load(projectKey(req.User, req.Topo))
	if !ok {
		SendError(c, projectMissing(req.User, req.Topo))
		return
	}
	p.Lock()
	defer p.Unlock()
	var value float64
	switch req.Usage {
	case api.UsageDeploy:
		if p.phase == deploying {
			p.deployProgress = math.Min(100, p.deployProgress+s.opts.ProgressStep)
		}
		value = p.deployProgress
	case api.UsageDelete:
		if p.phase == deploying {
			SendError(c, fmt.Errorf("project %s is not being deleted", req.Topo))
			return
		}
		if p.phase == deleting {
			p.deleteProgress = math.Min(100, p.deleteProgress+s.opts.ProgressStep)
			if p.deleteProgress == 100 {
				p.phase = deleted
			}
		}
		value = p.deleteProgress
	default:
		SendError(c, fmt.Errorf("unknown usage %q", req.Usage))
		return
	}
	SendResponse(c, gin.H{"process_value": value})
}

func (s *Server) addNode(c *gin.Context) {
	req := &api.NodeRequest{}
	if !ParseRequest(c, req) {
		return
	}
	p, ok := s.lookup(c, req.User, req.Topo)
	if !ok {
		return
	}
	defer p.Unlock()
	if err := p.addNode(req.Info, s.assignWorker()); err != nil {
		SendError(c, err)
		return
	}
	SendResponse(c, nil)
}

func (s *Server) updateNode(c *gin.Context) {
	req := &api.NodeRequest{}
	if !ParseRequest(c, req) {
		return
	}
	p, ok := s.lookup(c, req.User, req.Topo)
	if !ok {
		return
	}
	defer p.Unlock()
	if err := p.updateNode(req.Info); err != nil {
		SendError(c, err)
		return
	}
	SendResponse(c, nil)
}

func (s *Server) deleteNode(c *gin.Context) {
	req := &api.NodeRequest{}
	if !ParseRequest(c, req) {
		return
	}
	p, ok := s.lookup(c, req.User, req.Topo)
	if !ok {
		return
	}
	defer p.Unlock()
	if err := p.removeNode(req.Info.Name); err != nil {
		SendError(c, err)
		return
	}
	SendResponse(c, nil)
}

func (s *Server) addLink(c *gin.Context) {
	req := &api.LinkRequest{}
	if !ParseRequest(c, req) {
		return
	}
	p, ok := s.lookup(c, req.User, req.Topo)
	if !ok {
		return
	}
	defer p.Unlock()
	if err := p.addLink(req.Info); err != nil {
		SendError(c, err)
		return
	}
	SendResponse(c, nil)
}

func (s *Server) deleteLink(c *gin.Context) {
	req := &api.LinkRequest{}
	if !ParseRequest(c, req) {
		return
	}
	p, ok := s.lookup(c, req.User, req.Topo)
	if !ok {
		return
	}
	defer p.Unlock()
	if _, ok := p.networks.Links[req.Info.Name]; !ok {
		SendError(c, &api.NotFoundError{Kind: api.KindLink, Name: req.Info.Name, Available: p.linkNames()})
		return
	}
	p.removeLink(req.Info.Name)
	SendResponse(c, nil)
}

func (s *Server) configLink(c *gin.Context) {
	req := &api.LinkQosRequest{}
	if !ParseRequest(c, req) {
		return
	}
	p, ok := s.lookup(c, req.User, req.Topo)
	if !ok {
		return
	}
	defer p.Unlock()
	if len(req.Links) != 2 {
		SendError(c, fmt.Errorf("expected 2 link configurations, got %d", len(req.Links)))
		return
	}
	if req.Links[0].Link != req.Links[1].Link || req.Links[0].Ne == req.Links[1].Ne {
		SendError(c, errors.New("both sides of one link must be configured together"))
		return
	}
	l, err := p.qosLink(req.Links[0].Link)
	if err != nil {
		SendError(c, err)
		return
	}
	for _, cfg := range req.Links {
		if _, onLink := l.Peer(cfg.Ne); !onLink {
			SendError(c, fmt.Errorf("%s is not an endpoint of link %s", cfg.Ne, l.Name))
			return
		}
		if err := network.ParseLinkConfiguration(cfg); err != nil {
			SendError(c, err)
			return
		}
	}
	sides := make(map[string]api.LinkConfiguration, 2)
	for _, cfg := range req.Links {
		cfg.Link = l.Name
		sides[cfg.Ne] = cfg
	}
	p.qos[l.Name] = sides
	SendResponse(c, nil)
}

func (s *Server) clearLink(c *gin.Context) {
	req := &api.LinkClearRequest{}
	if !ParseRequest(c, req) {
		return
	}
	p, ok := s.lookup(c, req.User, req.Topo)
	if !ok {
		return
	}
	defer p.Unlock()
	for _, side := range req.Links {
		l, err := p.qosLink(side.Link)
		if err != nil {
			SendError(c, err)
			return
		}
		delete(p.qos[l.Name], side.Ne)
	}
	SendResponse(c, nil)
}

func (s *Server) execCommands(c *gin.Context) {
	req := &api.ExecRequest{}
	if !ParseRequest(c, req) {
		return
	}
	p, ok := s.lookup(c, req.User, req.Topo)
	if !ok {
		return
	}
	defer p.Unlock()
	results := make(map[string]map[string]api.CommandResult, len(req.NodeAndCmd))
	for node, cmds := range req.NodeAndCmd {
		if _, _, ok := p.findNode(node); !ok {
			SendError(c, &api.NotFoundError{Kind: api.KindNode, Name: node, Available: p.nodeNames()})
			return
		}
		results[node] = make(map[string]api.CommandResult, len(cmds))
		for _, cmd := range cmds {
			if s.blocking(cmd) {
				results[node][cmd] = api.CommandResult{}
				continue
			}
			results[node][cmd] = run(node, cmd)
		}
	}
	SendResponse(c, gin.H{"exec_results": results})
}

// run fakes a handful of shell commands.
func run(node, cmd string) api.CommandResult {
	code, output := 0, ""
	fields := strings.Fields(cmd)
	switch {
	case len(fields) == 0:
	case fields[0] == "echo":
		output = strings.Join(fields[1:], " ")
	case fields[0] == "hostname":
		output = node
	case fields[0] == "false":
		code = 1
	case fields[0] == "exit" && len(fields) > 1:
		if n, err := strconv.Atoi(fields[1]); err == nil {
			code = n
		}
	}
	return api.CommandResult{ExitCode: &code, Output: &output}
}

func (s *Server) sshService(c *gin.Context) {
	req := &api.SSHRequest{}
	if !ParseRequest(c, req) {
		return
	}
	p, ok := s.lookup(c, req.User, req.Topo)
	if !ok {
		return
	}
	defer p.Unlock()
	if _, _, ok := p.findNode(req.Ne); !ok {
		SendError(c, &api.NotFoundError{Kind: api.KindNode, Name: req.Ne, Available: p.nodeNames()})
		return
	}
	if req.SSH && req.Passwd == "" {
		SendError(c, errors.New("password is required to start ssh"))
		return
	}
	p.ssh[req.Ne] = req.SSH
	if req.SSH {
		if p.ports[req.Ne] == nil {
			p.ports[req.Ne] = make(map[string]int)
		}
		if _, ok := p.ports[req.Ne]["22"]; !ok {
			p.ports[req.Ne]["22"] = s.allocatePort()
		}
	}
	SendResponse(c, nil)
}

func (s *Server) portMapping(c *gin.Context) {
	req := &api.PortMappingQuery{}
	if !ParseRequest(c, req) {
		return
	}
	p, ok := s.lookup(c, req.User, req.Topo)
	if !ok {
		return
	}
	defer p.Unlock()
	if _, _, ok := p.findNode(req.Ne); !ok {
		SendError(c, &api.NotFoundError{Kind: api.KindNode, Name: req.Ne, Available: p.nodeNames()})
		return
	}
	ports := make(map[string]int, len(p.ports[req.Ne]))
	for container, host := range p.ports[req.Ne] {
		ports[container] = host
	}
	SendResponse(c, gin.H{"worker_ip": p.workers[req.Ne], "ne_port": ports})
}

func (s *Server) modifyPortMapping(c *gin.Context) {
	req := &api.PortMappingRequest{}
	if !ParseRequest(c, req) {
		return
	}
	p, ok := s.lookup(c, req.User, req.Topo)
	if !ok {
		return
	}
	defer p.Unlock()
	if _, _, ok := p.findNode(req.Ne); !ok {
		SendError(c, &api.NotFoundError{Kind: api.KindNode, Name: req.Ne, Available: p.nodeNames()})
		return
	}
	if len(req.PortMapping)%2 != 0 {
		SendError(c, errors.New("port mapping needs an even number of ports"))
		return
	}
	ports := make(map[string]int, len(req.PortMapping)/2)
	for i := 0; i < len(req.PortMapping); i += 2 {
		ports[strconv.Itoa(req.PortMapping[i])] = req.PortMapping[i+1]
	}
	p.ports[req.Ne] = ports
	SendResponse(c, nil)
}
