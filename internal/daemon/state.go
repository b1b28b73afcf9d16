package daemon

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/David-Antunes/klonet/api"
	"github.com/David-Antunes/klonet/internal/network"
)

type phase int

const (
	deploying phase = iota
	deleting
	deleted
)

type project struct {
	sync.Mutex
	user           string
	name           string
	phase          phase
	deployProgress float64
	deleteProgress float64
	networks       api.Networks
	workers        map[string]string
	nics           map[string]map[string]string
	qos            map[string]map[string]api.LinkConfiguration
	ssh            map[string]bool
	ports          map[string]map[string]int
}

func projectKey(user, name string) string {
	return user + "/" + name
}

func newProject(user, name string, networks api.Networks) *project {
	return &project{
		user:     user,
		name:     name,
		phase:    deploying,
		networks: networks,
		workers:  make(map[string]string),
		nics:     make(map[string]map[string]string),
		qos:      make(map[string]map[string]api.LinkConfiguration),
		ssh:      make(map[string]bool),
		ports:    make(map[string]map[string]int),
	}
}

func (p *project) active() bool {
	return p.phase != deleted
}

func (p *project) findNode(name string) (api.Node, string, bool) {
	for c, nodes := range p.networks.Nodes {
		if n, ok := nodes[name]; ok {
			return n, c, true
		}
	}
	return api.Node{}, "", false
}

func (p *project) nodeNames() []string {
	names := make([]string, 0)
	for _, nodes := range p.networks.Nodes {
		for name := range nodes {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func (p *project) linkNames() []string {
	names := make([]string, 0, len(p.networks.Links))
	for name := range p.networks.Links {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// place records the worker and the real NIC names of a node.
func (p *project) place(n api.Node, worker string) {
	if w := n.Worker(); w != "" {
		worker = w
	}
	p.workers[n.Name] = worker
	nics := make(map[string]string, len(n.Interfaces))
	for _, i := range n.Interfaces {
		if realName, ok := p.nics[n.Name][i.Name]; ok {
			nics[i.Name] = realName
			continue
		}
		nics[i.Name] = strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	}
	p.nics[n.Name] = nics
}

func (p *project) addNode(n api.Node, worker string) error {
	if n.Name == "" {
		return &api.InvalidArgumentError{Field: "name", Reason: "node name is empty"}
	}
	category, err := api.Category(n.Type)
	if err != nil {
		return err
	}
	if _, _, ok := p.findNode(n.Name); ok {
		return &api.DuplicateNameError{Kind: api.KindNode, Name: n.Name, Existing: p.nodeNames()}
	}
	if p.networks.Nodes[category] == nil {
		p.networks.Nodes[category] = make(map[string]api.Node)
	}
	p.networks.Nodes[category][n.Name] = n.Clone()
	p.place(n, worker)
	return nil
}

func (p *project) updateNode(n api.Node) error {
	old, category, ok := p.findNode(n.Name)
	if !ok {
		return &api.NotFoundError{Kind: api.KindNode, Name: n.Name, Available: p.nodeNames()}
	}
	if old.Type != n.Type {
		return &api.ConsistencyError{Subject: "type of node " + n.Name, Expected: old.Type, Actual: n.Type}
	}
	p.networks.Nodes[category][n.Name] = n.Clone()
	p.place(n, p.workers[n.Name])
	return nil
}

func (p *project) removeNode(name string) error {
	_, category, ok := p.findNode(name)
	if !ok {
		return &api.NotFoundError{Kind: api.KindNode, Name: name, Available: p.nodeNames()}
	}
	for linkName, l := range p.networks.Links {
		if l.Source == name || l.Target == name {
			p.removeLink(linkName)
		}
	}
	delete(p.networks.Nodes[category], name)
	delete(p.workers, name)
	delete(p.nics, name)
	delete(p.ssh, name)
	delete(p.ports, name)
	return nil
}

func (p *project) addLink(l api.Link) error {
	if l.Name == "" {
		return &api.InvalidArgumentError{Field: "name", Reason: "link name is empty"}
	}
	if err := network.CheckEndpoints(l.Source, l.Target, l.SourceIP, l.TargetIP); err != nil {
		return err
	}
	for _, end := range []string{l.Source, l.Target} {
		if _, _, ok := p.findNode(end); !ok {
			return &api.NotFoundError{Kind: api.KindNode, Name: end, Available: p.nodeNames()}
		}
	}
	if _, ok := p.networks.Links[l.Name]; ok {
		return &api.DuplicateNameError{Kind: api.KindLink, Name: l.Name, Existing: p.linkNames()}
	}
	if err := network.CheckParallelLink(l.Name, l.Source, l.Target, p.networks.Links); err != nil {
		return err
	}
	p.networks.Links[l.Name] = l
	return nil
}

func (p *project) removeLink(name string) {
	delete(p.networks.Links, name)
	delete(p.qos, name)
}

// qosLink resolves the link a QoS request names through its prefixed form.
func (p *project) qosLink(prefixed string) (api.Link, error) {
	name, ok := strings.CutPrefix(prefixed, api.QosLinkPrefix)
	if !ok {
		return api.Link{}, &api.InvalidArgumentError{Field: "link", Reason: fmt.Sprintf("%s lacks the %s prefix", prefixed, api.QosLinkPrefix)}
	}
	l, ok := p.networks.Links[name]
	if !ok {
		return api.Link{}, &api.NotFoundError{Kind: api.KindLink, Name: name, Available: p.linkNames()}
	}
	return l, nil
}
