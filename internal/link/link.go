package link

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/David-Antunes/klonet/api"
	"github.com/David-Antunes/klonet/internal/backend"
	"github.com/David-Antunes/klonet/internal/network"
	"github.com/David-Antunes/klonet/internal/node"
)

var linkLog = logrus.WithField("component", "link")

// Manager mutates, shapes and reads the links of a deployed project.
//
// The parallel link check and the creation are separate requests; a
// concurrent session can slip a link in between them.
type Manager struct {
	client  *backend.Client
	user    string
	project string
	nodes   *node.Manager
}

func NewManager(client *backend.Client, user, project string) *Manager {
	return &Manager{
		client:  client,
		user:    user,
		project: project,
		nodes:   node.NewManager(client, user, project),
	}
}

// DynamicAddLink connects two nodes of the running project. An empty name
// defaults to l<number of links + 1>. Every non-empty address is added as an
// interface on its node.
func (m *Manager) DynamicAddLink(ctx context.Context, name, src, dst, srcIP, dstIP string) (api.Link, error) {
	if err := network.CheckEndpoints(src, dst, srcIP, dstIP); err != nil {
		return api.Link{}, err
	}
	networks, err := node.FetchNetworks(ctx, m.client, m.user, m.project)
	if err != nil {
		return api.Link{}, err
	}
	nodes := networks.AllNodes()
	srcNode, ok := nodes[src]
	if !ok {
		return api.Link{}, &api.NotFoundError{Kind: api.KindNode, Name: src, Available: sortedKeys(nodes)}
	}
	dstNode, ok := nodes[dst]
	if !ok {
		return api.Link{}, &api.NotFoundError{Kind: api.KindNode, Name: dst, Available: sortedKeys(nodes)}
	}
	if name == "" {
		name = fmt.Sprintf("l%d", len(networks.Links)+1)
	}
	if err := network.CheckParallelLink(name, src, dst, networks.Links); err != nil {
		return api.Link{}, err
	}
	if _, ok := networks.Links[name]; ok {
		return api.Link{}, &api.DuplicateNameError{Kind: api.KindLink, Name: name, Existing: sortedKeys(networks.Links)}
	}

	l := api.NewLink(name, srcNode, dstNode, srcIP, dstIP)
	err = m.client.Do(ctx, backend.Call{
		Method: http.MethodPost,
		Path:   "/modification/link/",
		Body:   api.LinkRequest{User: m.user, Topo: m.project, Info: l},
	}, nil)
	if err != nil {
		return api.Link{}, err
	}

	if srcIP != "" {
		if err := m.addInterface(ctx, srcNode, dst, srcIP); err != nil {
			return l, err
		}
	}
	if dstIP != "" {
		if err := m.addInterface(ctx, dstNode, src, dstIP); err != nil {
			return l, err
		}
	}
	linkLog.WithField("project", m.project).Infof("added link %s(%s---%s)", name, src, dst)
	return l, nil
}

func (m *Manager) addInterface(ctx context.Context, n api.Node, peer, cidr string) error {
	n = n.Clone()
	if err := network.AppendInterface(&n, peer, cidr); err != nil {
		return err
	}
	if err := m.nodes.UpdateNode(ctx, n); err != nil {
		return fmt.Errorf("recording interface %s on %s: %w", network.NicNickname(n.Name, peer), n.Name, err)
	}
	return nil
}

func (m *Manager) DynamicDeleteLink(ctx context.Context, name string) error {
	l, err := m.GetLink(ctx, name)
	if err != nil {
		return err
	}
	err = m.client.Do(ctx, backend.Call{
		Method: http.MethodDelete,
		Path:   "/modification/link/",
		Body:   api.LinkRequest{User: m.user, Topo: m.project, Info: l},
	}, nil)
	if err != nil {
		return err
	}
	linkLog.WithField("project", m.project).Info("deleted link ", name)
	return nil
}

// ConfigLink applies QoS to both sides of one link. The arguments are not
// modified.
func (m *Manager) ConfigLink(ctx context.Context, src, dst api.LinkConfiguration) error {
	if src.Link != dst.Link {
		return &api.ConsistencyError{Subject: "link of the two configurations", Expected: src.Link, Actual: dst.Link}
	}
	for _, cfg := range []api.LinkConfiguration{src, dst} {
		if err := network.ParseLinkConfiguration(cfg); err != nil {
			return err
		}
	}
	src.Link = api.QosLinkPrefix + src.Link
	dst.Link = api.QosLinkPrefix + dst.Link
	err := m.client.Do(ctx, backend.Call{
		Method: http.MethodPost,
		Path:   "/master/link/",
		Body:   api.LinkQosRequest{User: m.user, Topo: m.project, Links: []api.LinkConfiguration{src, dst}},
	}, nil)
	if err != nil {
		return err
	}
	linkLog.WithField("project", m.project).Debugf("configured %v and %v", src, dst)
	return nil
}

// ClearLinkConfiguration removes the QoS of both sides of a link.
func (m *Manager) ClearLinkConfiguration(ctx context.Context, name string) error {
	l, err := m.GetLink(ctx, name)
	if err != nil {
		return err
	}
	return m.client.Do(ctx, backend.Call{
		Method: http.MethodDelete,
		Path:   "/master/link/",
		Body: api.LinkClearRequest{
			User: m.user,
			Topo: m.project,
			Links: []api.LinkChoice{
				{Link: api.QosLinkPrefix + name, LinkChoice: api.LinkChoiceStatic, Ne: l.Source},
				{Link: api.QosLinkPrefix + name, LinkChoice: api.LinkChoiceStatic, Ne: l.Target},
			},
		},
	}, nil)
}

func (m *Manager) GetLinks(ctx context.Context) (map[string]api.Link, error) {
	networks, err := node.FetchNetworks(ctx, m.client, m.user, m.project)
	if err != nil {
		return nil, err
	}
	return networks.Links, nil
}

func (m *Manager) GetLink(ctx context.Context, name string) (api.Link, error) {
	links, err := m.GetLinks(ctx)
	if err != nil {
		return api.Link{}, err
	}
	l, ok := links[name]
	if !ok {
		return api.Link{}, &api.NotFoundError{Kind: api.KindLink, Name: name, Available: sortedKeys(links)}
	}
	return l, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
