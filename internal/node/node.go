package node

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/David-Antunes/klonet/api"
	"github.com/David-Antunes/klonet/internal/backend"
	"github.com/David-Antunes/klonet/internal/topology"
)

const DefaultPassword = "123456"

var nodeLog = logrus.WithField("component", "node")

// Manager mutates and reads the nodes of a deployed project.
type Manager struct {
	client  *backend.Client
	user    string
	project string
}

func NewManager(client *backend.Client, user, project string) *Manager {
	return &Manager{client: client, user: user, project: project}
}

// DynamicAddNode creates a node in the running project. Name uniqueness is
// left to the backend.
func (m *Manager) DynamicAddNode(ctx context.Context, image api.Image, opts topology.NodeOptions) (api.Node, error) {
	n, err := topology.NewNode(image, opts)
	if err != nil {
		return api.Node{}, err
	}
	if n.Name == "" {
		return api.Node{}, &api.InvalidArgumentError{Field: "name", Reason: "runtime nodes need a name"}
	}
	err = m.client.Do(ctx, backend.Call{
		Method: http.MethodPost,
		Path:   "/modification/container/",
		Body:   api.NodeRequest{User: m.user, Topo: m.project, Info: n},
	}, nil)
	if err != nil {
		return api.Node{}, err
	}
	nodeLog.WithField("project", m.project).Info("added node ", n.Name)
	return n, nil
}

func (m *Manager) DynamicDeleteNode(ctx context.Context, name string) error {
	n, err := m.GetNode(ctx, name)
	if err != nil {
		return err
	}
	err = m.client.Do(ctx, backend.Call{
		Method: http.MethodDelete,
		Path:   "/modification/container/",
		Body:   api.NodeRequest{User: m.user, Topo: m.project, Info: n},
	}, nil)
	if err != nil {
		return err
	}
	nodeLog.WithField("project", m.project).Info("deleted node ", name)
	return nil
}

// UpdateNode replaces the record of an existing node.
func (m *Manager) UpdateNode(ctx context.Context, n api.Node) error {
	return m.client.Do(ctx, backend.Call{
		Method: http.MethodPut,
		Path:   "/modification/container/",
		Body:   api.NodeRequest{User: m.user, Topo: m.project, Info: n},
	}, nil)
}

// GetNetworks reads the whole project topology.
func (m *Manager) GetNetworks(ctx context.Context) (api.Networks, error) {
	return FetchNetworks(ctx, m.client, m.user, m.project)
}

func FetchNetworks(ctx context.Context, client *backend.Client, user, project string) (api.Networks, error) {
	var resp api.ProjectResponse
	err := client.Do(ctx, backend.Call{
		Method: http.MethodGet,
		Path:   "/re/project/" + url.PathEscape(project) + "/",
		Query:  url.Values{"user": []string{user}},
	}, &resp)
	if err != nil {
		return api.Networks{}, err
	}
	return resp.Project.Topo, nil
}

func (m *Manager) GetNodes(ctx context.Context) (map[string]api.Node, error) {
	networks, err := m.GetNetworks(ctx)
	if err != nil {
		return nil, err
	}
	return networks.AllNodes(), nil
}

func (m *Manager) GetNode(ctx context.Context, name string) (api.Node, error) {
	nodes, err := m.GetNodes(ctx)
	if err != nil {
		return api.Node{}, err
	}
	n, ok := nodes[name]
	if !ok {
		return api.Node{}, &api.NotFoundError{Kind: api.KindNode, Name: name, Available: sortedKeys(nodes)}
	}
	return n, nil
}

// SSHService starts or stops sshd inside the node. Starting is slow.
func (m *Manager) SSHService(ctx context.Context, name string, enable bool, password string) error {
	if password == "" {
		password = DefaultPassword
	}
	if enable {
		nodeLog.Info("Starting SSH service is time-consuming, please be patient...")
	}
	return m.client.Do(ctx, backend.Call{
		Method: http.MethodPost,
		Path:   "/master/ssh_service/",
		Body:   api.SSHRequest{User: m.user, Topo: m.project, Ne: name, SSH: enable, Passwd: password},
	}, nil)
}

func (m *Manager) GetPortMapping(ctx context.Context, name string) (api.PortMapping, error) {
	var resp api.PortMappingResponse
	err := m.client.Do(ctx, backend.Call{
		Method: http.MethodGet,
		Path:   "/master/ssh_service/",
		Body:   api.PortMappingQuery{User: m.user, Topo: m.project, Ne: name},
	}, &resp)
	if err != nil {
		return api.PortMapping{}, err
	}
	return resp.PortMapping, nil
}

// PortMapping replaces the port forwarding of a node. ports alternates
// container and host ports: [c1, h1, c2, h2, ...].
func (m *Manager) PortMapping(ctx context.Context, name string, ports []int) error {
	if len(ports)%2 != 0 {
		return &api.InvalidArgumentError{Field: "port_mapping", Reason: "needs an even number of ports alternating container and host"}
	}
	for _, p := range ports {
		if p <= 0 || p > 65535 {
			return &api.InvalidArgumentError{Field: "port_mapping", Reason: "ports must be between 1 and 65535"}
		}
	}
	return m.client.Do(ctx, backend.Call{
		Method: http.MethodPut,
		Path:   "/master/modify_port_mapping/",
		Body:   api.PortMappingRequest{User: m.user, Topo: m.project, Ne: name, PortMapping: ports},
	}, nil)
}

// GetNodeWorkerIP returns the worker of one node, or of every node when
// name is empty.
func (m *Manager) GetNodeWorkerIP(ctx context.Context, name string) (map[string]string, error) {
	var resp api.WorkerIPResponse
	err := m.client.Do(ctx, backend.Call{
		Method: http.MethodGet,
		Path:   "/re/project/" + url.PathEscape(m.project) + "/worker_ip/",
		Query:  url.Values{"user": []string{m.user}},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return resp.WorkerIP, nil
	}
	ip, ok := resp.WorkerIP[name]
	if !ok {
		return nil, &api.NotFoundError{Kind: api.KindNode, Name: name, Available: sortedKeys(resp.WorkerIP)}
	}
	return map[string]string{name: ip}, nil
}

// NicNicknameToRealName maps the interface nicknames of a node, such as
// s1h1, to the names of the interfaces inside its container.
func (m *Manager) NicNicknameToRealName(ctx context.Context, name string) (map[string]string, error) {
	var resp api.NicNamesResponse
	err := m.client.Do(ctx, backend.Call{
		Method:           http.MethodGet,
		Path:             "/my/edit/",
		Query:            url.Values{"username": []string{m.user}, "toponame": []string{m.project}},
		AllowMissingCode: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	nics, ok := resp.Static[name]
	if !ok {
		return nil, &api.NotFoundError{Kind: api.KindNode, Name: name, Available: sortedKeys(resp.Static)}
	}
	return nics, nil
}

func (m *Manager) NicRealNameToNickname(ctx context.Context, name string) (map[string]string, error) {
	nicks, err := m.NicNicknameToRealName(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(nicks))
	for nick, realName := range nicks {
		out[realName] = nick
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
