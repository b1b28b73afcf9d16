package topology

import (
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/David-Antunes/klonet/api"
	"github.com/David-Antunes/klonet/internal/network"
)

// NodeOptions overlays an image when a node is instantiated. A nil
// ResourceLimit keeps the image defaults.
type NodeOptions struct {
	Name          string
	ResourceLimit *api.ResourceLimit
	Location      api.Location
	Worker        string
}

// NewNode clones image and applies opts. It does not check name uniqueness.
func NewNode(image api.Image, opts NodeOptions) (api.Node, error) {
	if opts.Location.X < 0 || opts.Location.Y < 0 {
		return api.Node{}, &api.InvalidArgumentError{Field: "location", Reason: "x and y must be non-negative"}
	}
	if _, err := api.Category(image.Type); err != nil {
		return api.Node{}, err
	}
	n := api.Node{
		Image: image.Clone(),
		Name:  opts.Name,
		X:     opts.Location.X,
		Y:     opts.Location.Y,
	}
	if opts.ResourceLimit != nil {
		n.ResourceLimit = *opts.ResourceLimit
	}
	if opts.Worker != "" {
		n.Config[api.WorkerSpecifiedKey] = opts.Worker
	}
	return n, nil
}

// Topology is a network designed client side before it is deployed.
type Topology struct {
	sync.Mutex
	nodes map[string]map[string]*api.Node
	links map[string]*api.Link
}

func CreateTopology() *Topology {
	topo := &Topology{
		nodes: make(map[string]map[string]*api.Node),
		links: make(map[string]*api.Link),
	}
	for _, c := range api.DefaultCategories() {
		topo.nodes[c] = make(map[string]*api.Node)
	}
	return topo
}

func (topo *Topology) findNode(name string) (*api.Node, bool) {
	for _, nodes := range topo.nodes {
		if n, ok := nodes[name]; ok {
			return n, true
		}
	}
	return nil, false
}

func (topo *Topology) nodeCount() int {
	count := 0
	for _, nodes := range topo.nodes {
		count += len(nodes)
	}
	return count
}

func (topo *Topology) nodeNames() []string {
	names := make([]string, 0, topo.nodeCount())
	for _, nodes := range topo.nodes {
		for name := range nodes {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func (topo *Topology) linkNames() []string {
	names := make([]string, 0, len(topo.links))
	for name := range topo.links {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (topo *Topology) linkSnapshot() map[string]api.Link {
	links := make(map[string]api.Link, len(topo.links))
	for name, l := range topo.links {
		links[name] = *l
	}
	return links
}

// AddNode instantiates image as a new node. An empty name defaults to
// n<number of nodes + 1>.
func (topo *Topology) AddNode(image api.Image, opts NodeOptions) (api.Node, error) {
	topo.Lock()
	defer topo.Unlock()

	if opts.Name == "" {
		opts.Name = fmt.Sprintf("n%d", topo.nodeCount()+1)
	}
	if _, ok := topo.findNode(opts.Name); ok {
		return api.Node{}, &api.DuplicateNameError{Kind: api.KindNode, Name: opts.Name, Existing: topo.nodeNames()}
	}
	n, err := NewNode(image, opts)
	if err != nil {
		return api.Node{}, err
	}
	category, _ := api.Category(n.Type)
	if topo.nodes[category] == nil {
		topo.nodes[category] = make(map[string]*api.Node)
	}
	stored := n.Clone()
	topo.nodes[category][n.Name] = &stored
	return n, nil
}

// AddLink connects two existing nodes. An empty name defaults to
// l<number of links + 1>. Non-empty addresses must be IPv4 CIDRs and are
// recorded as interfaces on their nodes.
func (topo *Topology) AddLink(name, src, dst, srcIP, dstIP string) (api.Link, error) {
	topo.Lock()
	defer topo.Unlock()

	if err := network.CheckEndpoints(src, dst, srcIP, dstIP); err != nil {
		return api.Link{}, err
	}
	srcNode, ok := topo.findNode(src)
	if !ok {
		return api.Link{}, &api.NotFoundError{Kind: api.KindNode, Name: src, Available: topo.nodeNames()}
	}
	dstNode, ok := topo.findNode(dst)
	if !ok {
		return api.Link{}, &api.NotFoundError{Kind: api.KindNode, Name: dst, Available: topo.nodeNames()}
	}
	if name == "" {
		name = fmt.Sprintf("l%d", len(topo.links)+1)
	}
	if err := network.CheckParallelLink(name, src, dst, topo.linkSnapshot()); err != nil {
		return api.Link{}, err
	}
	if _, ok := topo.links[name]; ok {
		return api.Link{}, &api.DuplicateNameError{Kind: api.KindLink, Name: name, Existing: topo.linkNames()}
	}

	l := api.NewLink(name, *srcNode, *dstNode, srcIP, dstIP)
	if srcIP != "" {
		if err := network.AppendInterface(srcNode, dst, srcIP); err != nil {
			return api.Link{}, err
		}
	}
	if dstIP != "" {
		if err := network.AppendInterface(dstNode, src, dstIP); err != nil {
			return api.Link{}, err
		}
	}
	topo.links[name] = &l
	return l, nil
}

// RemoveLink deletes a link and the interfaces it added on its endpoints.
func (topo *Topology) RemoveLink(name string) error {
	topo.Lock()
	defer topo.Unlock()
	return topo.removeLink(name)
}

func (topo *Topology) removeLink(name string) error {
	l, ok := topo.links[name]
	if !ok {
		return &api.NotFoundError{Kind: api.KindLink, Name: name, Available: topo.linkNames()}
	}
	if l.SourceIP != "" {
		if n, ok := topo.findNode(l.Source); ok {
			network.RemoveInterface(n, l.Target)
		}
	}
	if l.TargetIP != "" {
		if n, ok := topo.findNode(l.Target); ok {
			network.RemoveInterface(n, l.Source)
		}
	}
	delete(topo.links, name)
	return nil
}

// RemoveNode deletes a node together with every link attached to it.
func (topo *Topology) RemoveNode(name string) error {
	topo.Lock()
	defer topo.Unlock()

	n, ok := topo.findNode(name)
	if !ok {
		return &api.NotFoundError{Kind: api.KindNode, Name: name, Available: topo.nodeNames()}
	}
	for _, linkName := range topo.linkNames() {
		l := topo.links[linkName]
		if l.Source == name || l.Target == name {
			if err := topo.removeLink(linkName); err != nil {
				return err
			}
		}
	}
	category, _ := api.Category(n.Type)
	delete(topo.nodes[category], name)
	return nil
}

func (topo *Topology) GetNode(name string) (api.Node, bool) {
	topo.Lock()
	defer topo.Unlock()
	n, ok := topo.findNode(name)
	if !ok {
		return api.Node{}, false
	}
	return n.Clone(), true
}

func (topo *Topology) GetLink(name string) (api.Link, bool) {
	topo.Lock()
	defer topo.Unlock()
	l, ok := topo.links[name]
	if !ok {
		return api.Link{}, false
	}
	return *l, true
}

// Nodes returns a copy of every node keyed by name.
func (topo *Topology) Nodes() map[string]api.Node {
	topo.Lock()
	defer topo.Unlock()
	out := make(map[string]api.Node, topo.nodeCount())
	for _, nodes := range topo.nodes {
		for name, n := range nodes {
			out[name] = n.Clone()
		}
	}
	return out
}

func (topo *Topology) Links() map[string]api.Link {
	topo.Lock()
	defer topo.Unlock()
	return topo.linkSnapshot()
}

func (topo *Topology) NodeNames() []string {
	topo.Lock()
	defer topo.Unlock()
	return topo.nodeNames()
}

func (topo *Topology) LinkNames() []string {
	topo.Lock()
	defer topo.Unlock()
	return topo.linkNames()
}

// Clear empties the topology.
func (topo *Topology) Clear() {
	fresh := CreateTopology()
	topo.Lock()
	defer topo.Unlock()
	topo.nodes = fresh.nodes
	topo.links = fresh.links
}

// Networks returns the wire description of the topology.
func (topo *Topology) Networks() api.Networks {
	topo.Lock()
	defer topo.Unlock()
	out := api.NewNetworks()
	for c, nodes := range topo.nodes {
		out.Nodes[c] = make(map[string]api.Node, len(nodes))
		for name, n := range nodes {
			out.Nodes[c][name] = n.Clone()
		}
	}
	out.Links = topo.linkSnapshot()
	return out
}

// FromNetworks rebuilds a topology from a wire description. Interfaces are
// taken as recorded; every other invariant is checked.
func FromNetworks(desc api.Networks) (*Topology, error) {
	topo := CreateTopology()
	categoryNames := make([]string, 0, len(desc.Nodes))
	for c := range desc.Nodes {
		categoryNames = append(categoryNames, c)
	}
	slices.Sort(categoryNames)
	for _, c := range categoryNames {
		if !api.IsCategory(c) {
			return nil, &api.UnsupportedTypeError{Type: c}
		}
		if topo.nodes[c] == nil {
			topo.nodes[c] = make(map[string]*api.Node)
		}
		for name, n := range desc.Nodes[c] {
			if n.Name == "" {
				n.Name = name
			}
			if n.Name != name {
				return nil, &api.ConsistencyError{Subject: "node key", Expected: name, Actual: n.Name}
			}
			category, err := api.Category(n.Type)
			if err != nil {
				return nil, err
			}
			if category != c {
				return nil, &api.ConsistencyError{Subject: "category of node " + name, Expected: category, Actual: c}
			}
			if _, ok := topo.findNode(name); ok {
				return nil, &api.DuplicateNameError{Kind: api.KindNode, Name: name, Existing: topo.nodeNames()}
			}
			stored := n.Clone()
			topo.nodes[c][name] = &stored
		}
	}

	linkNames := make([]string, 0, len(desc.Links))
	for name := range desc.Links {
		linkNames = append(linkNames, name)
	}
	slices.Sort(linkNames)
	for _, name := range linkNames {
		l := desc.Links[name]
		if l.Name == "" {
			l.Name = name
		}
		if l.Name != name {
			return nil, &api.ConsistencyError{Subject: "link key", Expected: name, Actual: l.Name}
		}
		if err := network.CheckEndpoints(l.Source, l.Target, l.SourceIP, l.TargetIP); err != nil {
			return nil, err
		}
		for _, end := range []string{l.Source, l.Target} {
			if _, ok := topo.findNode(end); !ok {
				return nil, &api.NotFoundError{Kind: api.KindNode, Name: end, Available: topo.nodeNames()}
			}
		}
		if err := network.CheckParallelLink(name, l.Source, l.Target, topo.linkSnapshot()); err != nil {
			return nil, err
		}
		stored := l
		topo.links[name] = &stored
	}
	return topo, nil
}

func (topo *Topology) MarshalJSON() ([]byte, error) {
	return json.Marshal(topo.Networks())
}

func (topo *Topology) UnmarshalJSON(data []byte) error {
	var desc api.Networks
	if err := json.Unmarshal(data, &desc); err != nil {
		return err
	}
	loaded, err := FromNetworks(desc)
	if err != nil {
		return err
	}
	topo.Lock()
	defer topo.Unlock()
	topo.nodes = loaded.nodes
	topo.links = loaded.links
	return nil
}
