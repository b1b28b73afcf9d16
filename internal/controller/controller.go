package controller

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/David-Antunes/klonet/api"
	"github.com/David-Antunes/klonet/internal/backend"
	"github.com/David-Antunes/klonet/internal/command"
	"github.com/David-Antunes/klonet/internal/image"
	"github.com/David-Antunes/klonet/internal/link"
	"github.com/David-Antunes/klonet/internal/network"
	"github.com/David-Antunes/klonet/internal/node"
	"github.com/David-Antunes/klonet/internal/project"
	"github.com/David-Antunes/klonet/internal/topology"
)

var controllerLog = logrus.WithField("component", "controller")

// ImageSource resolves image names to images.
type ImageSource interface {
	ListImages(ctx context.Context) (map[string]api.Image, error)
}

// GraphMirror keeps a copy of a project topology in a graph store.
type GraphMirror interface {
	Sync(ctx context.Context, project string, networks api.Networks) error
	ShortestPath(ctx context.Context, project, src, dst string) ([]string, error)
}

type Option func(*Controller)

func WithImageSource(src ImageSource) Option {
	return func(c *Controller) {
		c.images = src
	}
}

func WithGraphMirror(g GraphMirror) Option {
	return func(c *Controller) {
		c.graph = g
	}
}

func WithWaitOptions(w project.WaitOptions) Option {
	return func(c *Controller) {
		c.wait = w
	}
}

// Controller is one session bound to a user, a project and a backend. It is
// not safe for concurrent use.
type Controller struct {
	user    string
	project string

	Nodes    *node.Manager
	Links    *link.Manager
	Projects *project.Manager
	Commands *command.Manager

	images     ImageSource
	imageCache map[string]api.Image
	graph      GraphMirror
	wait       project.WaitOptions

	topo *topology.Topology
	// linkProps holds the QoS edits applied so far, link -> node -> fields.
	linkProps map[string]map[string]network.LinkProps
}

func New(client *backend.Client, user, projectName string, opts ...Option) (*Controller, error) {
	if user == "" {
		return nil, &api.ConfigurationError{Field: "user", Reason: "is not set"}
	}
	if projectName == "" {
		return nil, &api.ConfigurationError{Field: "project", Reason: "is not set"}
	}
	c := &Controller{
		user:      user,
		project:   projectName,
		Nodes:     node.NewManager(client, user, projectName),
		Links:     link.NewManager(client, user, projectName),
		Projects:  project.NewManager(client, user),
		Commands:  command.NewManager(client, user, projectName),
		images:    image.NewManager(client, user),
		topo:      topology.CreateTopology(),
		linkProps: make(map[string]map[string]network.LinkProps),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Controller) User() string {
	return c.user
}

func (c *Controller) Project() string {
	return c.project
}

// Topology is the local design of the project.
func (c *Controller) Topology() *topology.Topology {
	return c.topo
}

// SetTopology replaces the local design, for instance with one read from a file.
func (c *Controller) SetTopology(topo *topology.Topology) {
	c.topo = topo
}

// Images fetches the catalog once per session.
func (c *Controller) Images(ctx context.Context) (map[string]api.Image, error) {
	if c.imageCache != nil {
		return c.imageCache, nil
	}
	images, err := c.images.ListImages(ctx)
	if err != nil {
		return nil, err
	}
	c.imageCache = images
	return images, nil
}

func (c *Controller) Image(ctx context.Context, name string) (api.Image, error) {
	images, err := c.Images(ctx)
	if err != nil {
		return api.Image{}, err
	}
	img, ok := images[name]
	if !ok {
		return api.Image{}, &api.NotFoundError{Kind: api.KindImage, Name: name, Available: image.Names(images)}
	}
	return img, nil
}

// AddNode adds a node to the local design.
func (c *Controller) AddNode(ctx context.Context, imageName string, opts topology.NodeOptions) (api.Node, error) {
	img, err := c.Image(ctx, imageName)
	if err != nil {
		return api.Node{}, err
	}
	return c.topo.AddNode(img, opts)
}

// AddLink adds a link to the local design.
func (c *Controller) AddLink(name, src, dst, srcIP, dstIP string) (api.Link, error) {
	return c.topo.AddLink(name, src, dst, srcIP, dstIP)
}

func (c *Controller) AddNodeRuntime(ctx context.Context, imageName string, opts topology.NodeOptions) (api.Node, error) {
	img, err := c.Image(ctx, imageName)
	if err != nil {
		return api.Node{}, err
	}
	return c.Nodes.DynamicAddNode(ctx, img, opts)
}

// DeleteNodeRuntime removes a node from the running project. The backend
// drops the links attached to it, so their remembered edits go as well.
func (c *Controller) DeleteNodeRuntime(ctx context.Context, name string) error {
	attached := make(map[string]struct{})
	for linkName, l := range c.topo.Links() {
		if l.Source == name || l.Target == name {
			attached[linkName] = struct{}{}
		}
	}
	links, err := c.Links.GetLinks(ctx)
	if err != nil {
		return err
	}
	for linkName, l := range links {
		if l.Source == name || l.Target == name {
			attached[linkName] = struct{}{}
		}
	}

	if err := c.Nodes.DynamicDeleteNode(ctx, name); err != nil {
		return err
	}
	for linkName := range attached {
		delete(c.linkProps, linkName)
	}
	return nil
}

func (c *Controller) AddLinkRuntime(ctx context.Context, name, src, dst, srcIP, dstIP string) (api.Link, error) {
	return c.Links.DynamicAddLink(ctx, name, src, dst, srcIP, dstIP)
}

func (c *Controller) DeleteLinkRuntime(ctx context.Context, name string) error {
	if err := c.Links.DynamicDeleteLink(ctx, name); err != nil {
		return err
	}
	delete(c.linkProps, name)
	return nil
}

func (c *Controller) findLink(ctx context.Context, name string) (api.Link, error) {
	if l, ok := c.topo.GetLink(name); ok {
		return l, nil
	}
	return c.Links.GetLink(ctx, name)
}

// ConfigureLink applies a QoS edit to one side of a link. Earlier edits of
// both sides are kept, and the side not named gets defaults until it is
// configured itself. The edit is remembered only if the backend accepts it.
// The full configuration of the edited side is returned.
func (c *Controller) ConfigureLink(ctx context.Context, props network.LinkProps) (api.LinkConfiguration, error) {
	if err := props.Validate(); err != nil {
		return api.LinkConfiguration{}, err
	}
	l, err := c.findLink(ctx, props.Link)
	if err != nil {
		return api.LinkConfiguration{}, err
	}
	peer, ok := l.Peer(props.Ne)
	if !ok {
		return api.LinkConfiguration{}, &api.ConsistencyError{
			Subject:  "side of link " + l.Name,
			Expected: l.Source + " or " + l.Target,
			Actual:   props.Ne,
		}
	}

	staged := make(map[string]network.LinkProps, 2)
	for ne, p := range c.linkProps[l.Name] {
		staged[ne] = p
	}
	staged[props.Ne] = staged[props.Ne].Merge(props)
	if _, ok := staged[peer]; !ok {
		staged[peer] = network.LinkProps{Link: l.Name, Ne: peer}
	}

	if err := c.Links.ConfigLink(ctx, staged[l.Source].Build(), staged[l.Target].Build()); err != nil {
		return api.LinkConfiguration{}, err
	}
	c.linkProps[l.Name] = staged
	controllerLog.WithField("project", c.project).Infof("configured link %s on %s", l.Name, props.Ne)
	return staged[props.Ne].Build(), nil
}

// LinkConfiguration returns what this session last applied to one side of a link.
func (c *Controller) LinkConfiguration(linkName, ne string) (api.LinkConfiguration, bool) {
	p, ok := c.linkProps[linkName][ne]
	if !ok {
		return api.LinkConfiguration{}, false
	}
	return p.Build(), true
}

// ResetLink clears the QoS of a link on the backend. With clearCache every
// remembered edit of every link is forgotten; otherwise the next
// ConfigureLink of this link re-applies its edits.
func (c *Controller) ResetLink(ctx context.Context, name string, clearCache bool) error {
	if err := c.Links.ClearLinkConfiguration(ctx, name); err != nil {
		return err
	}
	if clearCache {
		c.linkProps = make(map[string]map[string]network.LinkProps)
	}
	return nil
}

// Deploy creates the project from the local design and waits for it.
func (c *Controller) Deploy(ctx context.Context) (float64, error) {
	return c.Projects.Deploy(ctx, c.project, c.topo, c.wait)
}

// ResetProject destroys the project and forgets the local design and the
// link edits.
func (c *Controller) ResetProject(ctx context.Context) (float64, error) {
	progress, err := c.Projects.Destroy(ctx, c.project, c.wait)
	if err != nil {
		return progress, err
	}
	c.topo.Clear()
	c.linkProps = make(map[string]map[string]network.LinkProps)
	return progress, nil
}

func (c *Controller) Progress(ctx context.Context, usage string) (float64, error) {
	return c.Projects.GetProgress(ctx, c.project, usage)
}

func (c *Controller) Execute(ctx context.Context, nodeToCommands map[string][]string, block bool, timeout time.Duration) (map[string]map[string]api.CommandResult, error) {
	return c.Commands.ExecCommandsInNodes(ctx, nodeToCommands, block, timeout)
}

func (c *Controller) EnableSSH(ctx context.Context, nodeName string, enable bool, password string) error {
	return c.Nodes.SSHService(ctx, nodeName, enable, password)
}

func (c *Controller) PortMapping(ctx context.Context, nodeName string, ports []int) error {
	return c.Nodes.PortMapping(ctx, nodeName, ports)
}

func (c *Controller) GetPortMapping(ctx context.Context, nodeName string) (api.PortMapping, error) {
	return c.Nodes.GetPortMapping(ctx, nodeName)
}

// Sync replaces the local design with what the backend holds.
func (c *Controller) Sync(ctx context.Context) error {
	topo, err := c.Projects.GetTopo(ctx, c.project)
	if err != nil {
		return err
	}
	c.topo = topo
	return nil
}

// SyncGraph copies the backend topology into the graph mirror.
func (c *Controller) SyncGraph(ctx context.Context) error {
	if c.graph == nil {
		return &api.ConfigurationError{Field: "graph database", Reason: "is not configured"}
	}
	networks, err := c.Nodes.GetNetworks(ctx)
	if err != nil {
		return err
	}
	return c.graph.Sync(ctx, c.project, networks)
}

func (c *Controller) GraphPath(ctx context.Context, src, dst string) ([]string, error) {
	if c.graph == nil {
		return nil, &api.ConfigurationError{Field: "graph database", Reason: "is not configured"}
	}
	return c.graph.ShortestPath(ctx, c.project, src, dst)
}
