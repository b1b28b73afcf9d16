package api

import (
	"encoding/json"
	"fmt"
)

const (
	TypeHost       = "host"
	TypeSwitch     = "switch"
	TypeRouter     = "router"
	TypeController = "controller"
	TypeFloodlight = "floodlight"
	TypeDpdk       = "dpdk"

	LinksCategory = "links"
)

var categories = map[string]string{
	TypeHost:       "hosts",
	TypeSwitch:     "switches",
	TypeRouter:     "routers",
	TypeController: "controllers",
	TypeFloodlight: "floodlights",
	TypeDpdk:       "dpdks",
}

// Category returns the plural key a node of the given type is stored under.
func Category(nodeType string) (string, error) {
	c, ok := categories[nodeType]
	if !ok {
		return "", &UnsupportedTypeError{Type: nodeType}
	}
	return c, nil
}

// IsCategory reports whether key names a node category of a topology.
func IsCategory(key string) bool {
	for _, c := range categories {
		if c == key {
			return true
		}
	}
	return false
}

// DefaultCategories are always present in a topology description, even when empty.
func DefaultCategories() []string {
	return []string{"controllers", "hosts", "routers", "switches"}
}

type ResourceLimit struct {
	CPU string `json:"cpu" yaml:"cpu"`
	Mem string `json:"mem" yaml:"mem"`
}

type Interface struct {
	IP      string `json:"ip" yaml:"ip"`
	Netmask string `json:"netmask" yaml:"netmask"`
	Name    string `json:"name" yaml:"name"`
}

type Location struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Image struct {
	Type          string         `json:"type"`
	Subtype       string         `json:"subtype"`
	ImageName     string         `json:"image_name"`
	ResourceLimit ResourceLimit  `json:"resource_limit"`
	Interfaces    []Interface    `json:"interfaces"`
	Config        map[string]any `json:"config"`
}

func (img Image) Clone() Image {
	c := img
	if img.Interfaces != nil {
		c.Interfaces = make([]Interface, len(img.Interfaces))
		copy(c.Interfaces, img.Interfaces)
	} else {
		c.Interfaces = []Interface{}
	}
	c.Config = cloneBag(img.Config)
	if c.Config == nil {
		c.Config = map[string]any{}
	}
	return c
}

func cloneBag(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneBag(t)
	case []any:
		s := make([]any, len(t))
		for i := range t {
			s[i] = cloneValue(t[i])
		}
		return s
	default:
		return v
	}
}

const WorkerSpecifiedKey = "worker_specified"

type Node struct {
	Image
	Name string `json:"name"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

func (n Node) Clone() Node {
	c := n
	c.Image = n.Image.Clone()
	return c
}

// Worker returns the worker hint stored in the node configuration, if any.
func (n Node) Worker() string {
	w, _ := n.Config[WorkerSpecifiedKey].(string)
	return w
}

// LinkEndConfig is the per-side block carried by a link record. The backend
// expects every value as a string and an unset block on creation.
type LinkEndConfig struct {
	BwKbit            string `json:"bw_kbit"`
	QueueSizeByte     string `json:"queue_size_byte"`
	DelayUs           string `json:"delay_us"`
	LossRate          string `json:"loss_rate"`
	JitterUs          string `json:"jitter_us"`
	Correlation       string `json:"correlation"`
	DelayDistribution string `json:"delay_distribution"`
}

func UnsetLinkEndConfig() LinkEndConfig {
	return LinkEndConfig{DelayDistribution: "normal"}
}

type LinkConfig struct {
	Source LinkEndConfig `json:"source"`
	Target LinkEndConfig `json:"target"`
}

type Link struct {
	Name       string     `json:"name"`
	Source     string     `json:"source"`
	SourceIP   string     `json:"sourceIP"`
	SourceType string     `json:"sourceType"`
	Target     string     `json:"target"`
	TargetIP   string     `json:"targetIP"`
	TargetType string     `json:"targetType"`
	Config     LinkConfig `json:"config"`
}

func NewLink(name string, src, dst Node, srcIP, dstIP string) Link {
	return Link{
		Name:       name,
		Source:     src.Name,
		SourceIP:   srcIP,
		SourceType: src.Type,
		Target:     dst.Name,
		TargetIP:   dstIP,
		TargetType: dst.Type,
		Config: LinkConfig{
			Source: UnsetLinkEndConfig(),
			Target: UnsetLinkEndConfig(),
		},
	}
}

// Peer returns the endpoint opposite to ne and whether ne is on the link.
func (l Link) Peer(ne string) (string, bool) {
	switch ne {
	case l.Source:
		return l.Target, true
	case l.Target:
		return l.Source, true
	}
	return "", false
}

const (
	LinkChoiceStatic = "static"
	QosLinkPrefix    = "link_"

	DefaultBwKbps            = 10000
	DefaultCorrelation       = "0%"
	DefaultDelayDistribution = "uniform"
	DefaultQueueSizeBytes    = 100000
)

// LinkConfiguration is the QoS applied to one side (ne) of a link.
// Numbers travel as JSON strings.
type LinkConfiguration struct {
	BwKbps            int     `json:"bw_kbps,string"`
	DelayUs           int     `json:"delay_us,string"`
	JitterUs          int     `json:"jitter_us,string"`
	Correlation       string  `json:"correlation"`
	DelayDistribution string  `json:"delay_distribution"`
	Loss              float64 `json:"loss,string"`
	QueueSizeBytes    int     `json:"queue_size_bytes,string"`
	LinkChoice        string  `json:"linkchoice"`
	Link              string  `json:"link"`
	Ne                string  `json:"ne"`
}

func DefaultLinkConfiguration(link, ne string) LinkConfiguration {
	return LinkConfiguration{
		BwKbps:            DefaultBwKbps,
		Correlation:       DefaultCorrelation,
		DelayDistribution: DefaultDelayDistribution,
		QueueSizeBytes:    DefaultQueueSizeBytes,
		LinkChoice:        LinkChoiceStatic,
		Link:              link,
		Ne:                ne,
	}
}

func (c LinkConfiguration) String() string {
	return fmt.Sprintf("%s@%s bw=%dkbps delay=%dus jitter=%dus corr=%s dist=%s loss=%g queue=%dB",
		c.Link, c.Ne, c.BwKbps, c.DelayUs, c.JitterUs, c.Correlation, c.DelayDistribution, c.Loss, c.QueueSizeBytes)
}

// LinkChoice names one side of a link when clearing its QoS.
type LinkChoice struct {
	Link       string `json:"link"`
	LinkChoice string `json:"linkchoice"`
	Ne         string `json:"ne"`
}

// Networks is the wire form of a topology: node categories keyed by plural
// type plus the links map.
type Networks struct {
	Nodes map[string]map[string]Node
	Links map[string]Link
}

func NewNetworks() Networks {
	n := Networks{
		Nodes: make(map[string]map[string]Node),
		Links: make(map[string]Link),
	}
	for _, c := range DefaultCategories() {
		n.Nodes[c] = make(map[string]Node)
	}
	return n
}

// AllNodes flattens every category.
func (n Networks) AllNodes() map[string]Node {
	out := make(map[string]Node)
	for _, nodes := range n.Nodes {
		for name, node := range nodes {
			out[name] = node
		}
	}
	return out
}

func (n Networks) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Nodes)+1)
	for c, nodes := range n.Nodes {
		if nodes == nil {
			nodes = map[string]Node{}
		}
		out[c] = nodes
	}
	links := n.Links
	if links == nil {
		links = map[string]Link{}
	}
	out[LinksCategory] = links
	return json.Marshal(out)
}

// UnmarshalJSON decodes the node categories and links; keys that are
// neither are ignored.
func (n *Networks) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = NewNetworks()
	for key, value := range raw {
		switch {
		case key == LinksCategory:
			if err := json.Unmarshal(value, &n.Links); err != nil {
				return fmt.Errorf("decoding links: %w", err)
			}
			if n.Links == nil {
				n.Links = make(map[string]Link)
			}
		case IsCategory(key):
			nodes := make(map[string]Node)
			if err := json.Unmarshal(value, &nodes); err != nil {
				return fmt.Errorf("decoding %s: %w", key, err)
			}
			if nodes == nil {
				nodes = make(map[string]Node)
			}
			n.Nodes[key] = nodes
		}
	}
	return nil
}
