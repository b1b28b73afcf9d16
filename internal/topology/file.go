package topology

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/David-Antunes/klonet/api"
)

func isYAML(filename string) bool {
	ext := strings.ToLower(path.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// WriteToFile stores the topology description as YAML or JSON depending on
// the file extension.
func (topo *Topology) WriteToFile(filename string) error {
	data, err := json.MarshalIndent(topo.Networks(), "", "\t")
	if err != nil {
		return err
	}
	if isYAML(filename) {
		var generic map[string]any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		if data, err = yaml.Marshal(generic); err != nil {
			return err
		}
	}
	return os.WriteFile(filename, data, 0o644)
}

// ReadFromFile loads a topology description written by WriteToFile or by hand.
// Unknown categories and unknown fields are rejected.
func ReadFromFile(filename string) (*Topology, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if isYAML(filename) {
		var generic map[string]any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("topology %s: %w", filename, err)
		}
		if data, err = json.Marshal(generic); err != nil {
			return nil, fmt.Errorf("topology %s: %w", filename, err)
		}
	}
	topo, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("topology %s: %w", filename, err)
	}
	return topo, nil
}

// Decode parses a JSON topology description strictly.
func Decode(data []byte) (*Topology, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	desc := api.NewNetworks()
	for key, value := range raw {
		switch {
		case key == api.LinksCategory:
			if err := strictDecode(value, &desc.Links); err != nil {
				return nil, fmt.Errorf("links: %w", err)
			}
		case api.IsCategory(key):
			nodes := make(map[string]api.Node)
			if err := strictDecode(value, &nodes); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			desc.Nodes[key] = nodes
		default:
			return nil, &api.UnsupportedTypeError{Type: key}
		}
	}
	if desc.Links == nil {
		desc.Links = make(map[string]api.Link)
	}
	return FromNetworks(desc)
}

func strictDecode(data []byte, v any) error {
	d := json.NewDecoder(bytes.NewReader(data))
	d.DisallowUnknownFields()
	return d.Decode(v)
}
