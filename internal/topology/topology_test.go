package topology

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/David-Antunes/klonet/api"
)

func hostImage() api.Image {
	return api.Image{
		Type:          api.TypeHost,
		Subtype:       "ubuntu",
		ImageName:     "vemu/ubuntu:20.04",
		ResourceLimit: api.ResourceLimit{CPU: "100", Mem: "512"},
		Interfaces:    []api.Interface{},
		Config:        map[string]any{"cmd": []any{"bash"}},
	}
}

func switchImage() api.Image {
	return api.Image{Type: api.TypeSwitch, Subtype: "ovs", ImageName: "vemu/ovs", Config: map[string]any{}}
}

func Test_Unique_Node_Names(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t)
	})

	topo := CreateTopology()
	for _, name := range []string{"h1", "h2", "h3"} {
		_, err := topo.AddNode(hostImage(), NodeOptions{Name: name})
		require.NoError(t, err)
	}
	nodes := topo.Nodes()
	require.Len(t, nodes, 3)
	require.Contains(t, nodes, "h2")

	_, err := topo.AddNode(switchImage(), NodeOptions{Name: "h2"})
	var dup *api.DuplicateNameError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, api.KindNode, dup.Kind)
	require.Equal(t, []string{"h1", "h2", "h3"}, dup.Existing)
	require.Len(t, topo.Nodes(), 3)
}

func Test_Node_Is_Cloned_From_Image(t *testing.T) {
	img := hostImage()
	topo := CreateTopology()
	n, err := topo.AddNode(img, NodeOptions{
		Name:          "h1",
		ResourceLimit: &api.ResourceLimit{CPU: "200", Mem: "1024"},
		Location:      api.Location{X: 10, Y: 20},
		Worker:        "172.17.0.16",
	})
	require.NoError(t, err)
	require.Equal(t, "200", n.ResourceLimit.CPU)
	require.Equal(t, 10, n.X)
	require.Equal(t, "172.17.0.16", n.Worker())

	require.Equal(t, "100", img.ResourceLimit.CPU)
	require.NotContains(t, img.Config, api.WorkerSpecifiedKey)

	n.Config["cmd"].([]any)[0] = "sh"
	stored, ok := topo.GetNode("h1")
	require.True(t, ok)
	require.Equal(t, "bash", stored.Config["cmd"].([]any)[0])

	_, err = topo.AddNode(img, NodeOptions{Name: "h2", Location: api.Location{X: -1}})
	var argErr *api.InvalidArgumentError
	require.ErrorAs(t, err, &argErr)

	_, err = topo.AddNode(api.Image{Type: "laptop"}, NodeOptions{Name: "h3"})
	var typeErr *api.UnsupportedTypeError
	require.ErrorAs(t, err, &typeErr)
}

func Test_Default_Names_Follow_Current_Size(t *testing.T) {
	topo := CreateTopology()
	n1, err := topo.AddNode(hostImage(), NodeOptions{})
	require.NoError(t, err)
	require.Equal(t, "n1", n1.Name)
	n2, err := topo.AddNode(switchImage(), NodeOptions{})
	require.NoError(t, err)
	require.Equal(t, "n2", n2.Name)

	l, err := topo.AddLink("", "n1", "n2", "", "")
	require.NoError(t, err)
	require.Equal(t, "l1", l.Name)

	require.NoError(t, topo.RemoveNode("n1"))
	require.NoError(t, topo.RemoveNode("n2"))
	require.Empty(t, topo.Links())

	again, err := topo.AddNode(hostImage(), NodeOptions{})
	require.NoError(t, err)
	require.Equal(t, "n1", again.Name)
}

func Test_Default_Name_Collision_Is_Duplicate(t *testing.T) {
	topo := CreateTopology()
	_, err := topo.AddNode(hostImage(), NodeOptions{Name: "n2"})
	require.NoError(t, err)
	_, err = topo.AddNode(hostImage(), NodeOptions{})
	var dup *api.DuplicateNameError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "n2", dup.Name)
}

func Test_Links(t *testing.T) {
	topo := CreateTopology()
	_, err := topo.AddNode(hostImage(), NodeOptions{Name: "h1"})
	require.NoError(t, err)
	_, err = topo.AddNode(switchImage(), NodeOptions{Name: "s1"})
	require.NoError(t, err)
	_, err = topo.AddNode(hostImage(), NodeOptions{Name: "h2"})
	require.NoError(t, err)

	var selfErr *api.SelfLinkError
	_, err = topo.AddLink("", "h1", "h1", "", "")
	require.ErrorAs(t, err, &selfErr)

	var addrErr *api.InvalidAddressError
	_, err = topo.AddLink("", "h1", "s1", "10.0.0.1/33", "")
	require.ErrorAs(t, err, &addrErr)

	var notFound *api.NotFoundError
	_, err = topo.AddLink("", "h1", "h9", "", "")
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, []string{"h1", "h2", "s1"}, notFound.Available)

	l, err := topo.AddLink("", "h1", "s1", "10.0.0.1/24", "")
	require.NoError(t, err)
	require.Equal(t, "l1", l.Name)
	require.Equal(t, api.TypeHost, l.SourceType)
	require.Equal(t, api.TypeSwitch, l.TargetType)
	require.Equal(t, "normal", l.Config.Source.DelayDistribution)
	require.Equal(t, "", l.Config.Target.BwKbit)

	var parallel *api.ParallelLinkError
	_, err = topo.AddLink("other", "s1", "h1", "", "")
	require.ErrorAs(t, err, &parallel)
	require.Equal(t, "l1", parallel.Existing)

	var dup *api.DuplicateNameError
	_, err = topo.AddLink("l1", "h2", "s1", "", "")
	require.ErrorAs(t, err, &dup)
	require.Equal(t, api.KindLink, dup.Kind)
	require.Len(t, topo.Links(), 1)

	h1, _ := topo.GetNode("h1")
	require.Equal(t, []api.Interface{{IP: "10.0.0.1", Netmask: "255.255.255.0", Name: "h1s1"}}, h1.Interfaces)
	s1, _ := topo.GetNode("s1")
	require.Empty(t, s1.Interfaces)

	_, err = topo.AddLink("l2", "s1", "h2", "10.0.0.254/24", "10.0.0.2/24")
	require.NoError(t, err)
	s1, _ = topo.GetNode("s1")
	require.Equal(t, "s1h2", s1.Interfaces[0].Name)
	h2, _ := topo.GetNode("h2")
	require.Equal(t, "h2s1", h2.Interfaces[0].Name)

	require.NoError(t, topo.RemoveLink("l2"))
	s1, _ = topo.GetNode("s1")
	require.Empty(t, s1.Interfaces)
	require.ErrorAs(t, topo.RemoveLink("l2"), &notFound)
}

func Test_Networks_Round_Trip(t *testing.T) {
	topo := CreateTopology()
	_, err := topo.AddNode(hostImage(), NodeOptions{Name: "h1"})
	require.NoError(t, err)
	_, err = topo.AddNode(switchImage(), NodeOptions{Name: "s1"})
	require.NoError(t, err)
	_, err = topo.AddLink("l1", "h1", "s1", "10.0.0.1/24", "")
	require.NoError(t, err)

	data, err := json.Marshal(topo)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"hosts", "switches", "routers", "controllers", "links"} {
		require.Contains(t, raw, key)
	}

	loaded := CreateTopology()
	require.NoError(t, json.Unmarshal(data, loaded))
	require.Equal(t, topo.Nodes(), loaded.Nodes())
	require.Equal(t, topo.Links(), loaded.Links())
}

func Test_From_Networks_Checks_Invariants(t *testing.T) {
	desc := api.NewNetworks()
	desc.Nodes["hosts"]["h1"] = api.Node{Image: hostImage(), Name: "h1"}
	desc.Nodes["hosts"]["h2"] = api.Node{Image: hostImage(), Name: "h2"}
	desc.Links["l1"] = api.Link{Name: "l1", Source: "h1", Target: "h2"}
	desc.Links["l2"] = api.Link{Name: "l2", Source: "h2", Target: "h1"}

	_, err := FromNetworks(desc)
	var parallel *api.ParallelLinkError
	require.ErrorAs(t, err, &parallel)

	delete(desc.Links, "l2")
	desc.Nodes["switches"]["h1"] = api.Node{Image: switchImage(), Name: "h1"}
	_, err = FromNetworks(desc)
	var dup *api.DuplicateNameError
	require.ErrorAs(t, err, &dup)

	delete(desc.Nodes["switches"], "h1")
	desc.Nodes["switches"]["s1"] = api.Node{Image: hostImage(), Name: "s1"}
	_, err = FromNetworks(desc)
	var consistency *api.ConsistencyError
	require.ErrorAs(t, err, &consistency)
}

func Test_File_Round_Trip(t *testing.T) {
	topo := CreateTopology()
	_, err := topo.AddNode(hostImage(), NodeOptions{Name: "h1"})
	require.NoError(t, err)
	_, err = topo.AddNode(switchImage(), NodeOptions{Name: "s1"})
	require.NoError(t, err)
	_, err = topo.AddLink("l1", "h1", "s1", "10.0.0.1/24", "")
	require.NoError(t, err)

	dir := t.TempDir()
	for _, name := range []string{"topo.yaml", "topo.json"} {
		file := filepath.Join(dir, name)
		require.NoError(t, topo.WriteToFile(file))
		loaded, err := ReadFromFile(file)
		require.NoError(t, err, name)
		require.Equal(t, topo.Nodes(), loaded.Nodes(), name)
		require.Equal(t, topo.Links(), loaded.Links(), name)
	}
}

func Test_File_Is_Strict(t *testing.T) {
	dir := t.TempDir()

	unknownField := filepath.Join(dir, "field.json")
	require.NoError(t, os.WriteFile(unknownField,
		[]byte(`{"hosts": {"h1": {"name": "h1", "type": "host", "colour": "red"}}, "links": {}}`), 0o644))
	_, err := ReadFromFile(unknownField)
	require.Error(t, err)

	unknownCategory := filepath.Join(dir, "category.yaml")
	require.NoError(t, os.WriteFile(unknownCategory, []byte("laptops: {}\nlinks: {}\n"), 0o644))
	_, err = ReadFromFile(unknownCategory)
	var typeErr *api.UnsupportedTypeError
	require.ErrorAs(t, err, &typeErr)
}

func Test_Paths_And_Components(t *testing.T) {
	topo := CreateTopology()
	for _, name := range []string{"h1", "h2", "h3"} {
		_, err := topo.AddNode(hostImage(), NodeOptions{Name: name})
		require.NoError(t, err)
	}
	for _, name := range []string{"s1", "s2"} {
		_, err := topo.AddNode(switchImage(), NodeOptions{Name: name})
		require.NoError(t, err)
	}
	_, err := topo.AddLink("", "h1", "s1", "", "")
	require.NoError(t, err)
	_, err = topo.AddLink("", "s1", "s2", "", "")
	require.NoError(t, err)
	_, err = topo.AddLink("", "s2", "h2", "", "")
	require.NoError(t, err)

	path, err := topo.ShortestPath("h1", "h2")
	require.NoError(t, err)
	require.Equal(t, []string{"h1", "s1", "s2", "h2"}, path)

	path, err = topo.ShortestPath("h1", "h3")
	require.NoError(t, err)
	require.Nil(t, path)

	_, err = topo.ShortestPath("h1", "x")
	var notFound *api.NotFoundError
	require.ErrorAs(t, err, &notFound)

	require.Equal(t, [][]string{{"h1", "h2", "s1", "s2"}, {"h3"}}, topo.Components())
}
