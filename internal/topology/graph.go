package topology

import (
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	gtopo "gonum.org/v1/gonum/graph/topo"

	"github.com/David-Antunes/klonet/api"
)

type nodeGraph struct {
	g     *simple.UndirectedGraph
	ids   map[string]int64
	names map[int64]string
}

func (topo *Topology) buildGraph() nodeGraph {
	ng := nodeGraph{
		g:     simple.NewUndirectedGraph(),
		ids:   make(map[string]int64),
		names: make(map[int64]string),
	}
	for i, name := range topo.nodeNames() {
		id := int64(i)
		ng.ids[name] = id
		ng.names[id] = name
		ng.g.AddNode(simple.Node(id))
	}
	for _, l := range topo.links {
		from, okFrom := ng.ids[l.Source]
		to, okTo := ng.ids[l.Target]
		if !okFrom || !okTo {
			continue
		}
		ng.g.SetEdge(ng.g.NewEdge(simple.Node(from), simple.Node(to)))
	}
	return ng
}

// ShortestPath returns the node names on a minimum hop path from src to dst,
// or nil when dst is unreachable.
func (topo *Topology) ShortestPath(src, dst string) ([]string, error) {
	topo.Lock()
	defer topo.Unlock()

	ng := topo.buildGraph()
	for _, name := range []string{src, dst} {
		if _, ok := ng.ids[name]; !ok {
			return nil, &api.NotFoundError{Kind: api.KindNode, Name: name, Available: topo.nodeNames()}
		}
	}
	shortest := path.DijkstraFrom(ng.g.Node(ng.ids[src]), ng.g)
	nodes, _ := shortest.To(ng.ids[dst])
	if len(nodes) == 0 {
		return nil, nil
	}
	return ng.namesOf(nodes), nil
}

// Components groups node names by connected component, largest first.
func (topo *Topology) Components() [][]string {
	topo.Lock()
	defer topo.Unlock()

	ng := topo.buildGraph()
	var out [][]string
	for _, cc := range gtopo.ConnectedComponents(ng.g) {
		names := ng.namesOf(cc)
		slices.Sort(names)
		out = append(out, names)
	}
	slices.SortFunc(out, func(a, b []string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		if a[0] < b[0] {
			return -1
		}
		return 1
	})
	return out
}

func (ng nodeGraph) namesOf(nodes []graph.Node) []string {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, ng.names[n.ID()])
	}
	return names
}
