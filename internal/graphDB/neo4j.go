package graphDB

import (
	"context"
	"fmt"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/David-Antunes/klonet/api"
)

var graphLog = logrus.WithField("component", "graphDB")

// Querier runs one cypher statement.
type Querier func(ctx context.Context, query string, args map[string]any) (*neo4j.EagerResult, error)

// Mirror stores project topologies as (:Node)-[:LINK]-(:Node) graphs, one
// subgraph per project.
type Mirror struct {
	sync.Mutex
	query  Querier
	driver neo4j.DriverWithContext
}

func NewMirror(q Querier) *Mirror {
	return &Mirror{query: q}
}

// StartConnection connects to neo4j. An empty user connects without
// authentication.
func StartConnection(ctx context.Context, uri, user, password string) (*Mirror, error) {
	// URI examples: "neo4j://localhost", "neo4j+s://xxx.databases.neo4j.io"
	auth := neo4j.NoAuth()
	if user != "" {
		auth = neo4j.BasicAuth(user, password, "")
	}
	driver, err := neo4j.NewDriverWithContext(uri, auth)
	if err != nil {
		return nil, err
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}

	m := NewMirror(func(ctx context.Context, query string, args map[string]any) (*neo4j.EagerResult, error) {
		return neo4j.ExecuteQuery(ctx, driver, query, args,
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase("neo4j"))
	})
	m.driver = driver
	if err := m.prepareDatabase(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	graphLog.Info("connected to ", uri)
	return m, nil
}

func (m *Mirror) Close(ctx context.Context) error {
	if m.driver == nil {
		return nil
	}
	return m.driver.Close(ctx)
}

func (m *Mirror) prepareDatabase(ctx context.Context) error {
	_, err := m.query(ctx,
		`CREATE CONSTRAINT uniq_project_node IF NOT EXISTS
		FOR (n:Node)
		REQUIRE (n.project, n.name) IS UNIQUE`,
		map[string]any{})
	return err
}

// Sync replaces the subgraph of project with networks.
func (m *Mirror) Sync(ctx context.Context, project string, networks api.Networks) error {
	m.Lock()
	defer m.Unlock()

	if _, err := m.query(ctx, `MATCH (n:Node {project: $project}) DETACH DELETE n`,
		map[string]any{"project": project}); err != nil {
		return fmt.Errorf("clearing project %s: %w", project, err)
	}

	all := networks.AllNodes()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	slices.Sort(names)
	nodes := make([]map[string]any, 0, len(names))
	for _, name := range names {
		nodes = append(nodes, map[string]any{"name": name, "type": all[name].Type})
	}
	if _, err := m.query(ctx,
		`UNWIND $nodes AS node
		CREATE (:Node {project: $project, name: node.name, type: node.type})`,
		map[string]any{"project": project, "nodes": nodes}); err != nil {
		return fmt.Errorf("creating nodes of %s: %w", project, err)
	}

	linkNames := make([]string, 0, len(networks.Links))
	for name := range networks.Links {
		linkNames = append(linkNames, name)
	}
	slices.Sort(linkNames)
	links := make([]map[string]any, 0, len(linkNames))
	for _, name := range linkNames {
		l := networks.Links[name]
		links = append(links, map[string]any{"name": name, "source": l.Source, "target": l.Target})
	}
	if _, err := m.query(ctx,
		`UNWIND $links AS link
		MATCH (a:Node {project: $project, name: link.source})
		MATCH (b:Node {project: $project, name: link.target})
		CREATE (a)-[:LINK {name: link.name}]->(b)`,
		map[string]any{"project": project, "links": links}); err != nil {
		return fmt.Errorf("creating links of %s: %w", project, err)
	}
	graphLog.WithField("project", project).Infof("mirrored %d nodes and %d links", len(nodes), len(links))
	return nil
}

// ShortestPath returns the node names on a minimum hop path, or nil when
// the nodes are not connected.
func (m *Mirror) ShortestPath(ctx context.Context, project, src, dst string) ([]string, error) {
	if src == dst {
		return []string{src}, nil
	}
	result, err := m.query(ctx,
		`MATCH (from:Node {project: $project, name: $src}), (to:Node {project: $project, name: $dst})
		MATCH p = shortestPath((from)-[:LINK*]-(to))
		RETURN [n in nodes(p) | n.name] AS shortestPath`,
		map[string]any{"project": project, "src": src, "dst": dst})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, nil
	}
	raw, ok := result.Records[0].AsMap()["shortestPath"].([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected shortest path record %v", result.Records[0].Values)
	}
	path := make([]string, 0, len(raw))
	for _, n := range raw {
		name, ok := n.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected node name %v", n)
		}
		path = append(path, name)
	}
	return path, nil
}
