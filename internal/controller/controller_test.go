package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/David-Antunes/klonet/api"
	"github.com/David-Antunes/klonet/internal/backend"
	"github.com/David-Antunes/klonet/internal/daemon"
	"github.com/David-Antunes/klonet/internal/daemon/daemontest"
	"github.com/David-Antunes/klonet/internal/network"
	"github.com/David-Antunes/klonet/internal/project"
	"github.com/David-Antunes/klonet/internal/topology"
)

type fakeMirror struct {
	synced map[string]api.Networks
}

func (f *fakeMirror) Sync(_ context.Context, project string, networks api.Networks) error {
	f.synced[project] = networks
	return nil
}

func (f *fakeMirror) ShortestPath(_ context.Context, project, src, dst string) ([]string, error) {
	topo, err := topology.FromNetworks(f.synced[project])
	if err != nil {
		return nil, err
	}
	return topo.ShortestPath(src, dst)
}

func newSession(t *testing.T, client *backend.Client, opts ...Option) *Controller {
	opts = append([]Option{WithWaitOptions(project.WaitOptions{
		Timeout:      time.Second,
		PollInterval: time.Millisecond,
	})}, opts...)
	c, err := New(client, daemontest.User, daemontest.Project, opts...)
	require.NoError(t, err)
	return c
}

// deployedLine designs h1 - s1 - h2 through the controller and deploys it.
func deployedLine(t *testing.T, opts ...Option) (*daemon.Server, *Controller) {
	ctx := context.Background()
	srv, client := daemontest.Start(t)
	c := newSession(t, client, opts...)

	for _, n := range []struct{ image, name string }{{"ubuntu", "h1"}, {"ovs", "s1"}, {"ubuntu", "h2"}} {
		_, err := c.AddNode(ctx, n.image, topology.NodeOptions{Name: n.name})
		require.NoError(t, err)
	}
	_, err := c.AddLink("l1", "h1", "s1", "10.0.0.1/24", "")
	require.NoError(t, err)
	_, err = c.AddLink("l2", "s1", "h2", "", "10.0.0.2/24")
	require.NoError(t, err)

	progress, err := c.Deploy(ctx)
	require.NoError(t, err)
	require.Equal(t, float64(100), progress)
	return srv, c
}

func applied(t *testing.T, srv *daemon.Server, link, ne string) api.LinkConfiguration {
	cfg, ok := srv.LinkConfiguration(daemontest.User, daemontest.Project, link, ne)
	require.True(t, ok, "no configuration for %s on %s", ne, link)
	return cfg
}

func Test_New_Needs_User_And_Project(t *testing.T) {
	_, client := daemontest.Start(t)
	var cfgErr *api.ConfigurationError
	_, err := New(client, "", daemontest.Project)
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "user", cfgErr.Field)
	_, err = New(client, daemontest.User, "")
	require.ErrorAs(t, err, &cfgErr)
}

func Test_Unknown_Image(t *testing.T) {
	_, client := daemontest.Start(t)
	c := newSession(t, client)
	_, err := c.AddNode(context.Background(), "windows", topology.NodeOptions{Name: "w1"})
	var notFound *api.NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, api.KindImage, notFound.Kind)
	require.Contains(t, notFound.Available, "ubuntu")
}

func Test_Configure_Link_Merges_Both_Sides(t *testing.T) {
	ctx := context.Background()
	srv, c := deployedLine(t)

	cfg, err := c.ConfigureLink(ctx, network.LinkProps{Link: "l1", Ne: "h1", BwKbps: network.Int(1000)})
	require.NoError(t, err)
	require.Equal(t, 1000, cfg.BwKbps)
	require.Equal(t, 1000, applied(t, srv, "l1", "h1").BwKbps)
	require.Equal(t, api.DefaultLinkConfiguration("l1", "s1"), applied(t, srv, "l1", "s1"))

	_, err = c.ConfigureLink(ctx, network.LinkProps{Link: "l1", Ne: "s1", DelayUs: network.Int(30)})
	require.NoError(t, err)
	require.Equal(t, 1000, applied(t, srv, "l1", "h1").BwKbps)
	s1 := applied(t, srv, "l1", "s1")
	require.Equal(t, 30, s1.DelayUs)
	require.Equal(t, api.DefaultLinkConfiguration("l1", "s1").BwKbps, s1.BwKbps)

	_, err = c.ConfigureLink(ctx, network.LinkProps{Link: "l1", Ne: "h1", Loss: network.Float(5)})
	require.NoError(t, err)
	h1 := applied(t, srv, "l1", "h1")
	require.Equal(t, 1000, h1.BwKbps)
	require.Equal(t, float64(5), h1.Loss)
	require.Equal(t, 30, applied(t, srv, "l1", "s1").DelayUs)

	cached, ok := c.LinkConfiguration("l1", "h1")
	require.True(t, ok)
	require.Equal(t, h1, cached)
}

func Test_Configure_Link_Is_Idempotent(t *testing.T) {
	ctx := context.Background()
	srv, c := deployedLine(t)

	props := network.LinkProps{Link: "l2", Ne: "h2", BwKbps: network.Int(500), Correlation: network.String("25%")}
	first, err := c.ConfigureLink(ctx, props)
	require.NoError(t, err)
	second, err := c.ConfigureLink(ctx, props)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, first, applied(t, srv, "l2", "h2"))
}

func Test_Rejected_Configuration_Is_Not_Remembered(t *testing.T) {
	ctx := context.Background()
	srv, c := deployedLine(t)

	_, err := c.ConfigureLink(ctx, network.LinkProps{Link: "l1", Ne: "h1", BwKbps: network.Int(1000)})
	require.NoError(t, err)

	_, err = c.ConfigureLink(ctx, network.LinkProps{Link: "l1", Ne: "h1", Loss: network.Float(101)})
	var invalid *api.InvalidArgumentError
	require.ErrorAs(t, err, &invalid)

	// The design still has l1, the backend no longer does.
	require.NoError(t, c.Links.DynamicDeleteLink(ctx, "l1"))
	_, err = c.ConfigureLink(ctx, network.LinkProps{Link: "l1", Ne: "h1", BwKbps: network.Int(2000)})
	var backendErr *api.BackendExecutionError
	require.ErrorAs(t, err, &backendErr)

	cached, ok := c.LinkConfiguration("l1", "h1")
	require.True(t, ok)
	require.Equal(t, 1000, cached.BwKbps)
	require.Equal(t, float64(0), cached.Loss)
	_, ok = srv.LinkConfiguration(daemontest.User, daemontest.Project, "l1", "h1")
	require.False(t, ok)
}

func Test_Configure_Link_Checks_Side(t *testing.T) {
	ctx := context.Background()
	_, c := deployedLine(t)

	_, err := c.ConfigureLink(ctx, network.LinkProps{Link: "l1", Ne: "h2", BwKbps: network.Int(1000)})
	var mismatch *api.ConsistencyError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "h2", mismatch.Actual)

	_, err = c.ConfigureLink(ctx, network.LinkProps{Link: "l9", Ne: "h1"})
	var notFound *api.NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, api.KindLink, notFound.Kind)
}

func Test_Configure_Runtime_Link(t *testing.T) {
	ctx := context.Background()
	srv, c := deployedLine(t)

	_, err := c.AddNodeRuntime(ctx, "iperf", topology.NodeOptions{Name: "h3"})
	require.NoError(t, err)
	l, err := c.AddLinkRuntime(ctx, "", "h3", "s1", "10.0.0.3/24", "")
	require.NoError(t, err)
	require.Equal(t, "l3", l.Name)

	_, err = c.ConfigureLink(ctx, network.LinkProps{Link: "l3", Ne: "s1", QueueSizeBytes: network.Int(2000)})
	require.NoError(t, err)
	require.Equal(t, 2000, applied(t, srv, "l3", "s1").QueueSizeBytes)

	require.NoError(t, c.DeleteLinkRuntime(ctx, "l3"))
	_, ok := c.LinkConfiguration("l3", "s1")
	require.False(t, ok)
	require.NoError(t, c.DeleteNodeRuntime(ctx, "h3"))
}

func Test_Reset_Link(t *testing.T) {
	ctx := context.Background()
	srv, c := deployedLine(t)

	_, err := c.ConfigureLink(ctx, network.LinkProps{Link: "l1", Ne: "h1", BwKbps: network.Int(1000)})
	require.NoError(t, err)

	require.NoError(t, c.ResetLink(ctx, "l1", false))
	_, ok := srv.LinkConfiguration(daemontest.User, daemontest.Project, "l1", "h1")
	require.False(t, ok)
	_, ok = c.LinkConfiguration("l1", "h1")
	require.True(t, ok)

	_, err = c.ConfigureLink(ctx, network.LinkProps{Link: "l1", Ne: "s1", JitterUs: network.Int(10)})
	require.NoError(t, err)
	require.Equal(t, 1000, applied(t, srv, "l1", "h1").BwKbps)

	require.NoError(t, c.ResetLink(ctx, "l1", true))
	_, ok = c.LinkConfiguration("l1", "h1")
	require.False(t, ok)
}

func Test_Reset_Project(t *testing.T) {
	ctx := context.Background()
	_, c := deployedLine(t)
	_, err := c.ConfigureLink(ctx, network.LinkProps{Link: "l1", Ne: "h1", BwKbps: network.Int(1000)})
	require.NoError(t, err)

	progress, err := c.ResetProject(ctx)
	require.NoError(t, err)
	require.Equal(t, float64(100), progress)
	require.Empty(t, c.Topology().NodeNames())
	_, ok := c.LinkConfiguration("l1", "h1")
	require.False(t, ok)

	projects, err := c.Projects.GetProjects(ctx)
	require.NoError(t, err)
	require.Empty(t, projects)
}

func Test_Sync_Reads_Backend(t *testing.T) {
	ctx := context.Background()
	_, c := deployedLine(t)
	_, err := c.AddNodeRuntime(ctx, "frr", topology.NodeOptions{Name: "r1"})
	require.NoError(t, err)

	require.NoError(t, c.Sync(ctx))
	require.ElementsMatch(t, []string{"h1", "h2", "r1", "s1"}, c.Topology().NodeNames())
}

func Test_Graph_Mirror(t *testing.T) {
	ctx := context.Background()
	_, bare := deployedLine(t)
	var cfgErr *api.ConfigurationError
	require.ErrorAs(t, bare.SyncGraph(ctx), &cfgErr)
	_, err := bare.GraphPath(ctx, "h1", "h2")
	require.ErrorAs(t, err, &cfgErr)

	mirror := &fakeMirror{synced: make(map[string]api.Networks)}
	_, c := deployedLine(t, WithGraphMirror(mirror))
	require.NoError(t, c.SyncGraph(ctx))
	require.Contains(t, mirror.synced, daemontest.Project)

	path, err := c.GraphPath(ctx, "h1", "h2")
	require.NoError(t, err)
	require.Equal(t, []string{"h1", "s1", "h2"}, path)
}

func Test_Execute_And_SSH(t *testing.T) {
	ctx := context.Background()
	srv, c := deployedLine(t)

	results, err := c.Execute(ctx, map[string][]string{"h1": {"echo hi"}}, true, time.Second)
	require.NoError(t, err)
	require.Equal(t, "hi", *results["h1"]["echo hi"].Output)

	require.NoError(t, c.EnableSSH(ctx, "h2", true, "secret"))
	require.True(t, srv.SSHEnabled(daemontest.User, daemontest.Project, "h2"))
	require.NoError(t, c.PortMapping(ctx, "h2", []int{22, 40022}))
	mapping, err := c.GetPortMapping(ctx, "h2")
	require.NoError(t, err)
	require.Equal(t, map[string]int{"22": 40022}, mapping.NePort)

	progress, err := c.Progress(ctx, api.UsageDeploy)
	require.NoError(t, err)
	require.Equal(t, float64(100), progress)
}

func Test_Deleting_Node_Forgets_Its_Link_Edits(t *testing.T) {
	ctx := context.Background()
	srv, c := deployedLine(t)

	_, err := c.ConfigureLink(ctx, network.LinkProps{Link: "l1", Ne: "h1", BwKbps: network.Int(1000)})
	require.NoError(t, err)
	_, err = c.ConfigureLink(ctx, network.LinkProps{Link: "l2", Ne: "h2", DelayUs: network.Int(50)})
	require.NoError(t, err)

	require.NoError(t, c.DeleteNodeRuntime(ctx, "h1"))
	_, ok := c.LinkConfiguration("l1", "h1")
	require.False(t, ok)
	_, ok = c.LinkConfiguration("l2", "h2")
	require.True(t, ok)

	_, err = c.AddNodeRuntime(ctx, "ubuntu", topology.NodeOptions{Name: "h1"})
	require.NoError(t, err)
	_, err = c.AddLinkRuntime(ctx, "l1", "h1", "s1", "", "")
	require.NoError(t, err)
	_, err = c.ConfigureLink(ctx, network.LinkProps{Link: "l1", Ne: "s1", DelayUs: network.Int(30)})
	require.NoError(t, err)

	require.Equal(t, api.DefaultLinkConfiguration("l1", "h1"), applied(t, srv, "l1", "h1"))
	require.Equal(t, 30, applied(t, srv, "l1", "s1").DelayUs)
}

func Test_Reset_Link_Clears_Whole_Cache(t *testing.T) {
	ctx := context.Background()
	_, c := deployedLine(t)

	_, err := c.ConfigureLink(ctx, network.LinkProps{Link: "l1", Ne: "h1", BwKbps: network.Int(1000)})
	require.NoError(t, err)
	_, err = c.ConfigureLink(ctx, network.LinkProps{Link: "l2", Ne: "h2", BwKbps: network.Int(2000)})
	require.NoError(t, err)

	require.NoError(t, c.ResetLink(ctx, "l1", true))
	_, ok := c.LinkConfiguration("l1", "h1")
	require.False(t, ok)
	_, ok = c.LinkConfiguration("l2", "h2")
	require.False(t, ok)
}
