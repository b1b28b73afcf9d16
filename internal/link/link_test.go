package link

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/David-Antunes/klonet/api"
	"github.com/David-Antunes/klonet/internal/daemon"
	"github.com/David-Antunes/klonet/internal/daemon/daemontest"
	"github.com/David-Antunes/klonet/internal/topology"
)

func deployed(t *testing.T) (*daemon.Server, *Manager) {
	srv, client := daemontest.Start(t)
	daemontest.Deploy(t, client, daemontest.Project, daemontest.Line(t).Networks())
	return srv, NewManager(client, daemontest.User, daemontest.Project)
}

func Test_Add_Link_Records_Interfaces(t *testing.T) {
	ctx := context.Background()
	_, m := deployed(t)

	_, err := m.nodes.DynamicAddNode(ctx, daemontest.Image(api.TypeHost), topology.NodeOptions{Name: "h3"})
	require.NoError(t, err)

	l, err := m.DynamicAddLink(ctx, "", "h3", "s1", "10.0.0.3/24", "")
	require.NoError(t, err)
	require.Equal(t, "l3", l.Name)
	require.Equal(t, "10.0.0.3/24", l.SourceIP)

	h3, err := m.nodes.GetNode(ctx, "h3")
	require.NoError(t, err)
	require.Equal(t, []api.Interface{{IP: "10.0.0.3", Netmask: "255.255.255.0", Name: "h3s1"}}, h3.Interfaces)

	links, err := m.GetLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 3)
}

func Test_Add_Link_Errors(t *testing.T) {
	ctx := context.Background()
	_, m := deployed(t)

	_, err := m.DynamicAddLink(ctx, "x", "h1", "h1", "", "")
	var self *api.SelfLinkError
	require.ErrorAs(t, err, &self)

	_, err = m.DynamicAddLink(ctx, "x", "s1", "h1", "", "")
	var parallel *api.ParallelLinkError
	require.ErrorAs(t, err, &parallel)
	require.Equal(t, "l1", parallel.Existing)

	_, err = m.DynamicAddLink(ctx, "l1", "h1", "h2", "", "")
	var dup *api.DuplicateNameError
	require.ErrorAs(t, err, &dup)

	_, err = m.DynamicAddLink(ctx, "x", "h1", "h9", "", "")
	var notFound *api.NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, api.KindNode, notFound.Kind)

	_, err = m.DynamicAddLink(ctx, "x", "h1", "h2", "0.1.2.3/24", "")
	var badAddr *api.InvalidAddressError
	require.ErrorAs(t, err, &badAddr)
}

func Test_Delete_Link(t *testing.T) {
	ctx := context.Background()
	_, m := deployed(t)

	require.NoError(t, m.DynamicDeleteLink(ctx, "l2"))
	_, err := m.GetLink(ctx, "l2")
	var notFound *api.NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, []string{"l1"}, notFound.Available)

	require.ErrorAs(t, m.DynamicDeleteLink(ctx, "l2"), &notFound)
}

func Test_Config_Link(t *testing.T) {
	ctx := context.Background()
	srv, m := deployed(t)

	src := api.DefaultLinkConfiguration("l1", "h1")
	src.BwKbps = 1000
	dst := api.DefaultLinkConfiguration("l1", "s1")
	require.NoError(t, m.ConfigLink(ctx, src, dst))
	require.Equal(t, "l1", src.Link)

	got, ok := srv.LinkConfiguration(daemontest.User, daemontest.Project, "l1", "h1")
	require.True(t, ok)
	require.Equal(t, 1000, got.BwKbps)

	require.NoError(t, m.ClearLinkConfiguration(ctx, "l1"))
	_, ok = srv.LinkConfiguration(daemontest.User, daemontest.Project, "l1", "h1")
	require.False(t, ok)
}

func Test_Config_Link_Rejects_Mismatch(t *testing.T) {
	ctx := context.Background()
	_, m := deployed(t)

	err := m.ConfigLink(ctx, api.DefaultLinkConfiguration("l1", "h1"), api.DefaultLinkConfiguration("l2", "s1"))
	var mismatch *api.ConsistencyError
	require.ErrorAs(t, err, &mismatch)

	bad := api.DefaultLinkConfiguration("l1", "h1")
	bad.Loss = 120
	err = m.ConfigLink(ctx, bad, api.DefaultLinkConfiguration("l1", "s1"))
	var invalid *api.InvalidArgumentError
	require.ErrorAs(t, err, &invalid)

	err = m.ConfigLink(ctx, api.DefaultLinkConfiguration("l1", "h1"), api.DefaultLinkConfiguration("l1", "h2"))
	var backendErr *api.BackendExecutionError
	require.ErrorAs(t, err, &backendErr)
}
