// Package daemontest starts in-memory backends for tests.
package daemontest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/David-Antunes/klonet/api"
	"github.com/David-Antunes/klonet/internal/backend"
	"github.com/David-Antunes/klonet/internal/daemon"
	"github.com/David-Antunes/klonet/internal/topology"
)

const (
	User    = "tester"
	Project = "demo"
)

// Start serves a backend that finishes deploys and deletes on the first
// progress poll.
func Start(t testing.TB) (*daemon.Server, *backend.Client) {
	opts := daemon.DefaultOptions()
	opts.ProgressStep = 100
	return StartWith(t, opts)
}

func StartWith(t testing.TB, opts daemon.Options) (*daemon.Server, *backend.Client) {
	srv := daemon.NewServer(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	client, err := backend.NewClientFromURL(ts.URL)
	require.NoError(t, err)
	return srv, client
}

// Image returns the public image of type t from the default catalog.
func Image(t string) api.Image {
	return daemon.DefaultImages()["public"][t][0]
}

// Deploy creates project on the backend and drives it to 100 %.
func Deploy(t testing.TB, client *backend.Client, project string, networks api.Networks) {
	ctx := context.Background()
	require.NoError(t, client.Do(ctx, backend.Call{
		Method: http.MethodPost,
		Path:   "/master/topo/",
		Body:   api.DeployRequest{User: User, Topo: project, Networks: networks},
	}, nil))
	for {
		var resp api.ProgressResponse
		require.NoError(t, client.Do(ctx, backend.Call{
			Method: http.MethodPost,
			Path:   "/master/process_bar/",
			Body:   api.ProgressRequest{User: User, Topo: project, Usage: api.UsageDeploy},
		}, &resp))
		if resp.ProcessValue >= 100 {
			return
		}
	}
}

// Line is h1 - s1 - h2 joined by l1 and l2, with 10.0.0.1/24 on h1 and
// 10.0.0.2/24 on h2.
func Line(t testing.TB) *topology.Topology {
	topo := topology.CreateTopology()
	for name, typ := range map[string]string{"h1": api.TypeHost, "s1": api.TypeSwitch, "h2": api.TypeHost} {
		_, err := topo.AddNode(Image(typ), topology.NodeOptions{Name: name})
		require.NoError(t, err)
	}
	_, err := topo.AddLink("l1", "h1", "s1", "10.0.0.1/24", "")
	require.NoError(t, err)
	_, err = topo.AddLink("l2", "s1", "h2", "", "10.0.0.2/24")
	require.NoError(t, err)
	return topo
}
