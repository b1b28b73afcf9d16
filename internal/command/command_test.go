package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/David-Antunes/klonet/api"
	"github.com/David-Antunes/klonet/internal/daemon/daemontest"
)

func Test_Exec_Commands(t *testing.T) {
	ctx := context.Background()
	_, client := daemontest.Start(t)
	daemontest.Deploy(t, client, daemontest.Project, daemontest.Line(t).Networks())
	m := NewManager(client, daemontest.User, daemontest.Project)

	results, err := m.ExecCommandsInNodes(ctx, map[string][]string{
		"h1": {"echo hello", "exit 3"},
		"h2": {"hostname", "iperf3 -s"},
	}, true, 1500*time.Millisecond)
	require.NoError(t, err)

	hello := results["h1"]["echo hello"]
	require.True(t, hello.Completed())
	require.Equal(t, 0, *hello.ExitCode)
	require.Equal(t, "hello", *hello.Output)
	require.Equal(t, 3, *results["h1"]["exit 3"].ExitCode)
	require.Equal(t, "h2", *results["h2"]["hostname"].Output)

	server := results["h2"]["iperf3 -s"]
	require.False(t, server.Completed())
	require.Nil(t, server.ExitCode)
}

func Test_Exec_Nothing(t *testing.T) {
	m := NewManager(nil, daemontest.User, daemontest.Project)
	results, err := m.ExecCommandsInNodes(context.Background(), nil, true, 0)
	require.NoError(t, err)
	require.Empty(t, results)
}

func Test_Exec_Unknown_Node(t *testing.T) {
	_, client := daemontest.Start(t)
	daemontest.Deploy(t, client, daemontest.Project, daemontest.Line(t).Networks())
	m := NewManager(client, daemontest.User, daemontest.Project)
	_, err := m.ExecCommandsInNodes(context.Background(), map[string][]string{"h9": {"true"}}, false, 0)
	var backendErr *api.BackendExecutionError
	require.ErrorAs(t, err, &backendErr)
	require.Contains(t, backendErr.Msg, "h9")
}
