package command

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/David-Antunes/klonet/api"
	"github.com/David-Antunes/klonet/internal/backend"
)

const DefaultTimeout = 60 * time.Second

// Manager runs shell commands inside the nodes of a deployed project.
type Manager struct {
	client  *backend.Client
	user    string
	project string
}

func NewManager(client *backend.Client, user, project string) *Manager {
	return &Manager{client: client, user: user, project: project}
}

// ExecCommandsInNodes runs every command list on its node in one request.
// Commands still running when timeout passes come back without exit code
// and output; that means unknown, not failed.
func (m *Manager) ExecCommandsInNodes(ctx context.Context, nodeToCommands map[string][]string, block bool, timeout time.Duration) (map[string]map[string]api.CommandResult, error) {
	if len(nodeToCommands) == 0 {
		return map[string]map[string]api.CommandResult{}, nil
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	seconds := int((timeout + time.Second - 1) / time.Second)

	var resp api.ExecResponse
	err := m.client.Do(ctx, backend.Call{
		Method: http.MethodPost,
		Path:   "/master/node_exec_cmd/",
		Body: api.ExecRequest{
			User:        m.user,
			Topo:        m.project,
			NodeAndCmd:  nodeToCommands,
			Block:       strconv.FormatBool(block),
			CmdTimeoutS: seconds,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ExecResults == nil {
		resp.ExecResults = map[string]map[string]api.CommandResult{}
	}
	return resp.ExecResults, nil
}
