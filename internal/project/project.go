package project

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/David-Antunes/klonet/api"
	"github.com/David-Antunes/klonet/internal/backend"
	"github.com/David-Antunes/klonet/internal/node"
	"github.com/David-Antunes/klonet/internal/topology"
)

const (
	DefaultTimeout      = 30 * time.Minute
	DefaultPollInterval = time.Second
)

var projectLog = logrus.WithField("component", "project")

// WaitOptions controls how Deploy and Destroy wait for the backend.
type WaitOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
	// Report, when set, receives every progress value read.
	Report func(progress float64)
}

func (o WaitOptions) withDefaults() WaitOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// LogProgress reports progress through the project logger.
func LogProgress(usage string) func(float64) {
	return func(p float64) {
		projectLog.Infof("%s progress: %v %%", usage, p)
	}
}

// Manager creates, reads and tears down the projects of one user.
type Manager struct {
	client *backend.Client
	user   string
}

func NewManager(client *backend.Client, user string) *Manager {
	return &Manager{client: client, user: user}
}

// AsyncDeploy asks the backend to build topo as project name and returns as
// soon as the request is accepted.
func (m *Manager) AsyncDeploy(ctx context.Context, name string, topo *topology.Topology) error {
	return m.client.Do(ctx, backend.Call{
		Method: http.MethodPost,
		Path:   "/master/topo/",
		Body:   api.DeployRequest{User: m.user, Topo: name, Networks: topo.Networks()},
	}, nil)
}

func (m *Manager) AsyncDestroy(ctx context.Context, name string) error {
	return m.client.Do(ctx, backend.Call{
		Method: http.MethodDelete,
		Path:   "/master/topo/",
		Body:   api.DestroyRequest{User: m.user, Topo: name},
	}, nil)
}

// GetProgress returns the completion of a deploy or delete, 0 to 100.
func (m *Manager) GetProgress(ctx context.Context, name, usage string) (float64, error) {
	var resp api.ProgressResponse
	err := m.client.Do(ctx, backend.Call{
		Method: http.MethodPost,
		Path:   "/master/process_bar/",
		Body:   api.ProgressRequest{User: m.user, Topo: name, Usage: usage},
	}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.ProcessValue, nil
}

// Deploy sends the deployment and polls until it reports 100. When the
// timeout passes first, the last progress is returned without an error; the
// caller has to check again later.
func (m *Manager) Deploy(ctx context.Context, name string, topo *topology.Topology, opts WaitOptions) (float64, error) {
	if err := m.AsyncDeploy(ctx, name, topo); err != nil {
		return 0, err
	}
	projectLog.WithField("project", name).Info("deployment requested")
	return Wait(ctx, func(ctx context.Context) (float64, error) {
		return m.GetProgress(ctx, name, api.UsageDeploy)
	}, opts)
}

func (m *Manager) Destroy(ctx context.Context, name string, opts WaitOptions) (float64, error) {
	if err := m.AsyncDestroy(ctx, name); err != nil {
		return 0, err
	}
	projectLog.WithField("project", name).Info("destruction requested")
	return Wait(ctx, func(ctx context.Context) (float64, error) {
		return m.GetProgress(ctx, name, api.UsageDelete)
	}, opts)
}

// DeployFile deploys a topology description stored as YAML or JSON.
func (m *Manager) DeployFile(ctx context.Context, name, filename string, opts WaitOptions) (float64, error) {
	topo, err := topology.ReadFromFile(filename)
	if err != nil {
		return 0, err
	}
	if cc := topo.Components(); len(cc) > 1 {
		projectLog.WithField("project", name).Warnf("topology has %d disconnected parts", len(cc))
	}
	return m.Deploy(ctx, name, topo, opts)
}

// ProgressFunc reads one progress value.
type ProgressFunc func(ctx context.Context) (float64, error)

// Wait polls progress until it reaches 100, the timeout passes or ctx is
// done. Only the last case is an error, besides failures of progress itself.
// A poll starts PollInterval after the previous one returned.
func Wait(ctx context.Context, progress ProgressFunc, opts WaitOptions) (float64, error) {
	opts = opts.withDefaults()
	deadline := time.Now().Add(opts.Timeout)

	timer := time.NewTimer(opts.PollInterval)
	defer timer.Stop()

	for {
		value, err := progress(ctx)
		if err != nil {
			return value, err
		}
		if opts.Report != nil {
			opts.Report(value)
		}
		if value >= 100 {
			return value, nil
		}
		if !time.Now().Before(deadline) {
			projectLog.Warnf("stopped waiting at %v %% after %v", value, opts.Timeout)
			return value, nil
		}
		timer.Reset(opts.PollInterval)
		select {
		case <-ctx.Done():
			return value, ctx.Err()
		case <-timer.C:
		}
	}
}

// GetTopo rebuilds the topology the backend currently holds for a project.
func (m *Manager) GetTopo(ctx context.Context, name string) (*topology.Topology, error) {
	networks, err := node.FetchNetworks(ctx, m.client, m.user, name)
	if err != nil {
		return nil, err
	}
	return topology.FromNetworks(networks)
}

func (m *Manager) GetProjects(ctx context.Context) ([]string, error) {
	var resp api.ProjectListResponse
	err := m.client.Do(ctx, backend.Call{
		Method: http.MethodGet,
		Path:   "/re/project/",
		Query:  url.Values{"user": []string{m.user}},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.TopoList, nil
}
