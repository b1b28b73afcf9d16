package api

const (
	UsageDeploy = "deploy"
	UsageDelete = "delete"
)

type DeployRequest struct {
	User     string   `json:"user"`
	Topo     string   `json:"topo"`
	Networks Networks `json:"networks"`
}

type DestroyRequest struct {
	User string `json:"user"`
	Topo string `json:"topo"`
}

type ProgressRequest struct {
	User  string `json:"user"`
	Topo  string `json:"topo"`
	Usage string `json:"usage"`
}

type ProgressResponse struct {
	Envelope
	ProcessValue float64 `json:"process_value"`
}

type ProjectState struct {
	Topo Networks `json:"topo"`
}

type ProjectResponse struct {
	Envelope
	Project ProjectState `json:"project"`
}

type ProjectListResponse struct {
	Envelope
	TopoList []string `json:"topo_list"`
}

type WorkerIPResponse struct {
	Envelope
	WorkerIP map[string]string `json:"worker_ip"`
}

// ImageCatalog is registry type -> image type -> images.
type ImageCatalog map[string]map[string][]Image
