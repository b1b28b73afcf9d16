package api

type ExecRequest struct {
	User        string              `json:"user"`
	Topo        string              `json:"topo"`
	NodeAndCmd  map[string][]string `json:"node_and_cmd"`
	Block       string              `json:"block"`
	CmdTimeoutS int                 `json:"cmd_timeout_s"`
}

// CommandResult fields are nil when the backend gave up waiting on the command.
type CommandResult struct {
	ExitCode *int    `json:"exit_code,omitempty"`
	Output   *string `json:"output,omitempty"`
}

func (r CommandResult) Completed() bool {
	return r.ExitCode != nil
}

type ExecResponse struct {
	Envelope
	ExecResults map[string]map[string]CommandResult `json:"exec_results"`
}

type SSHRequest struct {
	User   string `json:"user"`
	Topo   string `json:"topo"`
	Ne     string `json:"ne"`
	SSH    bool   `json:"ssh"`
	Passwd string `json:"passwd"`
}

type PortMappingQuery struct {
	User string `json:"user"`
	Topo string `json:"topo"`
	Ne   string `json:"ne"`
}

type PortMappingRequest struct {
	User        string `json:"user"`
	Topo        string `json:"topo"`
	Ne          string `json:"ne"`
	PortMapping []int  `json:"port_mapping"`
}

// PortMapping maps container ports to host ports on the worker.
type PortMapping struct {
	WorkerIP string         `json:"worker_ip"`
	NePort   map[string]int `json:"ne_port"`
}

type PortMappingResponse struct {
	Envelope
	PortMapping
}
