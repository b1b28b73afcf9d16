package api

type NodeRequest struct {
	User string `json:"user"`
	Topo string `json:"topo"`
	Info Node   `json:"info"`
}

type LinkRequest struct {
	User string `json:"user"`
	Topo string `json:"topo"`
	Info Link   `json:"info"`
}

type LinkQosRequest struct {
	User  string              `json:"user"`
	Topo  string              `json:"topo"`
	Links []LinkConfiguration `json:"links"`
}

type LinkClearRequest struct {
	User  string       `json:"user"`
	Topo  string       `json:"topo"`
	Links []LinkChoice `json:"links"`
}

type NicNamesResponse struct {
	Envelope
	Static map[string]map[string]string `json:"static"`
}
