package models

// RemoteNodeRef is a node as the registry knows it: the registry-internal
// record ID plus the last-known probe location. The sync loop re-probes
// each ref and addresses update calls by RegistryID.
type RemoteNodeRef struct {
	RegistryID    string `json:"id"`
	NodeID        string `json:"nodeId"`
	Name          string `json:"name,omitempty"`
	Address       string `json:"address,omitempty"`
	DashboardPort int    `json:"dashboardPort,omitempty"`
}

// ProbeAddress returns the address to probe, defaulting to loopback when
// the registry holds none.
func (r RemoteNodeRef) ProbeAddress() string {
	if r.Address == "" {
		return "127.0.0.1"
	}
	return r.Address
}

// ProbePort returns the status port to probe, defaulting to the standard
// dashboard port when the registry holds none.
func (r RemoteNodeRef) ProbePort() int {
	if r.DashboardPort == 0 {
		return 14002
	}
	return r.DashboardPort
}
