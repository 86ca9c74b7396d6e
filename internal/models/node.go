package models

import "time"

// HealthState represents the operational state of a storage node as
// derived from its self-reported status document.
type HealthState string

const (
	HealthOnline       HealthState = "ONLINE"
	HealthWarning      HealthState = "WARNING"
	HealthSuspended    HealthState = "SUSPENDED"
	HealthDisqualified HealthState = "DISQUALIFIED"
	HealthOffline      HealthState = "OFFLINE"
	// HealthUnknown is never produced by classification; it is the wire
	// fallback for records that predate a successful probe.
	HealthUnknown HealthState = "UNKNOWN"
)

// Origin records which discovery mechanism produced a node record. It is
// diagnostic only and never contributes to node identity.
type Origin string

const (
	OriginContainer Origin = "docker"
	OriginPortScan  Origin = "port_scan"
)

// DiskSpace represents node disk usage in bytes. Total is always derived
// from Used and Available rather than trusted from the node.
type DiskSpace struct {
	Used      int64 `json:"used"`
	Available int64 `json:"available"`
	Total     int64 `json:"total"`
}

// NewDiskSpace derives a DiskSpace from the used and available byte counts.
func NewDiskSpace(used, available int64) DiskSpace {
	return DiskSpace{
		Used:      used,
		Available: available,
		Total:     used + available,
	}
}

// OriginMetadata carries container provenance for records discovered via
// the container runtime.
type OriginMetadata struct {
	ContainerID   string `json:"container_id,omitempty"`
	ContainerName string `json:"container_name,omitempty"`
	Image         string `json:"image,omitempty"`
}

// NodeRecord is the canonical description of one discovered storage node.
// Records are rebuilt on every cycle and handed straight to the registry;
// the remote registry is the only system of record.
type NodeRecord struct {
	// NodeID is the stable identity reported by the node itself. Records
	// with an empty NodeID are unusable and dropped before deduplication.
	NodeID        string          `json:"node_id"`
	Name          string          `json:"name"`
	Address       string          `json:"address"`
	StatusPort    int             `json:"status_port"`
	DataPort      int             `json:"data_port"`
	Version       string          `json:"version,omitempty"`
	Health        HealthState     `json:"health"`
	Disk          DiskSpace       `json:"disk"`
	BandwidthUsed int64           `json:"bandwidth_used"`
	Uptime        int64           `json:"uptime"`
	LastContact   *time.Time      `json:"last_contact,omitempty"`
	Origin        Origin          `json:"origin"`
	Meta          *OriginMetadata `json:"origin_metadata,omitempty"`
}

// Usable reports whether the record carries the identity required for
// deduplication and registration.
func (r NodeRecord) Usable() bool {
	return r.NodeID != ""
}
