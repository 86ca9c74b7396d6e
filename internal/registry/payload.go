package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ElektryonUK/storjcloud-client/internal/models"
	"github.com/ElektryonUK/storjcloud-client/internal/nodeapi"
)

// RegisterPayload is the body for node registration. Field names follow
// the dashboard's wire schema, not this module's.
type RegisterPayload struct {
	NodeID         string             `json:"nodeId"`
	Name           string             `json:"name"`
	Address        string             `json:"address"`
	Port           int                `json:"port"`
	DashboardPort  int                `json:"dashboardPort"`
	Version        string             `json:"version,omitempty"`
	Status         models.HealthState `json:"status"`
	AllocatedSpace int64              `json:"allocatedSpace"`
	UsedSpace      int64              `json:"usedSpace"`
	AvailableSpace int64              `json:"availableSpace"`
	BandwidthUsed  int64              `json:"bandwidthUsed"`
	Uptime         int64              `json:"uptime"`
	LastSeen       *time.Time         `json:"lastSeen"`
	Config         ProvenanceConfig   `json:"config"`
}

// ProvenanceConfig records how the client found the node. The dashboard
// displays it; nothing downstream keys on it.
type ProvenanceConfig struct {
	DetectedFrom  models.Origin `json:"detectedFrom,omitempty"`
	ContainerID   string        `json:"containerId,omitempty"`
	ContainerName string        `json:"containerName,omitempty"`
	Image         string        `json:"image,omitempty"`
}

// NewRegisterPayload maps a discovered node onto the registration schema.
// AllocatedSpace carries the derived disk total; the node's own total is
// never forwarded.
func NewRegisterPayload(rec models.NodeRecord) RegisterPayload {
	p := RegisterPayload{
		NodeID:         rec.NodeID,
		Name:           rec.Name,
		Address:        rec.Address,
		Port:           rec.DataPort,
		DashboardPort:  rec.StatusPort,
		Version:        rec.Version,
		Status:         rec.Health,
		AllocatedSpace: rec.Disk.Total,
		UsedSpace:      rec.Disk.Used,
		AvailableSpace: rec.Disk.Available,
		BandwidthUsed:  rec.BandwidthUsed,
		Uptime:         rec.Uptime,
		LastSeen:       rec.LastContact,
		Config:         ProvenanceConfig{DetectedFrom: rec.Origin},
	}

	if p.Name == "" {
		p.Name = fmt.Sprintf("Node-%d", rec.StatusPort)
	}
	if p.Status == "" {
		p.Status = models.HealthUnknown
	}
	if rec.Meta != nil {
		p.Config.ContainerID = rec.Meta.ContainerID
		p.Config.ContainerName = rec.Meta.ContainerName
		p.Config.Image = rec.Meta.Image
	}
	return p
}

// UpdatePayload is the body the sync daemon PATCHes each cycle. Score
// fields stay pointers so a node that reports no reputation sends null,
// which the dashboard treats as "no data" rather than zero.
type UpdatePayload struct {
	Status          models.HealthState `json:"status"`
	Version         string             `json:"version,omitempty"`
	UsedSpace       int64              `json:"usedSpace"`
	AvailableSpace  int64              `json:"availableSpace"`
	BandwidthUsed   int64              `json:"bandwidthUsed"`
	Uptime          int64              `json:"uptime"`
	LastSeen        string             `json:"lastSeen"`
	Reputation      json.RawMessage    `json:"reputation"`
	Satellites      json.RawMessage    `json:"satellites"`
	AuditScore      *float64           `json:"auditScore"`
	SuspensionScore *float64           `json:"suspensionScore"`
}

// NewUpdatePayload maps a freshly probed status document onto the update
// schema. LastSeen is the refresh time, not the node's own last-contact
// timestamp: it records when this client saw the node answer.
func NewUpdatePayload(doc *nodeapi.StatusDocument, now time.Time) UpdatePayload {
	rec := doc.Record()
	scores := doc.ReputationScores()

	return UpdatePayload{
		Status:          rec.Health,
		Version:         rec.Version,
		UsedSpace:       rec.Disk.Used,
		AvailableSpace:  rec.Disk.Available,
		BandwidthUsed:   rec.BandwidthUsed,
		Uptime:          rec.Uptime,
		LastSeen:        now.UTC().Format(time.RFC3339),
		Reputation:      rawOr(doc.Reputation, "{}"),
		Satellites:      rawOr(doc.Satellites, "[]"),
		AuditScore:      scores.AuditScore,
		SuspensionScore: scores.SuspensionScore,
	}
}

// rawOr substitutes a default for blocks the node did not report, keeping
// the payload well-formed JSON.
func rawOr(raw json.RawMessage, def string) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(def)
	}
	return raw
}
