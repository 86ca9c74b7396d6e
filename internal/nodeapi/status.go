// Package nodeapi probes the storage node status API and classifies
// node health from the returned document.
package nodeapi

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/ElektryonUK/storjcloud-client/internal/models"
)

// StatusDocument is the self-report returned by a storage node's status
// endpoint. Numeric fields decode as float64 because nodes report byte
// counts with exponents; reputation and satellites stay raw so updates
// pass them through without reshaping.
type StatusDocument struct {
	NodeID             string          `json:"nodeID"`
	Version            string          `json:"version"`
	DiskSpace          DiskUsage       `json:"diskSpace"`
	Bandwidth          BandwidthUsage  `json:"bandwidth"`
	Uptime             float64         `json:"uptime"`
	LastContactSuccess string          `json:"lastContactSuccess"`
	Disqualified       json.RawMessage `json:"disqualified"`
	Reputation         json.RawMessage `json:"reputation"`
	Satellites         json.RawMessage `json:"satellites"`
}

// DiskUsage is the node-reported disk usage in bytes.
type DiskUsage struct {
	Used      float64 `json:"used"`
	Available float64 `json:"available"`
}

// BandwidthUsage is the node-reported bandwidth usage in bytes.
type BandwidthUsage struct {
	Used float64 `json:"used"`
}

// ReputationStats carries the reputation scores relevant to health
// classification. Pointer fields distinguish absent scores from zero.
type ReputationStats struct {
	AuditScore      *float64 `json:"auditScore"`
	SuspensionScore *float64 `json:"suspensionScore"`
}

// Audit returns the audit score, defaulting to 1.0 when the node did not
// report one.
func (r ReputationStats) Audit() float64 {
	if r.AuditScore == nil {
		return 1.0
	}
	return *r.AuditScore
}

// Suspension returns the suspension score, defaulting to 0.0 when the
// node did not report one.
func (r ReputationStats) Suspension() float64 {
	if r.SuspensionScore == nil {
		return 0.0
	}
	return *r.SuspensionScore
}

// Contacted reports whether the node has ever completed a successful
// check-in.
func (d *StatusDocument) Contacted() bool {
	return d.LastContactSuccess != ""
}

// IsDisqualified interprets the disqualified field, which nodes report
// variously as a boolean, a timestamp, or null.
func (d *StatusDocument) IsDisqualified() bool {
	raw := bytes.TrimSpace(d.Disqualified)
	switch {
	case len(raw) == 0:
		return false
	case bytes.Equal(raw, []byte("null")),
		bytes.Equal(raw, []byte("false")),
		bytes.Equal(raw, []byte(`""`)),
		bytes.Equal(raw, []byte("0")):
		return false
	default:
		return true
	}
}

// ReputationScores parses the reputation block. A missing or malformed
// block yields the defaults, which never trigger a degraded state.
func (d *StatusDocument) ReputationScores() ReputationStats {
	var stats ReputationStats
	if len(d.Reputation) == 0 {
		return stats
	}
	if err := json.Unmarshal(d.Reputation, &stats); err != nil {
		return ReputationStats{}
	}
	return stats
}

// LastContact parses the last contact timestamp, returning nil when the
// node has not reported one or the value does not parse.
func (d *StatusDocument) LastContact() *time.Time {
	if d.LastContactSuccess == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, d.LastContactSuccess); err == nil {
			return &t
		}
	}
	return nil
}

// Record builds the node-derived portion of a NodeRecord: identity,
// health, and usage. Callers fill in location and provenance.
func (d *StatusDocument) Record() models.NodeRecord {
	return models.NodeRecord{
		NodeID:        d.NodeID,
		Version:       d.Version,
		Health:        Classify(d),
		Disk:          models.NewDiskSpace(roundBytes(d.DiskSpace.Used), roundBytes(d.DiskSpace.Available)),
		BandwidthUsed: roundBytes(d.Bandwidth.Used),
		Uptime:        int64(d.Uptime),
		LastContact:   d.LastContact(),
	}
}

func roundBytes(f float64) int64 {
	return int64(math.Round(f))
}
