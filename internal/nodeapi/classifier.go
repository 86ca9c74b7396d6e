package nodeapi

import "github.com/ElektryonUK/storjcloud-client/internal/models"

// auditWarningThreshold is the audit score below which a node is flagged
// even though the network has not acted on it yet.
const auditWarningThreshold = 0.95

// Classify derives a node's health state from its status document. The
// checks run in strict precedence order; the first match wins:
//
//  1. never contacted a satellite        -> OFFLINE
//  2. disqualified                       -> DISQUALIFIED
//  3. suspension score above zero        -> SUSPENDED
//  4. audit score below the threshold    -> WARNING
//  5. otherwise                          -> ONLINE
//
// Classify is pure: it performs no I/O and never mutates the document.
func Classify(doc *StatusDocument) models.HealthState {
	if !doc.Contacted() {
		return models.HealthOffline
	}

	if doc.IsDisqualified() {
		return models.HealthDisqualified
	}

	scores := doc.ReputationScores()
	if scores.Suspension() > 0 {
		return models.HealthSuspended
	}
	if scores.Audit() < auditWarningThreshold {
		return models.HealthWarning
	}

	return models.HealthOnline
}
