// SPDX-License-Identifier: AGPL-3.0-or-later

package publish

import (
	"time"

	"github.com/bartekus/lockstep/internal/ecosystem"
)

// Status represents the outcome of one ecosystem's publish step.
type Status string

const (
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// EcosystemResult is the outcome for a single ecosystem.
// Matches .lockstep/publish/ecosystems/<kind>.json.
type EcosystemResult struct {
	Ecosystem ecosystem.Kind `json:"ecosystem"`
	Status    Status         `json:"status"`
	// Reason explains every skip and failure.
	Reason   string                     `json:"reason,omitempty"`
	Order    []string                   `json:"order,omitempty"`
	Outcomes []ecosystem.PublishOutcome `json:"outcomes,omitempty"`
}

// Report summarizes one publish run.
// Matches .lockstep/publish/last-run.json.
type Report struct {
	RunID      string            `json:"run_id"`
	Version    string            `json:"version"`
	Status     string            `json:"status"` // "pass" or "fail"
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Ecosystems []EcosystemResult `json:"ecosystems"`
	Failed     []ecosystem.Kind  `json:"failed"`
}

// OK reports whether no ecosystem failed.
func (r Report) OK() bool {
	return len(r.Failed) == 0
}
