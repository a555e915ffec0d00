// Package audit provides the fire-and-forget audit sink. Operations enqueue
// events onto the job queue; the worker persists them to audit_logs.
package audit

import (
	"time"
)

// Event is one auditable action.
type Event struct {
	ID       string         `json:"id"`
	TenantID int64          `json:"tenantId"`
	ActorID  int64          `json:"actorId"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entityId"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}
