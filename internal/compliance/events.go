package compliance

import (
	"context"
	"time"
)

// EventType names a domain event
type EventType string

const (
	EventStatusCreated      EventType = "status.created"
	EventRequirementUpdated EventType = "requirement.updated"
	EventStatusDeleted      EventType = "status.deleted"
	EventEvidenceAdded      EventType = "evidence.added"
	EventEvidenceReviewed   EventType = "evidence.reviewed"
	EventHighRiskDetected   EventType = "risk.high_detected"
)

// Event is emitted after a successful mutation or scan finding
type Event struct {
	ID             string                 `json:"id"`
	Type           EventType              `json:"type"`
	OrganizationID string                 `json:"organizationId"`
	EntityType     string                 `json:"entityType"`
	EntityID       string                 `json:"entityId"`
	Actor          string                 `json:"actor,omitempty"`
	OccurredAt     time.Time              `json:"occurredAt"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// EventSink receives domain events
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// NopSink discards events
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }
