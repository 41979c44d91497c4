package model

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is the write-once dedup record for one provider delivery.
// Unique on (processor, event type, event id); never mutated after
// creation except for the processed flag set inside the same transaction
// that applied the event.
type WebhookEvent struct {
	ID          uuid.UUID
	ProcessorID uuid.UUID
	EventType   string
	EventID     string
	Payload     []byte
	Processed   bool
	CreatedAt   time.Time
}

// NewWebhookEvent records an inbound delivery before it is applied.
func NewWebhookEvent(processorID uuid.UUID, eventType, eventID string, payload []byte) *WebhookEvent {
	return &WebhookEvent{
		ID:          uuid.New(),
		ProcessorID: processorID,
		EventType:   eventType,
		EventID:     eventID,
		Payload:     payload,
		CreatedAt:   time.Now(),
	}
}
