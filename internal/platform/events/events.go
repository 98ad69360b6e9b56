// Package events publishes domain events after state changes commit.
// Publishing is best effort: a failed publish never undoes a committed write.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	TypeProfileRegistered  = "profile.registered"
	TypeDoctorApproved     = "doctor.approved"
	TypeDoctorRejected     = "doctor.rejected"
	TypeAssignmentReplaced = "assignment.replaced"
	TypeScanCreated        = "scan.created"
)

const source = "retina-api"

type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Subject   string         `json:"subject"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func New(eventType, subject string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher writes events to the structured log. Used when no broker is
// configured.
type LogPublisher struct {
	Logger zerolog.Logger
}

func (p LogPublisher) Publish(_ context.Context, e Event) error {
	p.Logger.Info().
		Str("event_id", e.ID).
		Str("event_type", e.Type).
		Str("subject", e.Subject).
		Interface("data", e.Data).
		Msg("domain event")
	return nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
