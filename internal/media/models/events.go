package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MediaStatusChanged is recorded in the outbox whenever a merge moves a
// record to a different status.
type MediaStatusChanged struct {
	eventID    uuid.UUID
	mediaID    string
	from       Status
	to         Status
	occurredAt time.Time
}

func NewMediaStatusChanged(mediaID string, from, to Status, at time.Time) *MediaStatusChanged {
	return &MediaStatusChanged{
		eventID:    uuid.New(),
		mediaID:    mediaID,
		from:       from,
		to:         to,
		occurredAt: at,
	}
}

func (e *MediaStatusChanged) EventID() uuid.UUID    { return e.eventID }
func (e *MediaStatusChanged) EventType() string     { return "MediaStatusChanged" }
func (e *MediaStatusChanged) AggregateID() string   { return e.mediaID }
func (e *MediaStatusChanged) OccurredAt() time.Time { return e.occurredAt }

func (e *MediaStatusChanged) From() Status { return e.from }
func (e *MediaStatusChanged) To() Status   { return e.to }

func (e *MediaStatusChanged) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EventID    uuid.UUID `json:"event_id"`
		MediaID    string    `json:"media_id"`
		From       Status    `json:"from,omitempty"`
		To         Status    `json:"to"`
		OccurredAt time.Time `json:"occurred_at"`
	}{
		EventID:    e.eventID,
		MediaID:    e.mediaID,
		From:       e.from,
		To:         e.to,
		OccurredAt: e.occurredAt,
	})
}
