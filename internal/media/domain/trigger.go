package domain

import "github.com/romariotrain/media-pipeline/internal/media/models"

// Trigger is one of the externally caused transitions of a record.
type Trigger string

const (
	TriggerWebhookReady Trigger = "webhook_ready"
	TriggerWebhookNoop  Trigger = "webhook_noop"
	TriggerUserDelete   Trigger = "user_delete"
)

// Anomaly marks a transition that is applied but deserves attention.
type Anomaly string

const (
	AnomalyNone         Anomaly = ""
	AnomalyResurrection Anomaly = "resurrection"
	AnomalyAfterFailure Anomaly = "ready_after_failure"
	AnomalyAfterDelete  Anomaly = "ready_after_delete"
)

type Transition struct {
	From    models.Status
	To      models.Status
	Existed bool
	Removed bool
	Anomaly Anomaly
}

// Apply evaluates a trigger against the current record state. exists is
// false when the record is missing from the store.
func Apply(from models.Status, exists bool, trigger Trigger) Transition {
	t := Transition{From: from, To: from, Existed: exists}
	switch trigger {
	case TriggerWebhookReady:
		t.To = models.ReadyStatus
		switch {
		case !exists:
			// The merge write recreates a stub record. Kept on purpose until
			// deletes leave a tombstone.
			t.Anomaly = AnomalyResurrection
		case from == models.FailedStatus:
			t.Anomaly = AnomalyAfterFailure
		case from == models.DeletedStatus:
			t.Anomaly = AnomalyAfterDelete
		}
	case TriggerWebhookNoop:
	case TriggerUserDelete:
		t.To = models.DeletedStatus
		t.Removed = exists
	}
	return t
}
