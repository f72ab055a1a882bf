package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to models.Status
		ok       bool
	}{
		{models.ProcessingStatus, models.MixingStatus, true},
		{models.ProcessingStatus, models.UploadingStatus, true},
		{models.ProcessingStatus, models.FailedStatus, true},
		{models.MixingStatus, models.UploadingStatus, true},
		{models.MixingStatus, models.ProcessingStatus, false},
		{models.UploadingStatus, models.MixingStatus, false},
		{models.UploadingStatus, models.ReadyStatus, true},
		{models.ReadyStatus, models.ProcessingStatus, false},
		{models.ReadyStatus, models.FailedStatus, false},
		{models.FailedStatus, models.ProcessingStatus, false},
		{models.FailedStatus, models.DeletedStatus, true},
		{models.DeletedStatus, models.ReadyStatus, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to))
			err := ValidateTransition(tc.from, tc.to)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, models.ErrInvalidTransition)
			}
		})
	}
}

func TestValidateTransition_SameStatus(t *testing.T) {
	require.NoError(t, ValidateTransition(models.ReadyStatus, models.ReadyStatus))
}

func TestApply(t *testing.T) {
	cases := []struct {
		name    string
		from    models.Status
		exists  bool
		trigger Trigger
		want    Transition
	}{
		{
			name: "ready from processing", from: models.ProcessingStatus, exists: true, trigger: TriggerWebhookReady,
			want: Transition{From: models.ProcessingStatus, To: models.ReadyStatus, Existed: true},
		},
		{
			name: "ready replay", from: models.ReadyStatus, exists: true, trigger: TriggerWebhookReady,
			want: Transition{From: models.ReadyStatus, To: models.ReadyStatus, Existed: true},
		},
		{
			name: "ready for missing record", trigger: TriggerWebhookReady,
			want: Transition{To: models.ReadyStatus, Anomaly: AnomalyResurrection},
		},
		{
			name: "ready after failure", from: models.FailedStatus, exists: true, trigger: TriggerWebhookReady,
			want: Transition{From: models.FailedStatus, To: models.ReadyStatus, Existed: true, Anomaly: AnomalyAfterFailure},
		},
		{
			name: "noop", from: models.MixingStatus, exists: true, trigger: TriggerWebhookNoop,
			want: Transition{From: models.MixingStatus, To: models.MixingStatus, Existed: true},
		},
		{
			name: "user delete", from: models.FailedStatus, exists: true, trigger: TriggerUserDelete,
			want: Transition{From: models.FailedStatus, To: models.DeletedStatus, Existed: true, Removed: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Apply(tc.from, tc.exists, tc.trigger))
		})
	}
}
