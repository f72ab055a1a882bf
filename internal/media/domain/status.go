package domain

import (
	"fmt"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

// transitions lists the status moves the processing pipeline may make.
// Webhook and delete triggers are handled by Apply.
var transitions = map[models.Status][]models.Status{
	models.ProcessingStatus: {models.MixingStatus, models.UploadingStatus, models.ReadyStatus, models.FailedStatus},
	models.MixingStatus:     {models.UploadingStatus, models.ReadyStatus, models.FailedStatus},
	models.UploadingStatus:  {models.ReadyStatus, models.FailedStatus},
	models.ReadyStatus:      {models.DeletedStatus},
	models.FailedStatus:     {models.DeletedStatus},
	models.DeletedStatus:    nil,
}

func CanTransition(from, to models.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func ValidateTransition(from, to models.Status) error {
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}
	return nil
}
