package httpapi

import (
	"encoding/json"
	"time"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

type CreateMediaRequest struct {
	OwnerID       string               `json:"ownerId"`
	MediaKind     models.MediaKind     `json:"mediaKind"`
	TransformMode models.TransformMode `json:"transformMode"`
	Caption       string               `json:"caption"`
	OriginLocator string               `json:"originLocator"`
}

type ChangeStatusRequest struct {
	Status models.Status `json:"status"`
	Stage  string        `json:"stage"`
}

type UpdateCaptionRequest struct {
	Caption string `json:"caption"`
}

// CreateUploadRequest is the body of POST /uploads. Passthrough is either
// a JSON string or an object {itemId, ownerId}.
type CreateUploadRequest struct {
	CORSOrigin     string          `json:"corsOrigin"`
	Passthrough    json.RawMessage `json:"passthrough"`
	PlaybackPolicy []string        `json:"playbackPolicy"`
}

type UploadResponse struct {
	UploadURL  string `json:"uploadUrl"`
	UploadID   string `json:"uploadId"`
	CORSOrigin string `json:"corsOrigin,omitempty"`
}

type WebhookResponse struct {
	Status string `json:"status"`
}

type MediaResponse struct {
	ID                      string               `json:"id"`
	OwnerID                 string               `json:"ownerId,omitempty"`
	Status                  models.Status        `json:"status"`
	Stage                   string               `json:"stage,omitempty"`
	MediaKind               models.MediaKind     `json:"mediaKind,omitempty"`
	TransformMode           models.TransformMode `json:"transformMode,omitempty"`
	Caption                 string               `json:"caption,omitempty"`
	ExternalAssetPlaybackID string               `json:"externalAssetPlaybackId,omitempty"`
	ExternalUploadSessionID string               `json:"externalUploadSessionId,omitempty"`
	OriginPurged            bool                 `json:"originPurged"`
	OriginPurgedAt          *time.Time           `json:"originPurgedAt,omitempty"`
	OriginPurgeError        bool                 `json:"originPurgeError,omitempty"`
	CreatedAt               time.Time            `json:"createdAt"`
	UpdatedAt               time.Time            `json:"updatedAt"`
}

// SnapshotResponse is the payload of one "snapshot" server-sent event.
type SnapshotResponse struct {
	Exists bool           `json:"exists"`
	Item   *MediaResponse `json:"item,omitempty"`
}

func toMediaResponse(m *models.MediaItem) MediaResponse {
	return MediaResponse{
		ID:                      m.ID,
		OwnerID:                 m.OwnerID,
		Status:                  m.Status,
		Stage:                   m.Stage,
		MediaKind:               m.MediaKind,
		TransformMode:           m.TransformMode,
		Caption:                 m.Caption,
		ExternalAssetPlaybackID: m.ExternalAssetPlaybackID,
		ExternalUploadSessionID: m.ExternalUploadSessionID,
		OriginPurged:            m.OriginPurged,
		OriginPurgedAt:          m.OriginPurgedAt,
		OriginPurgeError:        m.OriginPurgeError,
		CreatedAt:               m.CreatedAt,
		UpdatedAt:               m.UpdatedAt,
	}
}

func toSnapshotResponse(s models.Snapshot) SnapshotResponse {
	if !s.Exists || s.Item == nil {
		return SnapshotResponse{}
	}
	item := toMediaResponse(s.Item)
	return SnapshotResponse{Exists: true, Item: &item}
}
