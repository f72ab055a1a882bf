package models

import (
	"time"
)

type Status string

const (
	ProcessingStatus Status = "processing"
	MixingStatus     Status = "mixing"
	UploadingStatus  Status = "uploading"
	ReadyStatus      Status = "ready"
	FailedStatus     Status = "failed"
	DeletedStatus    Status = "deleted"
)

// Valid reports whether s belongs to the closed status set.
func (s Status) Valid() bool {
	switch s {
	case ProcessingStatus, MixingStatus, UploadingStatus, ReadyStatus, FailedStatus, DeletedStatus:
		return true
	default:
		return false
	}
}

// InFlight is true for the non-terminal processing statuses.
func (s Status) InFlight() bool {
	return s == ProcessingStatus || s == MixingStatus || s == UploadingStatus
}

// Terminal is true for ready and failed.
func (s Status) Terminal() bool {
	return s == ReadyStatus || s == FailedStatus
}

type MediaKind string

const (
	Video MediaKind = "video"
	Photo MediaKind = "photo"
	None  MediaKind = "none"
)

func (k MediaKind) Valid() bool {
	return k == Video || k == Photo || k == None
}

type TransformMode string

const (
	ModeUnset        TransformMode = ""
	ModePassthrough  TransformMode = "passthrough"
	ModePhotoToVideo TransformMode = "photo_to_video"
)

// MediaItem is the canonical record for one user submission.
type MediaItem struct {
	ID                      string        `db:"id" json:"id"`
	OwnerID                 string        `db:"owner_id" json:"ownerId,omitempty"`
	Status                  Status        `db:"status" json:"status"`
	Stage                   string        `db:"stage" json:"stage,omitempty"`
	MediaKind               MediaKind     `db:"media_kind" json:"mediaKind,omitempty"`
	TransformMode           TransformMode `db:"transform_mode" json:"transformMode,omitempty"`
	Caption                 string        `db:"caption" json:"caption,omitempty"`
	ExternalAssetPlaybackID string        `db:"external_asset_playback_id" json:"externalAssetPlaybackId,omitempty"`
	ExternalAssetID         string        `db:"external_asset_id" json:"externalAssetId,omitempty"`
	ExternalUploadSessionID string        `db:"external_upload_session_id" json:"externalUploadSessionId,omitempty"`
	OriginLocator           string        `db:"origin_locator" json:"originLocator,omitempty"`
	OriginLocatorAudit      string        `db:"origin_locator_audit" json:"originLocatorAudit,omitempty"`
	OriginPurged            bool          `db:"origin_purged" json:"originPurged"`
	OriginPurgedAt          *time.Time    `db:"origin_purged_at" json:"originPurgedAt,omitempty"`
	OriginPurgeError        bool          `db:"origin_purge_error" json:"originPurgeError,omitempty"`
	CreatedAt               time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt               time.Time     `db:"updated_at" json:"updatedAt"`
}

// Clone returns a deep copy so callers never share the stored value.
func (m *MediaItem) Clone() *MediaItem {
	if m == nil {
		return nil
	}
	cp := *m
	if m.OriginPurgedAt != nil {
		t := *m.OriginPurgedAt
		cp.OriginPurgedAt = &t
	}
	return &cp
}

// Snapshot is what a subscriber sees for one record: the full current
// document, or Exists=false once it has been deleted or never existed.
type Snapshot struct {
	Item   *MediaItem `json:"item,omitempty"`
	Exists bool       `json:"exists"`
}
