package models

import (
	"fmt"
	"time"
)

// Patch is a merge update: nil fields are left untouched. Writers never
// replace a whole record, so concurrent edits to other fields survive.
type Patch struct {
	OwnerID                 *string
	Status                  *Status
	Stage                   *string
	MediaKind               *MediaKind
	TransformMode           *TransformMode
	Caption                 *string
	ExternalAssetPlaybackID *string
	ExternalAssetID         *string
	ExternalUploadSessionID *string
	OriginLocator           *string
	OriginLocatorAudit      *string
	OriginPurged            *bool
	OriginPurgedAt          *time.Time
	OriginPurgeError        *bool

	// ClearOriginLocator removes the locator once the blob is gone.
	ClearOriginLocator bool
	// UpgradeMediaKind promotes photo (or unset) to video; never downgrades.
	UpgradeMediaKind bool

	// ExpectStatus makes the merge conditional on the stored status.
	ExpectStatus *Status
	// MustExist fails the merge with ErrNotFound instead of creating a
	// missing record.
	MustExist bool

	UpdatedAt time.Time
}

// Empty reports whether the patch would change nothing but the timestamp.
func (p Patch) Empty() bool {
	return p.OwnerID == nil && p.Status == nil && p.Stage == nil && p.MediaKind == nil &&
		p.TransformMode == nil && p.Caption == nil && p.ExternalAssetPlaybackID == nil &&
		p.ExternalAssetID == nil && p.ExternalUploadSessionID == nil && p.OriginLocator == nil &&
		p.OriginLocatorAudit == nil && p.OriginPurged == nil && p.OriginPurgedAt == nil &&
		p.OriginPurgeError == nil && !p.ClearOriginLocator && !p.UpgradeMediaKind
}

// Validate checks the patch against the record invariants that can be
// judged without the stored document.
func (p Patch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return ErrInvalidArgument
	}
	if p.MediaKind != nil && !p.MediaKind.Valid() {
		return ErrInvalidArgument
	}
	if p.ExternalAssetPlaybackID != nil && *p.ExternalAssetPlaybackID != "" {
		if p.Status == nil || *p.Status != ReadyStatus {
			return ErrInvalidArgument
		}
	}
	if p.ClearOriginLocator && p.OriginLocator != nil {
		return ErrInvalidArgument
	}
	if p.ExpectStatus != nil && !p.ExpectStatus.Valid() {
		return ErrInvalidArgument
	}
	return nil
}

// Conditional reports whether the patch may only touch an existing record.
func (p Patch) Conditional() bool {
	return p.MustExist || p.ExpectStatus != nil
}

// Check tests the patch preconditions against the stored record, nil when
// the record is missing. Stores call it under the same lock as Apply.
func (p Patch) Check(item *MediaItem) error {
	if item == nil {
		if p.Conditional() {
			return ErrNotFound
		}
		return nil
	}
	if p.ExpectStatus != nil && item.Status != *p.ExpectStatus {
		return fmt.Errorf("%w: status changed from %s to %s", ErrInvalidTransition, *p.ExpectStatus, item.Status)
	}
	return nil
}

// Apply merges the patch into item. A nil item is treated as missing and a
// minimal record is created with only the patched fields.
func (p Patch) Apply(id string, item *MediaItem) *MediaItem {
	var out *MediaItem
	if item == nil {
		out = &MediaItem{ID: id, CreatedAt: p.UpdatedAt}
	} else {
		out = item.Clone()
	}

	setString(&out.OwnerID, p.OwnerID)
	setString(&out.Stage, p.Stage)
	setString(&out.Caption, p.Caption)
	setString(&out.ExternalAssetID, p.ExternalAssetID)
	setString(&out.ExternalUploadSessionID, p.ExternalUploadSessionID)
	setString(&out.OriginLocator, p.OriginLocator)
	setString(&out.OriginLocatorAudit, p.OriginLocatorAudit)

	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.MediaKind != nil {
		out.MediaKind = *p.MediaKind
	}
	if p.TransformMode != nil {
		out.TransformMode = *p.TransformMode
	}
	// Playback id is immutable once set.
	if p.ExternalAssetPlaybackID != nil && out.ExternalAssetPlaybackID == "" {
		out.ExternalAssetPlaybackID = *p.ExternalAssetPlaybackID
	}
	// A purged origin stays purged and its error flag stays clear.
	purged := out.OriginPurged
	if p.OriginPurged != nil && !purged {
		out.OriginPurged = *p.OriginPurged
	}
	if p.OriginPurgedAt != nil && !purged {
		t := *p.OriginPurgedAt
		out.OriginPurgedAt = &t
	}
	if p.OriginPurgeError != nil && !purged {
		out.OriginPurgeError = *p.OriginPurgeError
	}
	if p.ClearOriginLocator {
		out.OriginLocator = ""
	}
	if p.UpgradeMediaKind && (out.MediaKind == Photo || out.MediaKind == "") {
		out.MediaKind = Video
	}
	if !p.UpdatedAt.IsZero() {
		out.UpdatedAt = p.UpdatedAt
	}
	return out
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T {
	return &v
}
