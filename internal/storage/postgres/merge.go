package postgres

import (
	"fmt"
	"strings"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

var mediaColumnList = []string{
	"id", "owner_id", "status", "stage", "media_kind", "transform_mode", "caption",
	"external_asset_playback_id", "external_asset_id", "external_upload_session_id",
	"origin_locator", "origin_locator_audit", "origin_purged", "origin_purged_at", "origin_purge_error",
	"created_at", "updated_at",
}

var mediaColumns = strings.Join(mediaColumnList, ", ")

func columnValues(m *models.MediaItem) map[string]any {
	return map[string]any{
		"id":                         m.ID,
		"owner_id":                   m.OwnerID,
		"status":                     string(m.Status),
		"stage":                      m.Stage,
		"media_kind":                 string(m.MediaKind),
		"transform_mode":             string(m.TransformMode),
		"caption":                    m.Caption,
		"external_asset_playback_id": m.ExternalAssetPlaybackID,
		"external_asset_id":          m.ExternalAssetID,
		"external_upload_session_id": m.ExternalUploadSessionID,
		"origin_locator":             m.OriginLocator,
		"origin_locator_audit":       m.OriginLocatorAudit,
		"origin_purged":              m.OriginPurged,
		"origin_purged_at":           m.OriginPurgedAt,
		"origin_purge_error":         m.OriginPurgeError,
		"created_at":                 m.CreatedAt,
		"updated_at":                 m.UpdatedAt,
	}
}

// buildMerge renders the write for p. An unconditional patch becomes an
// upsert whose INSERT branch writes the stub a missing record would get.
// A conditional patch becomes a plain UPDATE guarded by the expected
// status, so it can never create a record. Either way only the columns the
// patch names are assigned. p.UpdatedAt must be set.
func buildMerge(id string, p models.Patch) (string, []any) {
	values := columnValues(p.Apply(id, nil))

	var args []any
	bind := func(column string) string {
		args = append(args, values[column])
		return fmt.Sprintf("$%d", len(args))
	}

	conditional := p.Conditional()
	var placeholders []string
	if !conditional {
		for _, column := range mediaColumnList {
			placeholders = append(placeholders, bind(column))
		}
	}
	source := func(column string) string {
		if conditional {
			return bind(column)
		}
		return "EXCLUDED." + column
	}

	var set []string
	assign := func(column string) {
		set = append(set, fmt.Sprintf("%s = %s", column, source(column)))
	}
	// purge columns freeze once origin_purged is true
	assignUnlessPurged := func(column string) {
		set = append(set, fmt.Sprintf("%s = CASE WHEN media_items.origin_purged THEN media_items.%s ELSE %s END",
			column, column, source(column)))
	}

	if p.OwnerID != nil {
		assign("owner_id")
	}
	if p.Status != nil {
		assign("status")
	}
	if p.Stage != nil {
		assign("stage")
	}
	switch {
	case p.MediaKind != nil:
		// the stub already carries the kind after any upgrade
		assign("media_kind")
	case p.UpgradeMediaKind:
		set = append(set, fmt.Sprintf(
			"media_kind = CASE WHEN media_items.media_kind IN ('%s', '') THEN '%s' ELSE media_items.media_kind END",
			models.Photo, models.Video))
	}
	if p.TransformMode != nil {
		assign("transform_mode")
	}
	if p.Caption != nil {
		assign("caption")
	}
	if p.ExternalAssetPlaybackID != nil {
		set = append(set, fmt.Sprintf("external_asset_playback_id = CASE WHEN media_items.external_asset_playback_id = '' "+
			"THEN %s ELSE media_items.external_asset_playback_id END", source("external_asset_playback_id")))
	}
	if p.ExternalAssetID != nil {
		assign("external_asset_id")
	}
	if p.ExternalUploadSessionID != nil {
		assign("external_upload_session_id")
	}
	if p.OriginLocator != nil || p.ClearOriginLocator {
		assign("origin_locator")
	}
	if p.OriginLocatorAudit != nil {
		assign("origin_locator_audit")
	}
	if p.OriginPurged != nil {
		set = append(set, fmt.Sprintf("origin_purged = media_items.origin_purged OR %s", source("origin_purged")))
	}
	if p.OriginPurgedAt != nil {
		assignUnlessPurged("origin_purged_at")
	}
	if p.OriginPurgeError != nil {
		assignUnlessPurged("origin_purge_error")
	}
	assign("updated_at")

	if conditional {
		where := fmt.Sprintf("id = %s", bind("id"))
		if p.ExpectStatus != nil {
			args = append(args, string(*p.ExpectStatus))
			where += fmt.Sprintf(" AND status = $%d", len(args))
		}
		q := fmt.Sprintf(`UPDATE media_items SET
	%s
WHERE %s
RETURNING %s`, strings.Join(set, ",\n\t"), where, mediaColumns)
		return q, args
	}

	q := fmt.Sprintf(`INSERT INTO media_items (%s)
VALUES (%s)
ON CONFLICT (id) DO UPDATE SET
	%s
RETURNING %s`, mediaColumns, strings.Join(placeholders, ", "), strings.Join(set, ",\n\t"), mediaColumns)

	return q, args
}
