package transcoder

import (
	"encoding/json"
	"fmt"
)

const (
	EventAssetReady    = "video.asset.ready"
	EventAssetErrored  = "video.asset.errored"
	EventUploadCreated = "video.upload.asset_created"
)

// Event is the envelope of every webhook delivery.
type Event struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	CreatedAt string          `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

type PlaybackID struct {
	ID     string `json:"id"`
	Policy string `json:"policy"`
}

// Asset is the data block of asset lifecycle events.
type Asset struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	UploadID    string       `json:"upload_id"`
	Passthrough string       `json:"passthrough"`
	PlaybackIDs []PlaybackID `json:"playback_ids"`
}

// FirstPlaybackID returns the first non-empty playback id, preferring a
// public one.
func (a Asset) FirstPlaybackID() string {
	var fallback string
	for _, p := range a.PlaybackIDs {
		if p.ID == "" {
			continue
		}
		if p.Policy == "public" {
			return p.ID
		}
		if fallback == "" {
			fallback = p.ID
		}
	}
	return fallback
}

func ParseEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

func (e Event) Asset() (Asset, error) {
	var a Asset
	if len(e.Data) == 0 {
		return a, nil
	}
	if err := json.Unmarshal(e.Data, &a); err != nil {
		return Asset{}, fmt.Errorf("decode asset data: %w", err)
	}
	return a, nil
}
