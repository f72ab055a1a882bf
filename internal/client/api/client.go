// Package api is the HTTP client for the media server: records, upload
// sessions and the per-record snapshot stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

const defaultTimeout = 15 * time.Second

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets callers test 404 answers with errors.Is(err, models.ErrNotFound).
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return models.ErrNotFound
	}
	return nil
}

type CreateItemRequest struct {
	OwnerID       string               `json:"ownerId,omitempty"`
	MediaKind     models.MediaKind     `json:"mediaKind,omitempty"`
	TransformMode models.TransformMode `json:"transformMode,omitempty"`
	Caption       string               `json:"caption,omitempty"`
	OriginLocator string               `json:"originLocator,omitempty"`
}

// UploadRequest asks for a one-time upload target correlated with ItemID.
type UploadRequest struct {
	ItemID         string
	OwnerID        string
	CORSOrigin     string
	PlaybackPolicy []string
}

type UploadSession struct {
	UploadURL  string `json:"uploadUrl"`
	UploadID   string `json:"uploadId"`
	CORSOrigin string `json:"corsOrigin,omitempty"`
}

type Client struct {
	base   *url.URL
	http   *http.Client
	stream *http.Client
}

// New builds a client for the server at baseURL. A bare host:port is
// treated as http.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	raw := strings.TrimSpace(baseURL)
	if raw == "" {
		return nil, errors.New("server url is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	base.RawQuery = ""
	base.Fragment = ""
	base.Path = strings.TrimRight(base.Path, "/")

	hc := httpClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	// Streams stay open for as long as the record is watched.
	stream := &http.Client{Transport: hc.Transport}

	return &Client{base: base, http: hc, stream: stream}, nil
}

func (c *Client) CreateItem(ctx context.Context, req CreateItemRequest) (*models.MediaItem, error) {
	var item models.MediaItem
	if err := c.do(ctx, http.MethodPost, "/media", req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) GetItem(ctx context.Context, id string) (*models.MediaItem, error) {
	var item models.MediaItem
	if err := c.do(ctx, http.MethodGet, "/media/"+url.PathEscape(id), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) DeleteItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/media/"+url.PathEscape(id), nil, nil)
}

func (c *Client) AdvanceStage(ctx context.Context, id string, status models.Status, stage string) (*models.MediaItem, error) {
	body := map[string]string{"status": string(status), "stage": stage}
	var item models.MediaItem
	if err := c.do(ctx, http.MethodPatch, "/media/"+url.PathEscape(id)+"/status", body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) CreateUpload(ctx context.Context, req UploadRequest) (*UploadSession, error) {
	body := struct {
		CORSOrigin     string   `json:"corsOrigin,omitempty"`
		Passthrough    any      `json:"passthrough,omitempty"`
		PlaybackPolicy []string `json:"playbackPolicy,omitempty"`
	}{
		CORSOrigin:     req.CORSOrigin,
		PlaybackPolicy: req.PlaybackPolicy,
	}
	if req.ItemID != "" {
		body.Passthrough = map[string]string{"itemId": req.ItemID, "ownerId": req.OwnerID}
	}

	var session UploadSession
	if err := c.do(ctx, http.MethodPost, "/uploads", body, &session); err != nil {
		return nil, err
	}
	if session.UploadURL == "" {
		return nil, errors.New("upload session missing url")
	}
	return &session, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = c.base.Path + path
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeStatusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
