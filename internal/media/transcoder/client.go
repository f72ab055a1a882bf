// Package transcoder talks to the external video transcoding service:
// creating direct-upload targets and understanding the events it posts
// back to our webhook.
package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// DirectUploadRequest asks the service for a one-time upload URL.
type DirectUploadRequest struct {
	CORSOrigin     string
	PlaybackPolicy []string
	Passthrough    string
	Test           bool
}

type DirectUpload struct {
	ID     string
	URL    string
	Status string
}

// UploadCreator is the part of the service the upload session issuer needs.
type UploadCreator interface {
	CreateDirectUpload(ctx context.Context, req DirectUploadRequest) (*DirectUpload, error)
}

type ClientConfig struct {
	BaseURL     string
	TokenID     string
	TokenSecret string
	HTTPClient  *http.Client
}

// Client is an explicitly constructed handle to the service API.
type Client struct {
	baseURL     string
	tokenID     string
	tokenSecret string
	httpClient  *http.Client
}

func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("transcoder base url is empty")
	}
	if cfg.TokenID == "" || cfg.TokenSecret == "" {
		return nil, fmt.Errorf("transcoder credentials are empty")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:     base,
		tokenID:     cfg.TokenID,
		tokenSecret: cfg.TokenSecret,
		httpClient:  hc,
	}, nil
}

type createUploadBody struct {
	CORSOrigin       string           `json:"cors_origin,omitempty"`
	NewAssetSettings newAssetSettings `json:"new_asset_settings"`
	Test             bool             `json:"test,omitempty"`
}

type newAssetSettings struct {
	PlaybackPolicy []string `json:"playback_policy"`
	Passthrough    string   `json:"passthrough,omitempty"`
}

type uploadEnvelope struct {
	Data struct {
		ID     string `json:"id"`
		URL    string `json:"url"`
		Status string `json:"status"`
	} `json:"data"`
}

// APIError carries the service's own error message back to callers.
type APIError struct {
	StatusCode int
	Type       string
	Messages   []string
}

func (e *APIError) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Type != "" {
		return fmt.Sprintf("transcoder %s (%d): %s", e.Type, e.StatusCode, msg)
	}
	return fmt.Sprintf("transcoder (%d): %s", e.StatusCode, msg)
}

func (c *Client) CreateDirectUpload(ctx context.Context, req DirectUploadRequest) (*DirectUpload, error) {
	body, err := json.Marshal(createUploadBody{
		CORSOrigin: req.CORSOrigin,
		NewAssetSettings: newAssetSettings{
			PlaybackPolicy: req.PlaybackPolicy,
			Passthrough:    req.Passthrough,
		},
		Test: req.Test,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal upload request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/video/v1/uploads", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.tokenID, c.tokenSecret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create direct upload: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, raw)
	}

	var env uploadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if env.Data.ID == "" || env.Data.URL == "" {
		return nil, fmt.Errorf("upload response missing id or url")
	}

	return &DirectUpload{ID: env.Data.ID, URL: env.Data.URL, Status: env.Data.Status}, nil
}

func decodeAPIError(status int, raw []byte) error {
	var env struct {
		Error struct {
			Type     string   `json:"type"`
			Messages []string `json:"messages"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(raw, &env); err == nil {
		apiErr.Type = env.Error.Type
		apiErr.Messages = env.Error.Messages
	}
	if len(apiErr.Messages) == 0 {
		if text := strings.TrimSpace(string(raw)); text != "" {
			apiErr.Messages = []string{text}
		}
	}
	return apiErr
}
