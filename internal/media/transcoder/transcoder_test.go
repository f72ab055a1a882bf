package transcoder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	v, err := NewVerifier("shh", time.Minute)
	require.NoError(t, err)
	v.now = func() time.Time { return now }

	body := []byte(`{"type":"video.asset.ready"}`)
	good := v.Sign(body, now)

	other, err := NewVerifier("other", time.Minute)
	require.NoError(t, err)

	cases := []struct {
		name    string
		body    []byte
		header  string
		wantErr error
	}{
		{name: "valid", body: body, header: good},
		{name: "valid with extra signature", body: body, header: good + ",v1=deadbeef"},
		{name: "missing", body: body, header: "", wantErr: ErrMissingSignature},
		{name: "no timestamp", body: body, header: "v1=abcd", wantErr: ErrMalformedSignature},
		{name: "bad timestamp", body: body, header: "t=abc,v1=abcd", wantErr: ErrMalformedSignature},
		{name: "tampered body", body: []byte(`{"type":"video.asset.deleted"}`), header: good, wantErr: ErrSignatureMismatch},
		{name: "wrong secret", body: body, header: other.Sign(body, now), wantErr: ErrSignatureMismatch},
		{name: "expired", body: body, header: v.Sign(body, now.Add(-2*time.Minute)), wantErr: ErrSignatureExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Verify(tc.body, tc.header)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestNewVerifier_EmptySecret(t *testing.T) {
	_, err := NewVerifier("  ", 0)
	require.Error(t, err)
}

func TestCreateDirectUpload(t *testing.T) {
	var got createUploadBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "/video/v1/uploads", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"up_1","url":"https://storage.example/up_1","status":"waiting"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: srv.URL, TokenID: "id", TokenSecret: "secret"})
	require.NoError(t, err)

	up, err := c.CreateDirectUpload(context.Background(), DirectUploadRequest{
		CORSOrigin:     "https://app.example",
		PlaybackPolicy: []string{"public"},
		Passthrough:    `{"i":"abc"}`,
		Test:           true,
	})
	require.NoError(t, err)
	assert.Equal(t, "up_1", up.ID)
	assert.Equal(t, "https://storage.example/up_1", up.URL)

	assert.Equal(t, "https://app.example", got.CORSOrigin)
	assert.Equal(t, []string{"public"}, got.NewAssetSettings.PlaybackPolicy)
	assert.Equal(t, `{"i":"abc"}`, got.NewAssetSettings.Passthrough)
	assert.True(t, got.Test)
}

func TestCreateDirectUpload_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_parameters","messages":["cors_origin is invalid"]}}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: srv.URL, TokenID: "id", TokenSecret: "secret"})
	require.NoError(t, err)

	_, err = c.CreateDirectUpload(context.Background(), DirectUploadRequest{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "cors_origin is invalid")
}

func TestAsset_FirstPlaybackID(t *testing.T) {
	a := Asset{PlaybackIDs: []PlaybackID{{ID: "signed_1", Policy: "signed"}, {ID: "pub_1", Policy: "public"}}}
	assert.Equal(t, "pub_1", a.FirstPlaybackID())

	a = Asset{PlaybackIDs: []PlaybackID{{ID: ""}, {ID: "signed_1", Policy: "signed"}}}
	assert.Equal(t, "signed_1", a.FirstPlaybackID())

	assert.Empty(t, Asset{}.FirstPlaybackID())
}
