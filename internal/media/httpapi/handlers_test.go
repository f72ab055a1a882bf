package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/media-pipeline/internal/media/correlation"
	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/media/purge"
	"github.com/romariotrain/media-pipeline/internal/media/repository"
	"github.com/romariotrain/media-pipeline/internal/media/service"
	"github.com/romariotrain/media-pipeline/internal/media/transcoder"
	"github.com/romariotrain/media-pipeline/internal/media/uploads"
	"github.com/romariotrain/media-pipeline/internal/media/webhook"
)

type IssuerMock struct {
	mock.Mock
}

func (m *IssuerMock) Issue(ctx context.Context, req uploads.Request) (*uploads.Session, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*uploads.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

type testServer struct {
	repo     *repository.MemoryRepository
	issuer   *IssuerMock
	verifier *transcoder.Verifier
	handler  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	issuer := new(IssuerMock)
	s := newTestServerWith(t, issuer)
	s.issuer = issuer
	return s
}

// newTestServerWith builds the same handler chain cmd/media serves.
func newTestServerWith(t *testing.T, issuer UploadIssuer) *testServer {
	t.Helper()
	repo := repository.NewMemoryRepository()
	verifier, err := transcoder.NewVerifier("whsec", 0)
	require.NoError(t, err)
	receiver, err := webhook.NewReceiver(webhook.Config{
		Verifier: verifier,
		Store:    repo,
		Purger:   purge.New(purge.Config{Logger: zerolog.Nop()}),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	h := New(Config{
		Service:   service.New(repo),
		Issuer:    issuer,
		Receiver:  receiver,
		Logger:    zerolog.Nop(),
		Heartbeat: time.Hour,
	})
	policy, err := NewCORSPolicy([]string{"https://app.example"})
	require.NoError(t, err)

	return &testServer{
		repo:     repo,
		verifier: verifier,
		handler:  NewServerHandler(h, policy, zerolog.Nop()),
	}
}

func (s *testServer) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/health", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMediaLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/media", `{"ownerId":"u1","caption":"first"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created MediaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, models.ProcessingStatus, created.Status)

	rec = s.do(t, http.MethodPatch, "/media/"+created.ID+"/status", `{"status":"mixing","stage":"mixing"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPatch, "/media/"+created.ID+"/status", `{"status":"ready"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPatch, "/media/"+created.ID+"/caption", `{"caption":"second"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/media/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got MediaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.MixingStatus, got.Status)
	assert.Equal(t, "mixing", got.Stage)
	assert.Equal(t, "second", got.Caption)

	rec = s.do(t, http.MethodDelete, "/media/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/media/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateMedia_BadBody(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/media", `{`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/media", `{"mediaKind":"audio"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateUpload(t *testing.T) {
	cases := []struct {
		name        string
		body        string
		wantPayload *correlation.Payload
	}{
		{name: "no body", body: ""},
		{name: "object passthrough", body: `{"passthrough":{"itemId":"item-1","ownerId":"u1"}}`,
			wantPayload: &correlation.Payload{Kind: correlation.KindStructured, ItemID: "item-1", OwnerID: "u1"}},
		{name: "encoded string passthrough", body: `{"passthrough":"{\"i\":\"item-1\"}"}`,
			wantPayload: &correlation.Payload{Kind: correlation.KindStructured, ItemID: "item-1"}},
		{name: "plain string passthrough", body: `{"passthrough":"item-1"}`,
			wantPayload: &correlation.Payload{Kind: correlation.KindPlain, ItemID: "item-1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t)
			s.issuer.On("Issue", mock.Anything, mock.MatchedBy(func(req uploads.Request) bool {
				return assert.ObjectsAreEqual(tc.wantPayload, req.Correlation) && req.RequestOrigin == "https://app.example"
			})).Return(&uploads.Session{SessionID: "up-1", UploadTargetURL: "https://upload.example/up-1", CORSOrigin: "https://app.example"}, nil).Once()

			rec := s.do(t, http.MethodPost, "/uploads", tc.body, http.Header{"Origin": {"https://app.example"}})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.JSONEq(t, `{"uploadUrl":"https://upload.example/up-1","uploadId":"up-1","corsOrigin":"https://app.example"}`, rec.Body.String())
			assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
			s.issuer.AssertExpectations(t)
		})
	}
}

func TestCreateUpload_InvalidPassthrough(t *testing.T) {
	s := newTestServer(t)
	for _, body := range []string{`{"passthrough":42}`, `{"passthrough":{"ownerId":"u1"}}`} {
		rec := s.do(t, http.MethodPost, "/uploads", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	s.issuer.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
}

func TestCreateUpload_UpstreamFailure(t *testing.T) {
	s := newTestServer(t)
	s.issuer.On("Issue", mock.Anything, mock.Anything).
		Return(nil, &uploads.SessionIssuanceError{Err: errors.New("transcoder: 401 unauthorized")}).Once()

	rec := s.do(t, http.MethodPost, "/uploads", `{}`, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"transcoder: 401 unauthorized"}`, rec.Body.String())
}

func TestUploadPreflight(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodOptions, "/uploads", "", http.Header{
		"Origin":                        {"https://app.example"},
		"Access-Control-Request-Method": {"POST"},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	rec = s.do(t, http.MethodOptions, "/uploads", "", http.Header{
		"Origin":                        {"https://evil.example"},
		"Access-Control-Request-Method": {"POST"},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://evil.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = s.do(t, http.MethodOptions, "/media", "", http.Header{
		"Origin":                        {"https://evil.example"},
		"Access-Control-Request-Method": {"POST"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodOptions, "/uploads", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type uploadCreatorFunc func(ctx context.Context, req transcoder.DirectUploadRequest) (*transcoder.DirectUpload, error)

func (f uploadCreatorFunc) CreateDirectUpload(ctx context.Context, req transcoder.DirectUploadRequest) (*transcoder.DirectUpload, error) {
	return f(ctx, req)
}

func TestCreateUpload_UnlistedOriginFallsBackToDefault(t *testing.T) {
	var requested []string
	issuer, err := uploads.NewIssuer(uploads.Config{
		Uploads: uploadCreatorFunc(func(_ context.Context, req transcoder.DirectUploadRequest) (*transcoder.DirectUpload, error) {
			requested = append(requested, req.CORSOrigin)
			return &transcoder.DirectUpload{ID: "up-1", URL: "https://upload.example/up-1"}, nil
		}),
		DefaultOrigin:  "https://app.example",
		AllowedOrigins: []string{"https://app.example"},
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)
	s := newTestServerWith(t, issuer)

	rec := s.do(t, http.MethodPost, "/uploads", `{}`, http.Header{"Origin": {"https://evil.example.net"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"uploadUrl":"https://upload.example/up-1","uploadId":"up-1","corsOrigin":"https://app.example"}`, rec.Body.String())
	assert.Equal(t, "https://evil.example.net", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, []string{"https://app.example"}, requested)

	rec = s.do(t, http.MethodGet, "/media/anything", "", http.Header{"Origin": {"https://evil.example.net"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTranscoderWebhook(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.repo.Create(context.Background(), &models.MediaItem{ID: "item-1", Status: models.UploadingStatus}))

	body := `{"type":"video.asset.ready","id":"evt","data":{"id":"asset","passthrough":"{\"i\":\"item-1\"}","playback_ids":[{"id":"pb_123","policy":"public"}]}}`

	rec := s.do(t, http.MethodPost, "/webhooks/transcoder", body, http.Header{
		transcoder.SignatureHeader: {s.verifier.Sign([]byte(body), time.Now())},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"processed"}`, rec.Body.String())

	got, err := s.repo.GetByID(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, "pb_123", got.ExternalAssetPlaybackID)

	rec = s.do(t, http.MethodPost, "/webhooks/transcoder", body, http.Header{
		transcoder.SignatureHeader: {"t=1,v1=00"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	noop := `{"type":"video.asset.ready","data":{"playback_ids":[{"id":"pb"}]}}`
	rec = s.do(t, http.MethodPost, "/webhooks/transcoder", noop, http.Header{
		transcoder.SignatureHeader: {s.verifier.Sign([]byte(noop), time.Now())},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"noop"}`, rec.Body.String())
}

func TestStreamEvents(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/media/item-1/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan SnapshotResponse, 4)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var snap SnapshotResponse
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap) == nil {
				events <- snap
			}
		}
	}()

	next := func() SnapshotResponse {
		select {
		case e, ok := <-events:
			require.True(t, ok, "stream ended")
			return e
		case <-time.After(2 * time.Second):
			t.Fatal("no event received")
			return SnapshotResponse{}
		}
	}

	assert.False(t, next().Exists)

	require.NoError(t, s.repo.Create(context.Background(), &models.MediaItem{ID: "item-1", Status: models.ProcessingStatus, Stage: "queued"}))
	e := next()
	require.True(t, e.Exists)
	assert.Equal(t, "queued", e.Item.Stage)
}
