package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// target is a fake resumable upload endpoint.
type target struct {
	mu       sync.Mutex
	received bytes.Buffer
	ranges   []string
	failures int
	status   int
}

func (t *target) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != 0 {
		w.WriteHeader(t.status)
		_, _ = io.WriteString(w, "nope")
		return
	}
	if t.failures > 0 {
		t.failures--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	rng := r.Header.Get("Content-Range")
	t.ranges = append(t.ranges, rng)

	var start, end, total int64
	if _, err := fmt.Sscanf(rng, "bytes %d-%d/%d", &start, &end, &total); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	body, _ := io.ReadAll(r.Body)
	t.received.Write(body)

	if end+1 < total {
		w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", end))
		w.WriteHeader(statusResumeIncomplete)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func newUploader(srv *httptest.Server, progress ProgressFunc) *Uploader {
	return New(Config{
		ChunkSize:  4,
		Backoff:    time.Millisecond,
		HTTPClient: srv.Client(),
		Progress:   progress,
		Logger:     zerolog.Nop(),
	})
}

func TestUpload_Chunks(t *testing.T) {
	tg := &target{}
	srv := httptest.NewServer(tg)
	defer srv.Close()

	var progress []int64
	u := newUploader(srv, func(sent, total int64) {
		assert.Equal(t, int64(10), total)
		progress = append(progress, sent)
	})

	data := []byte("0123456789")
	require.NoError(t, u.Upload(context.Background(), srv.URL, bytes.NewReader(data), int64(len(data)), "video/mp4"))

	assert.Equal(t, data, tg.received.Bytes())
	assert.Equal(t, []string{"bytes 0-3/10", "bytes 4-7/10", "bytes 8-9/10"}, tg.ranges)
	assert.Equal(t, []int64{4, 8, 10}, progress)
}

func TestUpload_RetriesServerErrors(t *testing.T) {
	tg := &target{failures: 2}
	srv := httptest.NewServer(tg)
	defer srv.Close()

	data := []byte("abc")
	require.NoError(t, newUploader(srv, nil).Upload(context.Background(), srv.URL, bytes.NewReader(data), 3, ""))
	assert.Equal(t, data, tg.received.Bytes())
}

func TestUpload_GivesUpAfterMaxAttempts(t *testing.T) {
	tg := &target{failures: 10}
	srv := httptest.NewServer(tg)
	defer srv.Close()

	err := newUploader(srv, nil).Upload(context.Background(), srv.URL, bytes.NewReader([]byte("abc")), 3, "")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, 7, tg.failures)
}

func TestUpload_ClientErrorIsNotRetried(t *testing.T) {
	tg := &target{status: http.StatusForbidden}
	srv := httptest.NewServer(tg)
	defer srv.Close()

	err := newUploader(srv, nil).Upload(context.Background(), srv.URL, bytes.NewReader([]byte("abc")), 3, "")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Equal(t, "nope", statusErr.Body)
}

func TestUpload_Cancelled(t *testing.T) {
	tg := &target{failures: 10}
	srv := httptest.NewServer(tg)
	defer srv.Close()

	u := New(Config{Backoff: time.Hour, HTTPClient: srv.Client(), Logger: zerolog.Nop()})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := u.Upload(ctx, srv.URL, bytes.NewReader([]byte("abc")), 3, "")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUpload_RequiresURL(t *testing.T) {
	err := New(Config{}).Upload(context.Background(), "", bytes.NewReader(nil), 0, "")
	require.Error(t, err)
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		header string
		want   int64
		ok     bool
	}{
		{"bytes=0-99", 100, true},
		{" bytes=0-0 ", 1, true},
		{"", 0, false},
		{"bytes=0-x", 0, false},
		{"items=0-1", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseRange(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestContentRange(t *testing.T) {
	assert.Equal(t, "bytes */0", contentRange(0, 0, 0))
	assert.Equal(t, "bytes 0-0/1", contentRange(0, 1, 1))
}
