package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/media-pipeline/internal/media/httpapi"
	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/media/repository"
	"github.com/romariotrain/media-pipeline/internal/media/service"
)

type cliTestEnv struct {
	repo    *repository.MemoryRepository
	server  *httptest.Server
	pending string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	repo := repository.NewMemoryRepository()
	h := httpapi.New(httpapi.Config{
		Service:   service.New(repo),
		Logger:    zerolog.Nop(),
		Heartbeat: time.Hour,
	})
	srv := httptest.NewServer(httpapi.NewRouter(h))
	t.Cleanup(srv.Close)

	pending := filepath.Join(t.TempDir(), "pending.json")
	t.Setenv("MEDIACTL_PENDING", pending)
	t.Setenv("MEDIACTL_SERVER", "")

	return &cliTestEnv{repo: repo, server: srv, pending: pending}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", e.server.URL}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func (e *cliTestEnv) seed(t *testing.T, status models.Status) {
	t.Helper()
	item := &models.MediaItem{ID: "abc", OwnerID: "u1", Status: status, MediaKind: models.Video}
	if status == models.ReadyStatus {
		item.ExternalAssetPlaybackID = "pb_123"
	}
	require.NoError(t, e.repo.Create(context.Background(), item))
}

func TestCreateAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "create", "--owner", "u1", "--caption", "beach")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, err = env.run(t, "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "beach")
	assert.Contains(t, out, "processing")
	assert.Contains(t, out, "10%")
}

func TestShowMissing(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := env.run(t, "show", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestWatchReady(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed(t, models.ReadyStatus)
	require.NoError(t, newPendingFile(env.pending).Remember("abc", "clip.mov"))

	out, err := env.run(t, "watch", "abc")
	require.NoError(t, err)
	assert.Contains(t, out, "READY abc playback id pb_123")

	entries, err := newPendingFile(env.pending).List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWatchFailedSuggestsDelete(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed(t, models.FailedStatus)

	out, err := env.run(t, "watch", "abc")
	require.Error(t, err)
	assert.Contains(t, out, "mediactl delete abc")

	_, err = env.repo.GetByID(context.Background(), "abc")
	require.NoError(t, err)
}

func TestWatchFailedDeleteOnFailure(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed(t, models.FailedStatus)

	out, err := env.run(t, "watch", "abc", "--delete-on-failure")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted abc")

	_, err = env.repo.GetByID(context.Background(), "abc")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteOnlyWhenFailed(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed(t, models.ProcessingStatus)

	_, err := env.run(t, "delete", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	out, err := env.run(t, "delete", "abc", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted abc")

	out, err = env.run(t, "delete", "abc")
	require.NoError(t, err)
	assert.Contains(t, out, "does not exist")
}

func TestPendingList(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending items")

	p := newPendingFile(env.pending)
	require.NoError(t, p.Remember("b", "two.mov"))
	require.NoError(t, p.Remember("a", "one.mov"))

	out, err = env.run(t, "pending")
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "one.mov"), strings.Index(out, "two.mov"))

	p.Forget("a")
	require.NoError(t, p.Err())
	entries, err := p.List()
	require.NoError(t, err)
	assert.Equal(t, []pendingEntry{{ID: "b", Note: "two.mov"}}, entries)
}

func TestRenderList(t *testing.T) {
	assert.Empty(t, renderList(nil, nil))

	out := renderList([]string{"A", "B"}, [][]string{{"1"}, {"2", "3"}})
	assert.Contains(t, out, "A")
	assert.Contains(t, out, "3")
}

func TestRenderFields(t *testing.T) {
	assert.Empty(t, renderFields(nil, false))

	out := renderFields([]field{{"ID", "abc"}, {"Playback ID", ""}}, false)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	// names are right-aligned so the values line up
	assert.Equal(t, strings.Index(lines[0], "abc"), strings.Index(lines[1], "-"))
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[1]), "Playback ID"))
	assert.NotContains(t, out, "\x1b[")
}

func TestItemFields_PurgeState(t *testing.T) {
	value := func(fields []field, name string) string {
		for _, f := range fields {
			if f.name == name {
				return f.value
			}
		}
		return ""
	}
	assert.Equal(t, "no", value(itemFields(&models.MediaItem{}), "Origin purged"))
	assert.Equal(t, "yes", value(itemFields(&models.MediaItem{OriginPurged: true}), "Origin purged"))
	assert.Equal(t, "failed", value(itemFields(&models.MediaItem{OriginPurgeError: true}), "Origin purged"))
	assert.Equal(t, "", value(itemFields(&models.MediaItem{Status: models.ReadyStatus}), "Progress"))
}

func TestProgressPrinterSkipsRepeats(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf)
	p.Print("encoding", 50)
	p.Print("encoding", 50)
	p.Print("encoding", 150)
	p.Done()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "100%")
}
