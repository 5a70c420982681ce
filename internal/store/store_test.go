package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/observe"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/result"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	started := time.Date(2021, 1, 22, 14, 40, 13, 0, time.UTC)

	require.NoError(t, s.SaveSession(ctx, Session{ID: "a", Section: "walk", StartedAt: started}))
	require.NoError(t, s.SaveSession(ctx, Session{ID: "b", Section: "rest", StartedAt: started.Add(time.Minute)}))

	finished := started.Add(2 * time.Minute)
	require.NoError(t, s.FinishSession(ctx, "a", "finished", "", finished))
	require.NoError(t, s.SetArchivePath(ctx, "a", "/tmp/a.tar.zst"))

	sess, err := s.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "walk", sess.Section)
	assert.Equal(t, "finished", sess.Status)
	assert.Equal(t, "/tmp/a.tar.zst", sess.ArchivePath)
	assert.True(t, sess.StartedAt.Equal(started))
	require.NotNil(t, sess.FinishedAt)
	assert.True(t, sess.FinishedAt.Equal(finished))

	list, err := s.ListSessions(ctx, ListQuery{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID, "newest first")
	assert.Nil(t, list[0].FinishedAt)

	list, err = s.ListSessions(ctx, ListQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)
}

func TestMissingSession(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.GetSession(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.FinishSession(ctx, "nope", "failed", "boom", time.Now()), ErrNotFound)
	assert.Error(t, s.SaveSession(ctx, Session{}))
}

func TestSaveResultFlattensCollections(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	now := time.Date(2021, 1, 22, 14, 40, 13, 0, time.UTC)

	c := result.NewCollection("distance")
	c.Append(result.File{
		Base:        result.Base{ID: "distance", Start: now, End: now.Add(time.Minute)},
		URL:         "/data/distance.json",
		ContentType: "application/json",
		SampleCount: 7,
	})
	c.Append(result.Answer{Base: result.Base{ID: "stepCount", Start: now, End: now}, AnswerType: "integer", Value: 42})

	require.NoError(t, s.SaveResult(ctx, "sess-1", "distance", c))
	require.NoError(t, s.SaveResult(ctx, "sess-1", "motion", nil))

	rows, err := s.ListResults(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, result.TypeFile, rows[0].Type)
	assert.Equal(t, "/data/distance.json", rows[0].Path)
	assert.Equal(t, 7, rows[0].SampleCount)
	assert.Equal(t, "distance", rows[0].Recorder)

	assert.Equal(t, "stepCount", rows[1].Identifier)
	decoded, err := rows[1].Decode()
	require.NoError(t, err)
	answer, ok := decoded.(result.Answer)
	require.True(t, ok, "got %T", decoded)
	assert.EqualValues(t, 42, answer.Value)

	_, err = s.ListResults(ctx, "")
	assert.Error(t, err)
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	now := time.Date(2021, 1, 22, 14, 40, 13, 0, time.UTC)

	var sink observe.Sink = s
	require.NoError(t, sink.Emit(ctx, observe.Event{
		SessionID: "sess-1", Recorder: "motion", Kind: observe.KindStatus,
		From: "starting", To: "running", Timestamp: now,
	}))
	require.NoError(t, s.SaveEvent(ctx, observe.Event{
		SessionID: "sess-1", Recorder: "motion", Kind: observe.KindError,
		Error: "sensor lost", Attributes: map[string]any{"code": "gone"}, Timestamp: now.Add(time.Second),
	}))
	require.NoError(t, s.SaveEvent(ctx, observe.Event{SessionID: "other", Kind: observe.KindStep, Timestamp: now}))

	events, err := s.ListEvents(ctx, "sess-1", ListQuery{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, observe.KindStatus, events[0].Kind)
	assert.Equal(t, "running", events[0].To)
	assert.True(t, events[0].Timestamp.Equal(now))
	assert.Equal(t, "sensor lost", events[1].Error)
	assert.Equal(t, "gone", events[1].Attributes["code"])
}

func TestNilStoreClose(t *testing.T) {
	var s *Store
	assert.NoError(t, s.Close())
}
