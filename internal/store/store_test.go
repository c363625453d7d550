package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "sessions.db"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func finishedSession(t *testing.T, name string, n int) *session.Session {
	t.Helper()
	s := session.New(name, models.DefaultConfiguration(), models.Environment{MachineName: "test"})
	for i := 0; i < n; i++ {
		_, err := s.Append(models.APICallEvent{
			EventBase:  models.NewBase(models.EventTypeAPICall, "corr"),
			HTTPMethod: "GET",
			RequestURL: "https://example.test/items",
			StatusCode: 200,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	s.Finalize(time.Now())
	return s
}

func TestSaveAndLoad(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	sess := finishedSession(t, "store me", 3)

	if err := st.Save(ctx, sess.Info(), sess.Entries()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, events, err := st.Load(ctx, sess.ID())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if info.Name != "store me" || info.EventCount != 3 || info.EndTime == nil {
		t.Errorf("info = %+v", info)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d", len(events))
	}
	for i, e := range events {
		if e.Base().SequenceNumber != int64(i+1) {
			t.Errorf("event %d sequence = %d", i, e.Base().SequenceNumber)
		}
		if e.(models.APICallEvent).RequestURL != "https://example.test/items" {
			t.Errorf("event %d lost fields", i)
		}
	}

	// Prefix lookup.
	if _, _, err := st.Load(ctx, sess.ID()[:8]); err != nil {
		t.Errorf("Load(prefix) error = %v", err)
	}
}

func TestSaveReplaces(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	sess := finishedSession(t, "replace", 2)

	if err := st.Save(ctx, sess.Info(), sess.Entries()); err != nil {
		t.Fatal(err)
	}
	if err := st.Save(ctx, sess.Info(), sess.Entries()[:1]); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	_, events, err := st.Load(ctx, sess.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Errorf("len(events) = %d, want 1", len(events))
	}
}

func TestListAndDelete(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	first := finishedSession(t, "first", 1)
	time.Sleep(2 * time.Millisecond)
	second := finishedSession(t, "second", 0)
	for _, s := range []*session.Session{first, second} {
		if err := st.Save(ctx, s.Info(), s.Entries()); err != nil {
			t.Fatal(err)
		}
	}

	list, err := st.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "second" {
		t.Fatalf("List() = %+v", list)
	}

	if err := st.Delete(ctx, first.ID()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, _, err := st.Load(ctx, first.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after delete error = %v, want ErrNotFound", err)
	}
	if err := st.Delete(ctx, first.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestSaveFinishedHook(t *testing.T) {
	st := openTestStore(t)
	sess := finishedSession(t, "hook", 1)

	st.SaveFinished(context.Background(), time.Second)(sess)

	if _, events, err := st.Load(context.Background(), sess.ID()); err != nil || len(events) != 1 {
		t.Errorf("Load() = %d events, %v", len(events), err)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "", nil); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: "postgres"}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("rebind() = %q", got)
	}
	lite := &Store{driver: "sqlite"}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("rebind() = %q", got)
	}
}
