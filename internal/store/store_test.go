package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditdomain "layoutaria/internal/audit/domain"
	layoutdomain "layoutaria/internal/layout/domain"
	userdomain "layoutaria/internal/user/domain"
)

func openTemp(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "db.json")
	s, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func addUser(id string) func(*Document) (string, error) {
	return func(d *Document) (string, error) {
		d.Users = append(d.Users, &userdomain.User{ID: id, Email: id + "@example.com", Role: userdomain.RoleUser})
		return id, nil
	}
}

func TestOpen_CreatesMissingFile(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	s, path := openTemp(t, WithClock(clock))

	_, err := os.Stat(path)
	require.NoError(t, err)

	doc := s.Read(context.Background())
	assert.Equal(t, SchemaVersion, doc.Meta.SchemaVersion)
	assert.Equal(t, clock.Now(), doc.Meta.CreatedAt)
	assert.NotNil(t, doc.Users)
	assert.NotNil(t, doc.LayoutRevisions)
}

func TestMutate_PersistsAndSurvivesReopen(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()

	id, err := Mutate(ctx, s, addUser("u1"))
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
	require.NoError(t, s.Close())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, errors.Is(err, os.ErrNotExist), "staging file must be renamed away")

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	doc := reopened.Read(ctx)
	require.Len(t, doc.Users, 1)
	assert.Equal(t, "u1", doc.Users[0].ID)
}

func TestMutate_StampsUpdatedAt(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewMemory(WithClock(clock))
	defer s.Close()

	clock.Advance(time.Minute)
	doc, err := s.Update(context.Background(), func(*Document) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, clock.Now().UTC(), doc.Meta.UpdatedAt)
}

func TestMutate_FailedTransformCommitsNothing(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ctx := context.Background()

	_, err := Mutate(ctx, s, addUser("u1"))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = Mutate(ctx, s, func(d *Document) (int, error) {
		d.Users = append(d.Users, &userdomain.User{ID: "u2"})
		d.Users[0].Name = "half-written"
		return 0, boom
	})
	require.ErrorIs(t, err, boom)

	doc := s.Read(ctx)
	require.Len(t, doc.Users, 1)
	assert.Empty(t, doc.Users[0].Name)
	assert.Equal(t, uint64(1), s.Seq())
}

func TestMutate_PanicIsReturnedAsError(t *testing.T) {
	s := NewMemory()
	defer s.Close()

	_, err := Mutate(context.Background(), s, func(*Document) (int, error) {
		panic("bad transform")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad transform")

	_, err = Mutate(context.Background(), s, addUser("u1"))
	assert.NoError(t, err, "writer must keep serving after a panic")
}

func TestMutate_ConcurrentCallsAreSerialized(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ctx := context.Background()

	const n = 64
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Mutate(ctx, s, func(d *Document) (int, error) {
				// read-modify-write on shared state; lost updates would show up as a short count
				count := len(d.Users)
				d.Users = append(d.Users, &userdomain.User{ID: fmt.Sprintf("u%d", i), Name: fmt.Sprint(count)})
				return count, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc := s.Read(ctx)
	require.Len(t, doc.Users, n)
	for i, u := range doc.Users {
		assert.Equal(t, fmt.Sprint(i), u.Name, "each mutation must observe all earlier ones")
	}
	assert.Equal(t, uint64(n), s.Seq())
}

func TestRead_ReturnsIndependentCopy(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ctx := context.Background()

	_, err := s.Update(ctx, func(d *Document) error {
		d.Layouts = append(d.Layouts, &layoutdomain.Layout{ID: "l1", Tags: []string{"a"}, Version: 1})
		return nil
	})
	require.NoError(t, err)

	snap := s.Read(ctx)
	snap.Layouts[0].Tags[0] = "changed"
	snap.Layouts = nil

	again := s.Read(ctx)
	require.Len(t, again.Layouts, 1)
	assert.Equal(t, "a", again.Layouts[0].Tags[0])
}

func TestUpdate_ResultDoesNotAliasStore(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	ctx := context.Background()

	doc, err := s.Update(ctx, func(d *Document) error {
		d.Users = append(d.Users, &userdomain.User{ID: "u1", Name: "Ada"})
		return nil
	})
	require.NoError(t, err)
	doc.Users[0].Name = "Mallory"

	assert.Equal(t, "Ada", s.Read(ctx).Users[0].Name)
}

func TestLoad_QuarantinesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"users": [`), 0o644))

	clock := clockwork.NewFakeClockAt(time.UnixMilli(1767225600123).UTC())
	s, err := Open(path, WithClock(clock))
	require.NoError(t, err)
	defer s.Close()

	quarantined := fmt.Sprintf("%s.corrupted.%d", path, clock.Now().UnixMilli())
	raw, err := os.ReadFile(quarantined)
	require.NoError(t, err)
	assert.Equal(t, `{"users": [`, string(raw))

	assert.Empty(t, s.Read(context.Background()).Users)

	var onDisk Document
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &onDisk), "canonical file must be valid again")
}

func TestLoad_UpgradesLegacyDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")
	legacy := `{
	  "users": [{"id":"u1","email":"a@b.c","role":"user"}],
	  "layouts": [{"id":"l1","ownerId":"u1","name":"x","starredBy":["u2","u3"],"stars":0}],
	  "meta": {"version": 1}
	}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	doc := s.Read(context.Background())
	assert.Equal(t, SchemaVersion, doc.Meta.SchemaVersion)
	assert.NotNil(t, doc.Sessions)
	assert.NotNil(t, doc.AuditLogs)
	require.Len(t, doc.Layouts, 1)
	assert.Equal(t, 1, doc.Layouts[0].Version)
	assert.Equal(t, 2, doc.Layouts[0].Stars)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `"schemaVersion": 1`))
}

func TestMutate_PersistFailureCommitsNothing(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()

	require.NoError(t, os.RemoveAll(filepath.Dir(path)))

	_, err := Mutate(ctx, s, addUser("u1"))
	require.Error(t, err)
	assert.Empty(t, s.Read(ctx).Users)
}

func TestMutate_CancelledContextAbandonsWait(t *testing.T) {
	s := NewMemory()
	defer s.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = Mutate(context.Background(), s, func(*Document) (int, error) {
			close(started)
			<-release
			return 0, nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Mutate(ctx, s, addUser("u1"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	// the abandoned request was never dequeued, so it never ran
	_, err = Mutate(context.Background(), s, func(*Document) (int, error) { return 0, nil })
	require.NoError(t, err)
	assert.Empty(t, s.Read(context.Background()).Users)
}

func TestClose_RejectsLaterMutations(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := Mutate(context.Background(), s, addUser("u1"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCommitHook_ReceivesNewAuditLogs(t *testing.T) {
	var mu sync.Mutex
	var commits []Commit
	s := NewMemory(WithCommitHook(func(c Commit) {
		mu.Lock()
		defer mu.Unlock()
		commits = append(commits, c)
	}))
	defer s.Close()
	ctx := context.Background()

	_, err := s.Update(ctx, func(d *Document) error {
		d.AppendAudit(&auditdomain.AuditLog{ID: "a1", Action: "auth.register"})
		return nil
	})
	require.NoError(t, err)
	_, err = s.Update(ctx, func(d *Document) error {
		d.AppendAudit(&auditdomain.AuditLog{ID: "a2", Action: "auth.login"}, &auditdomain.AuditLog{ID: "a3", Action: "layout.create"})
		return nil
	})
	require.NoError(t, err)
	_, err = s.Update(ctx, func(*Document) error { return errors.New("rejected") })
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, commits, 2)
	assert.Equal(t, uint64(1), commits[0].Seq)
	require.Len(t, commits[0].AuditLogs, 1)
	assert.Equal(t, "a1", commits[0].AuditLogs[0].ID)
	require.Len(t, commits[1].AuditLogs, 2)
	assert.Equal(t, "a3", commits[1].AuditLogs[1].ID)
}

func TestPing_FailsAfterClose(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(context.Background()), ErrClosed)
}
