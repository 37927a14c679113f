package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/poker-service/internal/docstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	room  = docstore.Doc("rooms", "r1")
	parts = docstore.Collection("rooms", "r1", "participants")
)

func set(t *testing.T, s *Store, ref docstore.Ref, d docstore.Data) {
	t.Helper()
	b := s.Batch()
	b.Set(ref, d)
	require.NoError(t, b.Commit(context.Background()))
}

func TestTransaction_ReadWrite(t *testing.T) {
	s := New()
	ctx := context.Background()
	set(t, s, room, docstore.Data{"revealed": false})

	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, room)
		if err != nil {
			return err
		}
		tx.Update(room, docstore.Data{"revealed": !snap.Data["revealed"].(bool)})
		return nil
	})
	require.NoError(t, err)

	snap, _ := s.get(room)
	assert.Equal(t, true, snap.Data["revealed"])
}

func TestTransaction_ErrorAbortsWrites(t *testing.T) {
	s := New()
	boom := errors.New("boom")

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		tx.Set(room, docstore.Data{"revealed": true})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	snap, _ := s.get(room)
	assert.False(t, snap.Exists)
}

func TestTransaction_UpdateMissingFails(t *testing.T) {
	s := New()

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		tx.Set(parts.Child("a"), docstore.Data{"name": "Ann"})
		tx.Update(room, docstore.Data{"revealed": true})
		return nil
	})
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	// ничего не записано частично
	all, err := s.GetAll(context.Background(), parts)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTransaction_RetriesOnConflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	set(t, s, room, docstore.Data{"n": float64(0)})

	attempts := 0
	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		attempts++
		snap, err := tx.Get(ctx, room)
		if err != nil {
			return err
		}
		if attempts == 1 {
			// конкурентная запись между чтением и коммитом
			set(t, s, room, docstore.Data{"n": float64(10)})
		}
		tx.Update(room, docstore.Data{"n": snap.Data["n"].(float64) + 1})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	snap, _ := s.get(room)
	assert.Equal(t, float64(11), snap.Data["n"])
}

func TestTransaction_GivesUpAfterMaxAttempts(t *testing.T) {
	s := New()
	ctx := context.Background()
	set(t, s, room, docstore.Data{"n": float64(0)})

	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if _, err := tx.Get(ctx, room); err != nil {
			return err
		}
		set(t, s, room, docstore.Data{"n": float64(1)})
		tx.Update(room, docstore.Data{"n": float64(2)})
		return nil
	})
	assert.ErrorIs(t, err, docstore.ErrContention)
}

func TestBatch_Atomic(t *testing.T) {
	s := New()
	ctx := context.Background()
	set(t, s, parts.Child("a"), docstore.Data{"vote": "1"})

	b := s.Batch()
	b.Update(parts.Child("a"), docstore.Data{"vote": nil})
	b.Update(parts.Child("missing"), docstore.Data{"vote": nil})
	assert.ErrorIs(t, b.Commit(ctx), docstore.ErrNotFound)

	snap, _ := s.get(parts.Child("a"))
	assert.Equal(t, "1", snap.Data["vote"], "failed batch must not apply any write")
}

func TestGetAll_OrderedByID(t *testing.T) {
	s := New()
	set(t, s, parts.Child("b"), docstore.Data{"name": "Bob"})
	set(t, s, parts.Child("a"), docstore.Data{"name": "Ann"})
	set(t, s, docstore.Collection("rooms", "r2", "participants").Child("c"), docstore.Data{"name": "Cid"})
	set(t, s, room, docstore.Data{})

	all, err := s.GetAll(context.Background(), parts)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Ref.ID())
	assert.Equal(t, "b", all[1].Ref.ID())
}

func TestObserve_EmitsOnChange(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		snaps []docstore.Snapshot
	)
	done := make(chan error, 1)
	go func() {
		done <- s.Observe(ctx, room, func(snap docstore.Snapshot) {
			mu.Lock()
			snaps = append(snaps, snap)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snaps) == 1 && !snaps[0].Exists
	}, time.Second, 5*time.Millisecond)

	set(t, s, room, docstore.Data{"revealed": true})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		last := snaps[len(snaps)-1]
		return last.Exists && last.Data["revealed"] == true
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestObserveCollection_EmitsOnChildChange(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		last []docstore.Snapshot
	)
	go func() {
		_ = s.ObserveCollection(ctx, parts, func(snaps []docstore.Snapshot) {
			mu.Lock()
			last = snaps
			mu.Unlock()
		})
	}()

	set(t, s, parts.Child("a"), docstore.Data{"name": "Ann"})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 1
	}, time.Second, 5*time.Millisecond)

	b := s.Batch()
	b.Delete(parts.Child("a"))
	require.NoError(t, b.Commit(context.Background()))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestObserve_BadPath(t *testing.T) {
	s := New()
	err := s.Observe(context.Background(), docstore.Ref{}, func(docstore.Snapshot) {})
	assert.ErrorIs(t, err, docstore.ErrBadPath)
}
