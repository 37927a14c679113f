package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/poker-service/internal/docstore"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&pgconn.PgError{Code: sqlStateSerializationFailure}))
	assert.True(t, retryable(fmt.Errorf("commit: %w", &pgconn.PgError{Code: sqlStateDeadlockDetected})))
	assert.False(t, retryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, retryable(errors.New("boom")))
	assert.False(t, retryable(nil))
}

func TestDecodeData(t *testing.T) {
	d, err := decodeData(nil)
	require.NoError(t, err)
	assert.Empty(t, d)

	d, err = decodeData([]byte(`{"revealed":true,"lastResetAt":null}`))
	require.NoError(t, err)
	assert.Equal(t, docstore.Data{"revealed": true, "lastResetAt": nil}, d)

	_, err = decodeData([]byte(`[`))
	assert.Error(t, err)
}

// newTestStore поднимает стор на реальной базе из POSTGRES_TEST_DSN.
func newTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN is not set")
	}
	ctx := context.Background()

	db, err := New(ctx, Config{DSN: dsn, MaxConns: 8, ApplicationName: "poker-service-test"})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, CreateSchema(ctx, db.Pool))
	_, err = db.Pool.Exec(ctx, `DELETE FROM documents WHERE path LIKE 'test-rooms/%'`)
	require.NoError(t, err)

	s := NewDocumentStore(db.Pool)
	lctx, cancel := context.WithCancel(ctx)
	go func() { _ = s.Listen(lctx) }()
	t.Cleanup(cancel)
	return s
}

func TestDocumentStore_TransactionAndBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	room := docstore.Doc("test-rooms", "r1")
	parts := docstore.Collection("test-rooms", "r1", "participants")

	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, room)
		if err != nil {
			return err
		}
		assert.False(t, snap.Exists)
		tx.Set(room, docstore.Data{"revealed": false, "lastResetAt": nil})
		tx.Set(parts.Child("a"), docstore.Data{"id": "a", "name": "Ann", "vote": "5"})
		return nil
	})
	require.NoError(t, err)

	all, err := s.GetAll(ctx, parts)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "5", all[0].Data["vote"])

	b := s.Batch()
	b.Update(parts.Child("a"), docstore.Data{"vote": nil})
	require.NoError(t, b.Commit(ctx))

	all, err = s.GetAll(ctx, parts)
	require.NoError(t, err)
	assert.Nil(t, all[0].Data["vote"])
	assert.Equal(t, "Ann", all[0].Data["name"])

	b = s.Batch()
	b.Delete(parts.Child("a"))
	b.Update(parts.Child("missing"), docstore.Data{"vote": nil})
	assert.ErrorIs(t, b.Commit(ctx), docstore.ErrNotFound)

	all, err = s.GetAll(ctx, parts)
	require.NoError(t, err)
	assert.Len(t, all, 1, "failed batch must roll back")
}

func TestDocumentStore_ConcurrentTransactions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	counter := docstore.Doc("test-rooms", "counter")

	b := s.Batch()
	b.Set(counter, docstore.Data{"n": 0})
	require.NoError(t, b.Commit(ctx))

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
				snap, err := tx.Get(ctx, counter)
				if err != nil {
					return err
				}
				n, _ := snap.Data["n"].(float64)
				tx.Update(counter, docstore.Data{"n": n + 1})
				return nil
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	var got float64
	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, counter)
		got, _ = snap.Data["n"].(float64)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, float64(workers), got)
}

func TestDocumentStore_ObserveGetsNotifications(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	room := docstore.Doc("test-rooms", "live")

	var (
		mu   sync.Mutex
		last docstore.Snapshot
	)
	go func() {
		_ = s.Observe(ctx, room, func(snap docstore.Snapshot) {
			mu.Lock()
			last = snap
			mu.Unlock()
		})
	}()

	b := s.Batch()
	b.Set(room, docstore.Data{"revealed": true})
	require.NoError(t, b.Commit(context.Background()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last.Exists && last.Data["revealed"] == true
	}, 5*time.Second, 20*time.Millisecond)
}
