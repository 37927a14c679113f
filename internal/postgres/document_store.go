package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/poker-service/internal/docstore"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// коды SQLSTATE, при которых транзакцию можно перезапустить
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// DocumentStore — документное хранилище поверх одной JSONB-таблицы.
// Изменения доставляются подписчикам через LISTEN/NOTIFY (см. Listen).
type DocumentStore struct {
	db   *pgxpool.Pool
	feed *docstore.Feed

	reconnectDelay time.Duration
}

var _ docstore.Store = (*DocumentStore)(nil)

func NewDocumentStore(db *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{
		db:             db,
		feed:           docstore.NewFeed(),
		reconnectDelay: time.Second,
	}
}

func (s *DocumentStore) Observe(ctx context.Context, ref docstore.Ref, fn func(docstore.Snapshot)) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	sig, unsub := s.feed.Subscribe(ref.Path, false)
	defer unsub()

	return docstore.Watch(ctx, sig, func(ctx context.Context) error {
		snap, err := getDoc(ctx, s.db, qGet, ref)
		if err != nil {
			return err
		}
		fn(snap)
		return nil
	})
}

func (s *DocumentStore) ObserveCollection(ctx context.Context, ref docstore.Ref, fn func([]docstore.Snapshot)) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	sig, unsub := s.feed.Subscribe(ref.Path, true)
	defer unsub()

	return docstore.Watch(ctx, sig, func(ctx context.Context) error {
		snaps, err := s.GetAll(ctx, ref)
		if err != nil {
			return err
		}
		fn(snaps)
		return nil
	})
}

func (s *DocumentStore) GetAll(ctx context.Context, ref docstore.Ref) ([]docstore.Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, qList, ref.Path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]docstore.Snapshot, 0, 16)
	for rows.Next() {
		var (
			path string
			raw  []byte
		)
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, err
		}
		data, err := decodeData(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		out = append(out, docstore.Snapshot{Ref: docstore.Ref{Path: path}, Exists: true, Data: data})
	}
	return out, rows.Err()
}

// RunTransaction выполняет fn в SERIALIZABLE-транзакции и перезапускает её
// при ошибках сериализации.
func (s *DocumentStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	for attempt := 0; attempt < docstore.MaxTransactionAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if !retryable(err) {
			return err
		}
		slog.Debug("postgres tx retry", "attempt", attempt+1, "err", err)
	}
	return docstore.ErrContention
}

func (s *DocumentStore) runOnce(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	t := &pgTxn{tx: tx}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := applyOps(ctx, tx, t.ops); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *DocumentStore) Batch() docstore.Batch {
	return &pgBatch{store: s}
}

// Listen держит соединение с LISTEN и публикует изменения в feed.
// Переподключается при обрыве; после переподключения будит всех подписчиков,
// чтобы они перечитали пропущенные изменения.
func (s *DocumentStore) Listen(ctx context.Context) error {
	for {
		err := s.listenOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("postgres listener lost", "err", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *DocumentStore) listenOnce(ctx context.Context) error {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	slog.Debug("postgres listener ready", "channel", notifyChannel)
	s.feed.Broadcast()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		s.feed.Publish(n.Payload)
	}
}

// -------- helpers --------

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getDoc(ctx context.Context, q querier, query string, ref docstore.Ref) (docstore.Snapshot, error) {
	var raw []byte
	err := q.QueryRow(ctx, query, ref.Path).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Snapshot{Ref: ref}, nil
	}
	if err != nil {
		return docstore.Snapshot{}, err
	}
	data, err := decodeData(raw)
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("decode %s: %w", ref, err)
	}
	return docstore.Snapshot{Ref: ref, Exists: true, Data: data}, nil
}

func decodeData(raw []byte) (docstore.Data, error) {
	data := docstore.Data{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// applyOps отправляет записи одним pgx.Batch внутри транзакции.
func applyOps(ctx context.Context, tx pgx.Tx, ops []docstore.Op) error {
	if len(ops) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, op := range ops {
		if err := op.Ref.Validate(); err != nil {
			return err
		}
		switch op.Kind {
		case docstore.OpSet, docstore.OpUpdate:
			raw, err := json.Marshal(op.Data)
			if err != nil {
				return fmt.Errorf("encode %s: %w", op.Ref, err)
			}
			if op.Kind == docstore.OpSet {
				b.Queue(qSet, op.Ref.Path, op.Ref.Parent(), string(raw))
			} else {
				b.Queue(qUpdate, op.Ref.Path, string(raw))
			}
		case docstore.OpDelete:
			b.Queue(qDelete, op.Ref.Path)
		}
		b.Queue(qNotify, notifyChannel, op.Ref.Path)
	}

	br := tx.SendBatch(ctx, b)
	for _, op := range ops {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return err
		}
		if op.Kind == docstore.OpUpdate && tag.RowsAffected() == 0 {
			_ = br.Close()
			return fmt.Errorf("%w: %s", docstore.ErrNotFound, op.Ref)
		}
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
	}
	return false
}

type pgTxn struct {
	tx  pgx.Tx
	ops []docstore.Op
}

func (t *pgTxn) Get(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return docstore.Snapshot{}, err
	}
	return getDoc(ctx, t.tx, qGetForUpdate, ref)
}

func (t *pgTxn) Set(ref docstore.Ref, data docstore.Data) {
	t.ops = append(t.ops, docstore.Op{Kind: docstore.OpSet, Ref: ref, Data: data})
}

func (t *pgTxn) Update(ref docstore.Ref, data docstore.Data) {
	t.ops = append(t.ops, docstore.Op{Kind: docstore.OpUpdate, Ref: ref, Data: data})
}

func (t *pgTxn) Delete(ref docstore.Ref) {
	t.ops = append(t.ops, docstore.Op{Kind: docstore.OpDelete, Ref: ref})
}

type pgBatch struct {
	store *DocumentStore
	ops   []docstore.Op
}

func (b *pgBatch) Set(ref docstore.Ref, data docstore.Data) {
	b.ops = append(b.ops, docstore.Op{Kind: docstore.OpSet, Ref: ref, Data: data})
}

func (b *pgBatch) Update(ref docstore.Ref, data docstore.Data) {
	b.ops = append(b.ops, docstore.Op{Kind: docstore.OpUpdate, Ref: ref, Data: data})
}

func (b *pgBatch) Delete(ref docstore.Ref) {
	b.ops = append(b.ops, docstore.Op{Kind: docstore.OpDelete, Ref: ref})
}

func (b *pgBatch) Commit(ctx context.Context) error {
	ops := b.ops
	b.ops = nil
	if len(ops) == 0 {
		return nil
	}

	tx, err := b.store.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := applyOps(ctx, tx, ops); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
