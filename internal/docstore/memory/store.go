// Package memory — документное хранилище в памяти процесса с оптимистичными
// транзакциями. Используется в тестах и при storage.driver=memory.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cwrk-planet/poker-service/internal/docstore"
)

type document struct {
	data    docstore.Data
	version uint64
}

type Store struct {
	mu    sync.RWMutex
	docs  map[string]document
	clock uint64
	feed  *docstore.Feed

	// beforeCommit вызывается перед проверкой чтений транзакции (для тестов гонок).
	beforeCommit func()
}

var _ docstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		docs: make(map[string]document),
		feed: docstore.NewFeed(),
	}
}

// SetBeforeCommit ставит хук, срабатывающий перед коммитом каждой попытки транзакции.
func (s *Store) SetBeforeCommit(fn func()) {
	s.mu.Lock()
	s.beforeCommit = fn
	s.mu.Unlock()
}

func (s *Store) get(ref docstore.Ref) (docstore.Snapshot, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[ref.Path]
	if !ok {
		return docstore.Snapshot{Ref: ref}, 0
	}
	return docstore.Snapshot{Ref: ref, Exists: true, Data: docstore.Clone(d.data)}, d.version
}

func (s *Store) list(coll docstore.Ref) []docstore.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]docstore.Snapshot, 0)
	for p, d := range s.docs {
		ref := docstore.Ref{Path: p}
		if ref.Parent() != coll.Path {
			continue
		}
		out = append(out, docstore.Snapshot{Ref: ref, Exists: true, Data: docstore.Clone(d.data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.ID() < out[j].Ref.ID() })
	return out
}

func (s *Store) Observe(ctx context.Context, ref docstore.Ref, fn func(docstore.Snapshot)) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	sig, unsub := s.feed.Subscribe(ref.Path, false)
	defer unsub()

	return docstore.Watch(ctx, sig, func(context.Context) error {
		snap, _ := s.get(ref)
		fn(snap)
		return nil
	})
}

func (s *Store) ObserveCollection(ctx context.Context, ref docstore.Ref, fn func([]docstore.Snapshot)) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	sig, unsub := s.feed.Subscribe(ref.Path, true)
	defer unsub()

	return docstore.Watch(ctx, sig, func(context.Context) error {
		fn(s.list(ref))
		return nil
	})
}

func (s *Store) GetAll(ctx context.Context, ref docstore.Ref) ([]docstore.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return s.list(ref), nil
}

func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	for attempt := 0; attempt < docstore.MaxTransactionAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &txn{store: s, reads: make(map[string]uint64)}
		if err := fn(ctx, tx); err != nil {
			return err
		}

		s.mu.RLock()
		hook := s.beforeCommit
		s.mu.RUnlock()
		if hook != nil {
			hook()
		}

		err := s.commit(tx.reads, tx.ops)
		if errors.Is(err, docstore.ErrConflict) {
			continue
		}
		return err
	}
	return docstore.ErrContention
}

func (s *Store) Batch() docstore.Batch {
	return &batch{store: s}
}

// commit проверяет версии прочитанных документов и атомарно применяет записи.
func (s *Store) commit(reads map[string]uint64, ops []docstore.Op) error {
	s.mu.Lock()

	for p, v := range reads {
		if s.docs[p].version != v {
			s.mu.Unlock()
			return docstore.ErrConflict
		}
	}

	staged := make(map[string]*document, len(ops))
	lookup := func(p string) *document {
		if d, ok := staged[p]; ok {
			return d
		}
		if d, ok := s.docs[p]; ok {
			return &d
		}
		return nil
	}

	changed := make([]string, 0, len(ops))
	for _, op := range ops {
		if err := op.Ref.Validate(); err != nil {
			s.mu.Unlock()
			return err
		}
		p := op.Ref.Path
		switch op.Kind {
		case docstore.OpSet:
			staged[p] = &document{data: docstore.Clone(op.Data)}
		case docstore.OpUpdate:
			cur := lookup(p)
			if cur == nil {
				s.mu.Unlock()
				return fmt.Errorf("%w: %s", docstore.ErrNotFound, p)
			}
			staged[p] = &document{data: docstore.Merge(cur.data, op.Data)}
		case docstore.OpDelete:
			staged[p] = nil
		}
		changed = append(changed, p)
	}

	for p, d := range staged {
		if d == nil {
			delete(s.docs, p)
			continue
		}
		s.clock++
		s.docs[p] = document{data: d.data, version: s.clock}
	}
	s.mu.Unlock()

	s.feed.Publish(changed...)
	return nil
}

type txn struct {
	store *Store
	reads map[string]uint64
	ops   []docstore.Op
}

func (t *txn) Get(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Snapshot{}, err
	}
	if err := ref.Validate(); err != nil {
		return docstore.Snapshot{}, err
	}
	snap, v := t.store.get(ref)
	if _, seen := t.reads[ref.Path]; !seen {
		t.reads[ref.Path] = v
	}
	return snap, nil
}

func (t *txn) Set(ref docstore.Ref, data docstore.Data) {
	t.ops = append(t.ops, docstore.Op{Kind: docstore.OpSet, Ref: ref, Data: data})
}

func (t *txn) Update(ref docstore.Ref, data docstore.Data) {
	t.ops = append(t.ops, docstore.Op{Kind: docstore.OpUpdate, Ref: ref, Data: data})
}

func (t *txn) Delete(ref docstore.Ref) {
	t.ops = append(t.ops, docstore.Op{Kind: docstore.OpDelete, Ref: ref})
}

type batch struct {
	store *Store
	mu    sync.Mutex
	ops   []docstore.Op
}

func (b *batch) Set(ref docstore.Ref, data docstore.Data) {
	b.add(docstore.Op{Kind: docstore.OpSet, Ref: ref, Data: data})
}

func (b *batch) Update(ref docstore.Ref, data docstore.Data) {
	b.add(docstore.Op{Kind: docstore.OpUpdate, Ref: ref, Data: data})
}

func (b *batch) Delete(ref docstore.Ref) {
	b.add(docstore.Op{Kind: docstore.OpDelete, Ref: ref})
}

func (b *batch) add(op docstore.Op) {
	b.mu.Lock()
	b.ops = append(b.ops, op)
	b.mu.Unlock()
}

func (b *batch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	ops := b.ops
	b.ops = nil
	b.mu.Unlock()
	if len(ops) == 0 {
		return nil
	}
	return b.store.commit(nil, ops)
}
