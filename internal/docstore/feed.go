package docstore

import (
	"context"
	"sync"
)

// Feed раздаёт уведомления об изменённых путях подписчикам.
// Сигналы схлопываются: подписчик перечитывает актуальное значение,
// поэтому промежуточные состояния могут быть пропущены (latest wins).
type Feed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*feedSub
}

type feedSub struct {
	path       string
	collection bool
	ch         chan struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[int]*feedSub)}
}

// Subscribe подписывает на документ (collection=false) или на детей коллекции.
func (f *Feed) Subscribe(path string, collection bool) (<-chan struct{}, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	s := &feedSub{path: path, collection: collection, ch: make(chan struct{}, 1)}
	f.subs[id] = s

	return s.ch, func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Publish уведомляет подписчиков об изменении документов по путям.
func (f *Feed) Publish(paths ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range paths {
		parent := Ref{Path: p}.Parent()
		for _, s := range f.subs {
			if (!s.collection && s.path == p) || (s.collection && s.path == parent) {
				select {
				case s.ch <- struct{}{}:
				default:
				}
			}
		}
	}
}

// Watch крутит цикл подписки: прочитать, отдать, дождаться сигнала.
func Watch(ctx context.Context, sig <-chan struct{}, read func(ctx context.Context) error) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := read(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-sig:
		}
	}
}

// Broadcast будит всех подписчиков (например, после переподключения бекенда).
func (f *Feed) Broadcast() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.subs {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}
