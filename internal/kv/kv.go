// Package kv — локальное key-value хранилище клиента. Ошибки хранилища
// проглатываются: вызывающий продолжает так, будто запись прошла.
package kv

import "sync"

type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
}

// Memory живёт в памяти: для тестов и одноразовых сессий.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[key]
	return v, ok
}

func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	m.items[key] = value
	m.mu.Unlock()
}

func (m *Memory) Remove(key string) {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
}
