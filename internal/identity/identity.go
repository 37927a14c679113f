// Package identity хранит участника и комнату текущей клиентской сессии.
// Экземпляр создаётся явно на старте клиента и передаётся зависимостям.
package identity

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/cwrk-planet/poker-service/internal/domain"
	"github.com/cwrk-planet/poker-service/internal/kv"
)

// StorageKey — единственный ключ, под которым лежит снимок {participant, roomId}.
const StorageKey = "scrum-poker"

type snapshot struct {
	Participant *domain.Participant `json:"participant"`
	RoomID      string              `json:"roomId"`
}

type Store struct {
	mu          sync.RWMutex
	kv          kv.Store
	participant *domain.Participant
	roomID      string
}

// New восстанавливает состояние из kv. Битая или неполная запись удаляется,
// частичного восстановления не бывает.
func New(store kv.Store) *Store {
	s := &Store{kv: store}

	raw, ok := store.Get(StorageKey)
	if !ok || raw == "" {
		return s
	}
	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		slog.Debug("identity: drop unparsable snapshot", "err", err)
		store.Remove(StorageKey)
		return s
	}
	if snap.Participant == nil || snap.Participant.ID == "" || snap.RoomID == "" {
		slog.Debug("identity: drop incomplete snapshot")
		store.Remove(StorageKey)
		return s
	}

	s.participant = snap.Participant
	s.roomID = snap.RoomID
	return s
}

// Participant возвращает копию текущего участника.
func (s *Store) Participant() (domain.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.participant == nil {
		return domain.Participant{}, false
	}
	return *s.participant, true
}

func (s *Store) RoomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.roomID
}

// Current возвращает участника и комнату; ok=false, если хотя бы чего-то нет.
func (s *Store) Current() (domain.Participant, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.participant == nil || s.roomID == "" {
		return domain.Participant{}, "", false
	}
	return *s.participant, s.roomID, true
}

// SetParticipant обновляет состояние и сохраняет пару одним значением.
func (s *Store) SetParticipant(p domain.Participant, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.participant = &p
	s.roomID = roomID
	s.persistLocked()
}

// SetVote меняет голос в локальном снимке участника.
func (s *Store) SetVote(v domain.Vote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.participant == nil {
		return
	}
	p := s.participant.WithVote(v)
	s.participant = &p
	s.persistLocked()
}

// ClearVote сбрасывает голос в локальном снимке после сброса в комнате.
func (s *Store) ClearVote() {
	s.SetVote(domain.NoVote)
}

func (s *Store) ClearParticipant() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.participant = nil
	s.roomID = ""
	s.kv.Remove(StorageKey)
}

func (s *Store) persistLocked() {
	raw, err := json.Marshal(snapshot{Participant: s.participant, RoomID: s.roomID})
	if err != nil {
		slog.Warn("identity: encode snapshot failed", "err", err)
		return
	}
	s.kv.Set(StorageKey, string(raw))
}
