package ws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cwrk-planet/poker-service/internal/domain"
	"github.com/cwrk-planet/poker-service/internal/metrics"
	"github.com/cwrk-planet/poker-service/pkg/logger"
)

// RoomSource даёт живую подписку на комнату.
type RoomSource interface {
	GetRoom(ctx context.Context, roomID string, fn func(domain.Room)) error
}

type Conn interface {
	Send(msg Message) error
	Close() error
	RoomID() string
}

// roomSub: одна подписка на комнату, общая для всех её соединений.
type roomSub struct {
	conns  map[Conn]struct{}
	cancel context.CancelFunc
	last   *Message
}

// Hub держит соединения по комнатам. Подписка на комнату стартует с первым
// соединением и отменяется с последним.
type Hub struct {
	mu    sync.Mutex
	src   RoomSource
	base  context.Context
	rooms map[string]*roomSub // roomID -> подписка и соединения
}

// NewHub: ctx ограничивает жизнь всех подписок хаба.
func NewHub(ctx context.Context, src RoomSource) *Hub {
	return &Hub{
		src:   src,
		base:  ctx,
		rooms: make(map[string]*roomSub),
	}
}

// Add регистрирует соединение и досылает ему последнее известное состояние.
// Отправка идёт без блокировки хаба: медленный клиент не держит остальные комнаты.
func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	roomID := c.RoomID()
	sub, ok := h.rooms[roomID]
	if !ok {
		ctx, cancel := context.WithCancel(h.base)
		sub = &roomSub{conns: make(map[Conn]struct{}), cancel: cancel}
		h.rooms[roomID] = sub
		metrics.SetRoomSubscriptions(len(h.rooms))
		go h.follow(ctx, roomID, sub)
	}
	sub.conns[c] = struct{}{}
	last := sub.last
	h.mu.Unlock()

	// пока шла отправка, могло прийти новое состояние: досылаем,
	// чтобы последним у клиента оказалось актуальное
	for last != nil {
		_ = c.Send(*last)

		h.mu.Lock()
		next := sub.last
		h.mu.Unlock()
		if next == last {
			return
		}
		last = next
	}
}

func (h *Hub) Remove(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	roomID := c.RoomID()
	sub, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(sub.conns, c)
	if len(sub.conns) == 0 {
		sub.cancel()
		delete(h.rooms, roomID)
		metrics.SetRoomSubscriptions(len(h.rooms))
	}
}

// Broadcast рассылает сообщение всем соединениям комнаты.
func (h *Hub) Broadcast(roomID string, msg Message) {
	h.mu.Lock()
	sub, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	conns := make([]Conn, 0, len(sub.conns))
	for c := range sub.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Send(msg) // best-effort
	}
}

// Rooms возвращает число комнат с активной подпиской.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.rooms)
}

func (h *Hub) follow(ctx context.Context, roomID string, sub *roomSub) {
	err := h.src.GetRoom(ctx, roomID, func(room domain.Room) {
		msg := roomMessage(room)

		h.mu.Lock()
		// подписка могла смениться, пока этот вызов ждал блокировку
		if h.rooms[roomID] != sub {
			h.mu.Unlock()
			return
		}
		sub.last = &msg
		h.mu.Unlock()

		h.Broadcast(roomID, msg)
	})
	if err == nil || ctx.Err() != nil {
		return
	}

	slog.Error("ws room subscription failed", logger.Room(roomID), logger.Err(err))

	// подписка мертва: соединения закрываются, клиенты переподключатся
	h.mu.Lock()
	conns := make([]Conn, 0, len(sub.conns))
	for c := range sub.conns {
		conns = append(conns, c)
	}
	if h.rooms[roomID] == sub {
		delete(h.rooms, roomID)
		metrics.SetRoomSubscriptions(len(h.rooms))
	}
	h.mu.Unlock()
	sub.cancel()

	msg := Message{Type: TypeError, Payload: ErrorPayload{RoomID: roomID, Message: err.Error()}}
	for _, c := range conns {
		_ = c.Send(msg)
		_ = c.Close()
	}
}
