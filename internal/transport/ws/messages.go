package ws

import (
	"github.com/cwrk-planet/poker-service/internal/domain"
	"github.com/cwrk-planet/poker-service/internal/roomview"
)

// Типы событий, которые уходят в WS
const (
	TypeRoom  = "room"  // собранное состояние комнаты
	TypeError = "error" // подписка на комнату упала
)

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type RoomPayload struct {
	domain.Room
	Sorted []domain.Participant `json:"sorted"`
}

type ErrorPayload struct {
	RoomID  string `json:"room_id"`
	Message string `json:"message"`
}

func roomMessage(room domain.Room) Message {
	if room.Participants == nil {
		room.Participants = []domain.Participant{}
	}
	return Message{
		Type: TypeRoom,
		Payload: RoomPayload{
			Room:   room,
			Sorted: roomview.SortParticipants(room.Participants, room.Revealed),
		},
	}
}
