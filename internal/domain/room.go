package domain

import "strings"

// DefaultRoomID используется, когда комната не указана.
const DefaultRoomID = "main-room"

// Room — объединённое представление документа комнаты и коллекции участников.
type Room struct {
	ID           string        `json:"id"`
	Revealed     bool          `json:"revealed"`
	LastResetAt  *int64        `json:"lastResetAt"`
	Participants []Participant `json:"participants"`
}

// ResetMarker возвращает lastResetAt, 0 если сброса ещё не было.
func (r Room) ResetMarker() int64 {
	if r.LastResetAt == nil {
		return 0
	}
	return *r.LastResetAt
}

// Participant ищет участника по id.
func (r Room) Participant(id string) (Participant, bool) {
	for _, p := range r.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// ValidID проверяет, что id годится как один сегмент пути документа.
func ValidID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && !strings.Contains(id, "/")
}
