package http

import "github.com/cwrk-planet/poker-service/internal/domain"

type ErrorResponse struct {
	Error string `json:"error"`
}

type AddParticipantRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type UpdateVoteRequest struct {
	Name string      `json:"name"`
	Vote domain.Vote `json:"vote"`
}

type RoomResponse struct {
	domain.Room
	// Sorted — участники в порядке показа (после раскрытия — по голосам).
	Sorted []domain.Participant `json:"sorted"`
}

type CardsResponse struct {
	Deck  string     `json:"deck"`
	Decks []string   `json:"decks"`
	Cards []CardItem `json:"cards"`
}

type CardItem struct {
	ID  string `json:"id"`
	SVG string `json:"svg,omitempty"`
}
