package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Participant: ID генерируется на клиенте при входе.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Vote Vote   `json:"vote"`
}

// NewParticipant создаёт участника со свежим UUID и обрезанным именем.
func NewParticipant(name string) (Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Participant{}, ErrEmptyName
	}
	return Participant{ID: uuid.NewString(), Name: name}, nil
}

// WithVote возвращает копию участника с заданным голосом.
func (p Participant) WithVote(v Vote) Participant {
	p.Vote = v
	return p
}
