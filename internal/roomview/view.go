// Package roomview — клиентское представление комнаты: живое состояние,
// сверка со сбросами, локальный выбор карты до прихода подтверждения,
// вход и выход участника.
package roomview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cwrk-planet/poker-service/internal/cards"
	"github.com/cwrk-planet/poker-service/internal/domain"
	"github.com/cwrk-planet/poker-service/internal/identity"
	"github.com/cwrk-planet/poker-service/pkg/logger"

	"github.com/google/uuid"
)

// RoomSync: операции синхронизации, которые нужны представлению.
type RoomSync interface {
	GetRoom(ctx context.Context, roomID string, fn func(domain.Room)) error
	AddParticipant(ctx context.Context, roomID string, p domain.Participant) error
	RemoveParticipant(ctx context.Context, roomID string, p domain.Participant) error
	UpdateVote(ctx context.Context, roomID string, p domain.Participant, vote domain.Vote) error
	ToggleReveal(ctx context.Context, roomID string) error
	ResetAllVotes(ctx context.Context, roomID string) error
	ClearParticipants(ctx context.Context, roomID string) error
}

// State показывается пользователю.
type State struct {
	Room    domain.Room
	Sorted  []domain.Participant
	Loading bool
	Err     error
	// Me — текущий участник с учётом локального выбора; nil без идентичности.
	Me *domain.Participant
}

type View struct {
	rooms RoomSync
	ident *identity.Store
	deck  string

	mu            sync.Mutex
	room          domain.Room
	loading       bool
	err           error
	lastResetSeen int64
	pending       map[string]domain.Vote
	onChange      func(State)
}

// New собирает представление. Пустая колода заменяется колодой по умолчанию.
func New(rooms RoomSync, ident *identity.Store, deck string) *View {
	if deck == "" {
		deck = cards.DefaultDeck
	}
	return &View{
		rooms:   rooms,
		ident:   ident,
		deck:    deck,
		pending: make(map[string]domain.Vote),
	}
}

// OnChange задаёт обработчик изменений состояния. Вызывается последовательно
// под внутренней блокировкой: обращаться из него к View нельзя.
func (v *View) OnChange(fn func(State)) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

func (v *View) Deck() string { return v.deck }

// CanEnterRoom сообщает, сохранены ли участник и комната.
func (v *View) CanEnterRoom() bool {
	_, _, ok := v.ident.Current()
	return ok
}

// Run подписывается на комнату из идентичности и держит состояние актуальным
// до отмены ctx. Ошибка хранилища попадает в State.Err и возвращается,
// повторной подписки нет.
func (v *View) Run(ctx context.Context) error {
	_, roomID, ok := v.ident.Current()
	if !ok {
		return domain.ErrNoIdentity
	}

	v.mu.Lock()
	v.loading = true
	v.err = nil
	v.room = domain.Room{ID: roomID}
	v.publishLocked()
	v.mu.Unlock()

	err := v.rooms.GetRoom(ctx, roomID, v.apply)
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}

	v.mu.Lock()
	v.loading = false
	v.err = err
	v.publishLocked()
	v.mu.Unlock()

	slog.Error("room subscription failed", logger.Room(roomID), logger.Err(err))
	return err
}

// apply сверяет состояние с очередным значением комнаты из хранилища.
func (v *View) apply(room domain.Room) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if marker := room.ResetMarker(); room.LastResetAt != nil && marker > v.lastResetSeen {
		v.lastResetSeen = marker
		clear(v.pending)
		v.ident.ClearVote()
	} else {
		for _, p := range room.Participants {
			delete(v.pending, p.ID)
		}
	}

	v.room = room
	v.loading = false
	v.err = nil
	v.publishLocked()
}

// State возвращает текущее состояние.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.stateLocked()
}

func (v *View) stateLocked() State {
	room := v.room
	room.Participants = make([]domain.Participant, len(v.room.Participants))
	for i, p := range v.room.Participants {
		if vote, ok := v.pending[p.ID]; ok {
			p.Vote = vote
		}
		room.Participants[i] = p
	}

	st := State{
		Room:    room,
		Sorted:  SortParticipants(room.Participants, room.Revealed),
		Loading: v.loading,
		Err:     v.err,
	}

	if me, ok := v.ident.Participant(); ok {
		if p, found := room.Participant(me.ID); found {
			me = p
		} else if vote, ok := v.pending[me.ID]; ok {
			me.Vote = vote
		}
		st.Me = &me
	}
	return st
}

func (v *View) publishLocked() {
	if v.onChange != nil {
		v.onChange(v.stateLocked())
	}
}

// SelectCard отправляет голос текущего участника и сразу показывает его локально.
// Без идентичности ничего не делает.
func (v *View) SelectCard(ctx context.Context, card string) error {
	p, roomID, ok := v.ident.Current()
	if !ok {
		return nil
	}
	if !cards.Contains(v.deck, card) {
		return fmt.Errorf("%w: %q", domain.ErrUnknownCard, card)
	}

	v.mu.Lock()
	seen := v.lastResetSeen
	v.mu.Unlock()

	vote := domain.ParseVote(card)
	if err := v.rooms.UpdateVote(ctx, roomID, p, vote); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	// сброс пришёл, пока голос писался: голос уже обнулён в комнате
	if v.lastResetSeen != seen {
		return nil
	}
	v.ident.SetVote(vote)
	v.pending[p.ID] = vote
	v.publishLocked()
	return nil
}

func (v *View) ToggleReveal(ctx context.Context) error {
	return v.withRoom(ctx, v.rooms.ToggleReveal)
}

// ClearVotes сбрасывает голоса всех участников комнаты.
func (v *View) ClearVotes(ctx context.Context) error {
	return v.withRoom(ctx, v.rooms.ResetAllVotes)
}

func (v *View) ClearParticipants(ctx context.Context) error {
	return v.withRoom(ctx, v.rooms.ClearParticipants)
}

func (v *View) withRoom(ctx context.Context, op func(ctx context.Context, roomID string) error) error {
	roomID := v.ident.RoomID()
	if roomID == "" {
		return domain.ErrNoIdentity
	}
	return op(ctx, roomID)
}

// Join добавляет участника в комнату и запоминает его. Сохранённый id
// переиспользуется, чтобы повторный вход не плодил участников.
func (v *View) Join(ctx context.Context, roomID, name string) (domain.Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Participant{}, domain.ErrEmptyName
	}
	if roomID == "" {
		roomID = domain.DefaultRoomID
	}

	id := uuid.NewString()
	if prev, ok := v.ident.Participant(); ok {
		id = prev.ID
	}
	p := domain.Participant{ID: id, Name: name}

	if err := v.rooms.AddParticipant(ctx, roomID, p); err != nil {
		return domain.Participant{}, err
	}
	v.ident.SetParticipant(p, roomID)
	return p, nil
}

// Leave убирает участника из комнаты и забывает идентичность.
// Идентичность забывается, только если удаление прошло.
func (v *View) Leave(ctx context.Context) error {
	p, roomID, ok := v.ident.Current()
	if ok {
		if err := v.rooms.RemoveParticipant(ctx, roomID, p); err != nil {
			return err
		}
	}
	v.ident.ClearParticipant()

	v.mu.Lock()
	clear(v.pending)
	v.mu.Unlock()
	return nil
}
