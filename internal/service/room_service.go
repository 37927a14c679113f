package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/poker-service/internal/docstore"
	"github.com/cwrk-planet/poker-service/internal/domain"
	"github.com/cwrk-planet/poker-service/internal/metrics"
	"github.com/cwrk-planet/poker-service/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/cwrk-planet/poker-service/internal/service"

// поля документа комнаты и участника
const (
	fieldRevealed    = "revealed"
	fieldLastResetAt = "lastResetAt"
	fieldID          = "id"
	fieldName        = "name"
	fieldVote        = "vote"
)

// RoomService собирает живое представление комнаты из документа комнаты и
// коллекции участников и выполняет все изменения комнаты транзакциями или
// пакетами хранилища.
type RoomService struct {
	store  docstore.Store
	now    func() time.Time
	tracer trace.Tracer
}

func NewRoomService(store docstore.Store) *RoomService {
	return &RoomService{
		store:  store,
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
}

// SetClock подменяет источник времени (для тестов).
func (s *RoomService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func roomRef(roomID string) docstore.Ref {
	return docstore.Doc("rooms", roomID)
}

func participantsRef(roomID string) docstore.Ref {
	return docstore.Collection("rooms", roomID, "participants")
}

func participantRef(roomID, participantID string) docstore.Ref {
	return participantsRef(roomID).Child(participantID)
}

type roomDoc struct {
	Revealed    bool   `json:"revealed"`
	LastResetAt *int64 `json:"lastResetAt"`
}

// GetRoom подписывается на комнату и вызывает fn на каждое изменение любой
// из двух подписок, собирая последние известные значения обеих.
// Первое значение приходит, когда обе подписки выдали данные.
// Блокируется до отмены ctx (nil) или ошибки хранилища.
func (s *RoomService) GetRoom(ctx context.Context, roomID string, fn func(domain.Room)) error {
	if !domain.ValidID(roomID) {
		return fmt.Errorf("%w: room id %q", domain.ErrInvalidArgument, roomID)
	}

	var (
		mu        sync.Mutex
		meta      roomDoc
		parts     []domain.Participant
		haveMeta  bool
		haveParts bool
	)
	// вызывается под mu: fn никогда не выполняется конкурентно
	emit := func() {
		if !haveMeta || !haveParts {
			return
		}
		room := domain.Room{
			ID:           roomID,
			Revealed:     meta.Revealed,
			LastResetAt:  meta.LastResetAt,
			Participants: append([]domain.Participant(nil), parts...),
		}
		fn(room)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.store.Observe(gctx, roomRef(roomID), func(snap docstore.Snapshot) {
			var d roomDoc
			if snap.Exists {
				if err := snap.DataTo(&d); err != nil {
					slog.Warn("room decode failed", logger.Room(roomID), logger.Err(err))
					return
				}
			}
			mu.Lock()
			defer mu.Unlock()
			meta, haveMeta = d, true
			emit()
		})
	})
	g.Go(func() error {
		return s.store.ObserveCollection(gctx, participantsRef(roomID), func(snaps []docstore.Snapshot) {
			list := make([]domain.Participant, 0, len(snaps))
			for _, snap := range snaps {
				var p domain.Participant
				if err := snap.DataTo(&p); err != nil {
					slog.Warn("participant decode failed", logger.Room(roomID), "doc", snap.Ref.Path, logger.Err(err))
					continue
				}
				list = append(list, p)
			}
			mu.Lock()
			defer mu.Unlock()
			parts, haveParts = list, true
			emit()
		})
	})

	return g.Wait()
}

// Snapshot возвращает первое собранное значение комнаты.
func (s *RoomService) Snapshot(ctx context.Context, roomID string) (domain.Room, error) {
	var (
		out domain.Room
		got bool
	)
	err := s.instrument(ctx, "snapshot", roomID, func(ctx context.Context) error {
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		if err := s.GetRoom(subCtx, roomID, func(r domain.Room) {
			if !got {
				out, got = r, true
				cancel()
			}
		}); err != nil {
			return err
		}
		if !got {
			return ctx.Err()
		}
		return nil
	})
	return out, err
}

// EnsureRoom создаёт документ комнаты, если его нет.
func (s *RoomService) EnsureRoom(ctx context.Context, roomID string) error {
	return s.instrument(ctx, "ensure_room", roomID, func(ctx context.Context) error {
		if !domain.ValidID(roomID) {
			return fmt.Errorf("%w: room id %q", domain.ErrInvalidArgument, roomID)
		}
		ref := roomRef(roomID)
		return s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			snap, err := tx.Get(ctx, ref)
			if err != nil {
				return err
			}
			if snap.Exists {
				return nil
			}
			tx.Set(ref, docstore.Data{fieldRevealed: false, fieldLastResetAt: nil})
			return nil
		})
	})
}

// AddParticipant создаёт или перезаписывает документ участника.
// Комната должна существовать.
func (s *RoomService) AddParticipant(ctx context.Context, roomID string, p domain.Participant) error {
	return s.instrument(ctx, "add_participant", roomID, func(ctx context.Context) error {
		if err := validate(roomID, p); err != nil {
			return err
		}
		p, err := withCreationName(p)
		if err != nil {
			return err
		}
		rref, pref := roomRef(roomID), participantRef(roomID, p.ID)

		return s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			room, err := tx.Get(ctx, rref)
			if err != nil {
				return err
			}
			if !room.Exists {
				return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, roomID)
			}
			tx.Set(pref, participantData(p))
			return nil
		})
	})
}

// RemoveParticipant удаляет документ участника. Отсутствие комнаты или
// участника — не ошибка.
func (s *RoomService) RemoveParticipant(ctx context.Context, roomID string, p domain.Participant) error {
	return s.instrument(ctx, "remove_participant", roomID, func(ctx context.Context) error {
		if err := validate(roomID, p); err != nil {
			return err
		}
		rref, pref := roomRef(roomID), participantRef(roomID, p.ID)

		return s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			room, err := tx.Get(ctx, rref)
			if err != nil {
				return err
			}
			if !room.Exists {
				return nil
			}
			tx.Delete(pref)
			return nil
		})
	})
}

// UpdateVote меняет только голос существующего участника или заново создаёт
// документ участника с этим голосом (повторный вход после очистки).
func (s *RoomService) UpdateVote(ctx context.Context, roomID string, p domain.Participant, vote domain.Vote) error {
	return s.instrument(ctx, "update_vote", roomID, func(ctx context.Context) error {
		if err := validate(roomID, p); err != nil {
			return err
		}
		rref, pref := roomRef(roomID), participantRef(roomID, p.ID)

		return s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			room, err := tx.Get(ctx, rref)
			if err != nil {
				return err
			}
			if !room.Exists {
				return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, roomID)
			}
			doc, err := tx.Get(ctx, pref)
			if err != nil {
				return err
			}
			if doc.Exists {
				tx.Update(pref, docstore.Data{fieldVote: voteValue(vote)})
				return nil
			}
			np, err := withCreationName(p)
			if err != nil {
				return err
			}
			tx.Set(pref, participantData(np.WithVote(vote)))
			return nil
		})
	})
}

// ResetAllVotes обнуляет голоса пакетом, затем отдельной транзакцией снимает
// reveal и продвигает lastResetAt. Между двумя записями подписчик может
// увидеть голоса уже сброшенными, а метаданные комнаты ещё старыми.
func (s *RoomService) ResetAllVotes(ctx context.Context, roomID string) error {
	return s.instrument(ctx, "reset_votes", roomID, func(ctx context.Context) error {
		if !domain.ValidID(roomID) {
			return fmt.Errorf("%w: room id %q", domain.ErrInvalidArgument, roomID)
		}
		if err := s.clearVotes(ctx, roomID); err != nil {
			return fmt.Errorf("reset votes batch: %w", err)
		}

		return s.updateRoomMeta(ctx, roomID, func(prev docstore.Data) docstore.Data {
			ts := s.now().UnixMilli()
			// строго монотонно, даже если два сброса попали в одну миллисекунду
			if last, ok := toInt64(prev[fieldLastResetAt]); ok && ts <= last {
				ts = last + 1
			}
			return docstore.Data{fieldRevealed: false, fieldLastResetAt: ts}
		})
	})
}

// clearVotes обнуляет голоса всех участников одним пакетом. Если кто-то
// ушёл между чтением и коммитом, пакет целиком отклоняется: перечитываем
// список и пробуем снова.
func (s *RoomService) clearVotes(ctx context.Context, roomID string) error {
	var err error
	for range docstore.MaxTransactionAttempts {
		var snaps []docstore.Snapshot
		snaps, err = s.store.GetAll(ctx, participantsRef(roomID))
		if err != nil || len(snaps) == 0 {
			return err
		}
		b := s.store.Batch()
		for _, snap := range snaps {
			b.Update(snap.Ref, docstore.Data{fieldVote: nil})
		}
		err = b.Commit(ctx)
		if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		slog.DebugContext(ctx, "reset votes: participant left, retrying", logger.Room(roomID))
	}
	return err
}

// ClearParticipants удаляет всех участников пакетом, затем снимает reveal.
func (s *RoomService) ClearParticipants(ctx context.Context, roomID string) error {
	return s.instrument(ctx, "clear_participants", roomID, func(ctx context.Context) error {
		if !domain.ValidID(roomID) {
			return fmt.Errorf("%w: room id %q", domain.ErrInvalidArgument, roomID)
		}
		snaps, err := s.store.GetAll(ctx, participantsRef(roomID))
		if err != nil {
			return err
		}
		if len(snaps) > 0 {
			b := s.store.Batch()
			for _, snap := range snaps {
				b.Delete(snap.Ref)
			}
			if err := b.Commit(ctx); err != nil {
				return fmt.Errorf("clear participants batch: %w", err)
			}
		}

		return s.updateRoomMeta(ctx, roomID, func(docstore.Data) docstore.Data {
			return docstore.Data{fieldRevealed: false}
		})
	})
}

// ToggleReveal переворачивает revealed в одной транзакции (чтение и запись),
// так что конкурентные переключения не теряются.
func (s *RoomService) ToggleReveal(ctx context.Context, roomID string) error {
	return s.instrument(ctx, "toggle_reveal", roomID, func(ctx context.Context) error {
		if !domain.ValidID(roomID) {
			return fmt.Errorf("%w: room id %q", domain.ErrInvalidArgument, roomID)
		}
		return s.updateRoomMeta(ctx, roomID, func(prev docstore.Data) docstore.Data {
			revealed, _ := prev[fieldRevealed].(bool)
			return docstore.Data{fieldRevealed: !revealed}
		})
	})
}

// updateRoomMeta — транзакционное обновление документа комнаты; если комнаты
// уже нет, ничего не делает. Повторный вызов безопасен.
func (s *RoomService) updateRoomMeta(ctx context.Context, roomID string, patch func(prev docstore.Data) docstore.Data) error {
	ref := roomRef(roomID)
	return s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		if !snap.Exists {
			return nil
		}
		tx.Update(ref, patch(snap.Data))
		return nil
	})
}

// instrument оборачивает операцию в span, метрики и лог ошибки.
func (s *RoomService) instrument(ctx context.Context, op, roomID string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "RoomService."+op,
		trace.WithAttributes(attribute.String("room.id", roomID)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.ObserveOperation(op, start, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.DebugContext(ctx, "room operation failed", logger.Op(op), logger.Room(roomID), logger.Err(err))
	}
	return err
}

// -------- helpers --------

func validate(roomID string, p domain.Participant) error {
	if !domain.ValidID(roomID) {
		return fmt.Errorf("%w: room id %q", domain.ErrInvalidArgument, roomID)
	}
	if !domain.ValidID(p.ID) {
		return fmt.Errorf("%w: participant id %q", domain.ErrInvalidArgument, p.ID)
	}
	return nil
}

// withCreationName — имя обязательно, когда документ участника создаётся.
func withCreationName(p domain.Participant) (domain.Participant, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return domain.Participant{}, fmt.Errorf("%w: participant %s", domain.ErrEmptyName, p.ID)
	}
	return p, nil
}

func participantData(p domain.Participant) docstore.Data {
	return docstore.Data{
		fieldID:   p.ID,
		fieldName: p.Name,
		fieldVote: voteValue(p.Vote),
	}
}

func voteValue(v domain.Vote) any {
	if v.IsNone() {
		return nil
	}
	return v.Token()
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
