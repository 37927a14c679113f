package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cwrk-planet/poker-service/internal/cards"
	"github.com/cwrk-planet/poker-service/internal/docstore"
	"github.com/cwrk-planet/poker-service/internal/domain"
	"github.com/cwrk-planet/poker-service/internal/roomview"
	"github.com/cwrk-planet/poker-service/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	roomSvc *service.RoomService
	deck    string
}

func NewHandler(room *service.RoomService, deck string) *Handler {
	if deck == "" {
		deck = cards.DefaultDeck
	}
	return &Handler{
		roomSvc: room,
		deck:    deck,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", slog.Any("err", err))
	}
}

// writeError переводит ошибки домена и хранилища в HTTP-статус.
func writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "room not found"})
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrEmptyName),
		errors.Is(err, domain.ErrUnknownCard),
		errors.Is(err, docstore.ErrBadPath):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, docstore.ErrContention):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "room is busy, retry"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "request cancelled"})
	default:
		slog.ErrorContext(ctx, "handler."+op, slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return false
	}
	return true
}

// GET /cards?deck=
func (h *Handler) Cards(w http.ResponseWriter, r *http.Request) {
	deck := r.URL.Query().Get("deck")
	if deck == "" {
		deck = h.deck
	}
	list, err := cards.Deck(deck)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}

	resp := CardsResponse{Deck: deck, Decks: cards.Decks(), Cards: make([]CardItem, 0, len(list))}
	for _, c := range list {
		resp.Cards = append(resp.Cards, CardItem{ID: c.ID, SVG: c.Icon})
	}
	writeJSON(w, http.StatusOK, resp)
}

// PUT /rooms/{id}
func (h *Handler) EnsureRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if err := h.roomSvc.EnsureRoom(r.Context(), roomID); err != nil {
		writeError(r.Context(), w, "EnsureRoom", err)
		return
	}
	h.writeRoom(w, r, roomID)
}

// GET /rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	h.writeRoom(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) writeRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	room, err := h.roomSvc.Snapshot(r.Context(), roomID)
	if err != nil {
		writeError(r.Context(), w, "GetRoom", err)
		return
	}
	writeJSON(w, http.StatusOK, NewRoomResponse(room))
}

func NewRoomResponse(room domain.Room) RoomResponse {
	if room.Participants == nil {
		room.Participants = []domain.Participant{}
	}
	return RoomResponse{
		Room:   room,
		Sorted: roomview.SortParticipants(room.Participants, room.Revealed),
	}
}

// POST /rooms/{id}/participants
func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	var req AddParticipantRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(r.Context(), w, "AddParticipant", domain.ErrEmptyName)
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	p := domain.Participant{ID: id, Name: name}

	if err := h.roomSvc.AddParticipant(r.Context(), roomID, p); err != nil {
		writeError(r.Context(), w, "AddParticipant", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// DELETE /rooms/{id}/participants/{pid}
func (h *Handler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	p := domain.Participant{ID: chi.URLParam(r, "pid")}

	if err := h.roomSvc.RemoveParticipant(r.Context(), roomID, p); err != nil {
		writeError(r.Context(), w, "RemoveParticipant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /rooms/{id}/participants
func (h *Handler) ClearParticipants(w http.ResponseWriter, r *http.Request) {
	if err := h.roomSvc.ClearParticipants(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(r.Context(), w, "ClearParticipants", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /rooms/{id}/participants/{pid}/vote
func (h *Handler) UpdateVote(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	var req UpdateVoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Vote.IsNone() && !cards.Contains(h.deck, req.Vote.Token()) {
		writeError(r.Context(), w, "UpdateVote", domain.ErrUnknownCard)
		return
	}

	p := domain.Participant{ID: chi.URLParam(r, "pid"), Name: strings.TrimSpace(req.Name)}
	if err := h.roomSvc.UpdateVote(r.Context(), roomID, p, req.Vote); err != nil {
		writeError(r.Context(), w, "UpdateVote", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /rooms/{id}/reveal
func (h *Handler) ToggleReveal(w http.ResponseWriter, r *http.Request) {
	if err := h.roomSvc.ToggleReveal(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(r.Context(), w, "ToggleReveal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /rooms/{id}/reset
func (h *Handler) ResetAllVotes(w http.ResponseWriter, r *http.Request) {
	if err := h.roomSvc.ResetAllVotes(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(r.Context(), w, "ResetAllVotes", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
