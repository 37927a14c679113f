package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cwrk-planet/poker-service/internal/docstore/memory"
	"github.com/cwrk-planet/poker-service/internal/domain"
	"github.com/cwrk-planet/poker-service/internal/service"
	httpmw "github.com/cwrk-planet/poker-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/poker-service/internal/transport/ws"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *service.RoomService) {
	t.Helper()
	svc := service.NewRoomService(memory.New())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := NewHandler(svc, "classic")
	router := NewRouter(h, ws.NewServer(ws.NewHub(ctx, svc)), RouterConfig{})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, svc
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRoomLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, srv, http.MethodPut, "/rooms/r1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	room := decode[RoomResponse](t, resp)
	assert.Equal(t, "r1", room.ID)
	assert.False(t, room.Revealed)
	assert.Empty(t, room.Participants)

	resp = do(t, srv, http.MethodPost, "/rooms/r1/participants", AddParticipantRequest{ID: "a", Name: " Ann "})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	p := decode[domain.Participant](t, resp)
	assert.Equal(t, "a", p.ID)
	assert.Equal(t, "Ann", p.Name)

	resp = do(t, srv, http.MethodPost, "/rooms/r1/participants", AddParticipantRequest{Name: "Bob"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	bob := decode[domain.Participant](t, resp)
	assert.NotEmpty(t, bob.ID)

	resp = do(t, srv, http.MethodPut, "/rooms/r1/participants/a/vote", map[string]any{"name": "Ann", "vote": "3"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, srv, http.MethodPut, "/rooms/r1/participants/"+bob.ID+"/vote", map[string]any{"name": "Bob", "vote": "13"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/rooms/r1/reveal", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	room = decode[RoomResponse](t, do(t, srv, http.MethodGet, "/rooms/r1", nil))
	assert.True(t, room.Revealed)
	require.Len(t, room.Sorted, 2)
	assert.Equal(t, bob.ID, room.Sorted[0].ID)
	assert.Equal(t, "a", room.Sorted[1].ID)

	resp = do(t, srv, http.MethodPost, "/rooms/r1/reset", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	room = decode[RoomResponse](t, do(t, srv, http.MethodGet, "/rooms/r1", nil))
	assert.False(t, room.Revealed)
	assert.NotNil(t, room.LastResetAt)
	for _, p := range room.Participants {
		assert.True(t, p.Vote.IsNone(), p.ID)
	}

	resp = do(t, srv, http.MethodDelete, "/rooms/r1/participants/a", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	room = decode[RoomResponse](t, do(t, srv, http.MethodGet, "/rooms/r1", nil))
	require.Len(t, room.Participants, 1)

	resp = do(t, srv, http.MethodDelete, "/rooms/r1/participants", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	room = decode[RoomResponse](t, do(t, srv, http.MethodGet, "/rooms/r1", nil))
	assert.Empty(t, room.Participants)
}

func TestErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, srv, http.MethodPut, "/rooms/r1", nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"add to missing room", http.MethodPost, "/rooms/nope/participants", AddParticipantRequest{Name: "Ann"}, http.StatusNotFound},
		{"vote in missing room", http.MethodPut, "/rooms/nope/participants/a/vote", map[string]any{"name": "A", "vote": "1"}, http.StatusNotFound},
		{"empty name", http.MethodPost, "/rooms/r1/participants", AddParticipantRequest{Name: "  "}, http.StatusBadRequest},
		{"card outside deck", http.MethodPut, "/rooms/r1/participants/a/vote", map[string]any{"name": "A", "vote": "100"}, http.StatusBadRequest},
		{"vote recreating participant without name", http.MethodPut, "/rooms/r1/participants/ghost/vote", map[string]any{"vote": "5"}, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/rooms/r1/participants", "not an object", http.StatusBadRequest},
		{"unknown deck", http.MethodGet, "/cards?deck=tshirt", nil, http.StatusNotFound},
		{"toggle missing room is a no-op", http.MethodPost, "/rooms/nope/reveal", nil, http.StatusNoContent},
		{"reset missing room is a no-op", http.MethodPost, "/rooms/nope/reset", nil, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestVoteCanBeCleared(t *testing.T) {
	srv, svc := newTestServer(t)
	do(t, srv, http.MethodPut, "/rooms/r1", nil)
	do(t, srv, http.MethodPost, "/rooms/r1/participants", AddParticipantRequest{ID: "a", Name: "Ann"})
	do(t, srv, http.MethodPut, "/rooms/r1/participants/a/vote", map[string]any{"name": "Ann", "vote": "1/2"})

	resp := do(t, srv, http.MethodPut, "/rooms/r1/participants/a/vote", map[string]any{"name": "Ann", "vote": nil})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	room, err := svc.Snapshot(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, room.Participants, 1)
	assert.True(t, room.Participants[0].Vote.IsNone())
}

func TestCards(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := decode[CardsResponse](t, do(t, srv, http.MethodGet, "/cards", nil))
	assert.Equal(t, "classic", resp.Deck)
	assert.Contains(t, resp.Decks, "fibonacci")
	require.NotEmpty(t, resp.Cards)
	assert.Equal(t, "0", resp.Cards[0].ID)

	resp = decode[CardsResponse](t, do(t, srv, http.MethodGet, "/cards?deck=fibonacci", nil))
	assert.Equal(t, "?", resp.Cards[0].ID)
	assert.NotEmpty(t, resp.Cards[0].SVG)
}

func TestHealthAndRequestID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(httpmw.HeaderRequestID))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(httpmw.HeaderRequestID, "req-1")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-1", resp.Header.Get(httpmw.HeaderRequestID))

	resp = do(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "poker_http_requests_total")
}
