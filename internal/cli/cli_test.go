package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/cwrk-planet/poker-service/internal/docstore/memory"
	"github.com/cwrk-planet/poker-service/internal/domain"
	"github.com/cwrk-planet/poker-service/internal/identity"
	"github.com/cwrk-planet/poker-service/internal/kv"
	"github.com/cwrk-planet/poker-service/internal/roomview"
	"github.com/cwrk-planet/poker-service/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	opts, err := ParseArgs([]string{"-room", "team", "-deck", "classic", "join", "Ann", "Lee"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "team", opts.RoomID)
	assert.Equal(t, "classic", opts.Deck)
	assert.Equal(t, "join", opts.Command)
	assert.Equal(t, []string{"Ann", "Lee"}, opts.Args)

	var stderr bytes.Buffer
	_, err = ParseArgs(nil, &stderr)
	assert.ErrorIs(t, err, ErrUsage)
	assert.Contains(t, stderr.String(), "usage: poker")

	_, err = ParseArgs([]string{"-nope"}, io.Discard)
	assert.Error(t, err)

	_, err = ParseArgs([]string{"-deck", "tshirt", "cards"}, io.Discard)
	assert.ErrorContains(t, err, "unknown deck")
}

func newApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	svc := service.NewRoomService(memory.New())
	require.NoError(t, svc.EnsureRoom(context.Background(), "r1"))

	var out bytes.Buffer
	return &App{
		View:   roomview.New(svc, identity.New(kv.NewMemory()), "classic"),
		Rooms:  svc,
		RoomID: "r1",
		Out:    &out,
	}, &out
}

func TestApp_Flow(t *testing.T) {
	app, out := newApp(t)
	ctx := context.Background()

	assert.ErrorIs(t, app.Run(ctx, "vote", []string{"5"}), domain.ErrNoIdentity)

	require.NoError(t, app.Run(ctx, "join", []string{"Ann"}))
	assert.Contains(t, out.String(), "joined r1 as Ann")

	require.NoError(t, app.Run(ctx, "vote", []string{"1/2"}))
	assert.ErrorIs(t, app.Run(ctx, "vote", []string{"100"}), domain.ErrUnknownCard)

	out.Reset()
	require.NoError(t, app.Run(ctx, "show", nil))
	assert.Contains(t, out.String(), "room r1 (hidden)")
	assert.Contains(t, out.String(), "✓")

	require.NoError(t, app.Run(ctx, "reveal", nil))
	out.Reset()
	require.NoError(t, app.Run(ctx, "show", nil))
	assert.Contains(t, out.String(), "(revealed)")
	assert.Contains(t, out.String(), "1/2")

	require.NoError(t, app.Run(ctx, "reset", nil))
	out.Reset()
	require.NoError(t, app.Run(ctx, "show", nil))
	assert.Contains(t, out.String(), "(hidden)")
	assert.NotContains(t, out.String(), "✓")

	require.NoError(t, app.Run(ctx, "clear", nil))
	require.NoError(t, app.Run(ctx, "leave", nil))
	assert.ErrorIs(t, app.Run(ctx, "reveal", nil), domain.ErrNoIdentity)
}

func TestApp_CardsAndUsage(t *testing.T) {
	app, out := newApp(t)
	ctx := context.Background()

	require.NoError(t, app.Run(ctx, "cards", nil))
	assert.Equal(t, "classic: 0 1/2 1 2 3 5 8 13 21 ? ☕\n", out.String())

	assert.ErrorIs(t, app.Run(ctx, "dance", nil), ErrUsage)
	assert.ErrorIs(t, app.Run(ctx, "join", nil), ErrUsage)
}

func TestApp_Watch(t *testing.T) {
	app, _ := newApp(t)
	var out syncBuffer
	app.Out = &out
	require.NoError(t, app.Run(context.Background(), "join", []string{"Ann"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx, "watch", nil) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "* ") && strings.Contains(out.String(), "Ann")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestRender(t *testing.T) {
	me := domain.Participant{ID: "a", Name: "Ann", Vote: domain.ParseVote("8")}
	st := roomview.State{
		Room: domain.Room{ID: "r1", Revealed: true},
		Sorted: []domain.Participant{
			me,
			{ID: "b", Name: "Bob", Vote: domain.ParseVote("?")},
			{ID: "c", Name: "Cid"},
		},
		Me: &me,
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, st))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "room r1 (revealed)", lines[0])
	assert.Equal(t, "*  Ann  8", lines[1])
	assert.Equal(t, "   Bob  ?", lines[2])
	assert.Equal(t, "   Cid  -", lines[3])

	buf.Reset()
	require.NoError(t, Render(&buf, roomview.State{Err: context.DeadlineExceeded}))
	assert.Equal(t, "error: context deadline exceeded\n", buf.String())
}
