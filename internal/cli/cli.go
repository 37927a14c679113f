// Package cli — консольный клиент комнаты поверх roomview.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/cwrk-planet/poker-service/internal/cards"
	"github.com/cwrk-planet/poker-service/internal/domain"
	"github.com/cwrk-planet/poker-service/internal/roomview"
)

const usage = `usage: poker [flags] <command> [args]

commands:
  join <name>   войти в комнату (или переименоваться)
  vote <card>   выбрать карту
  reveal        показать/скрыть голоса
  reset         сбросить все голоса
  clear         удалить всех участников
  leave         выйти из комнаты
  show          текущее состояние комнаты
  watch         следить за комнатой до Ctrl+C
  cards         карты колоды
`

var ErrUsage = errors.New("usage")

// Options — флаги командной строки. Пустые значения берутся из конфига.
type Options struct {
	RoomID string
	Deck   string
	KVPath string

	Command string
	Args    []string
}

func ParseArgs(args []string, stderr io.Writer) (Options, error) {
	var opts Options

	fs := flag.NewFlagSet("poker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fmt.Fprintln(stderr, "\nflags:")
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.RoomID, "room", "", "room id (default from config)")
	fs.StringVar(&opts.Deck, "deck", "", "card deck: "+strings.Join(cards.Decks(), "|"))
	fs.StringVar(&opts.KVPath, "kv", "", "local identity file")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	if opts.Deck != "" && !slices.Contains(cards.Decks(), opts.Deck) {
		return Options{}, fmt.Errorf("unknown deck %q", opts.Deck)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return Options{}, ErrUsage
	}
	opts.Command = fs.Arg(0)
	opts.Args = fs.Args()[1:]
	return opts, nil
}

// Rooms читает комнату один раз для show.
type Rooms interface {
	Snapshot(ctx context.Context, roomID string) (domain.Room, error)
}

type App struct {
	View   *roomview.View
	Rooms  Rooms
	RoomID string
	Out    io.Writer
}

func (a *App) Run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "join":
		if len(args) == 0 {
			return fmt.Errorf("%w: join <name>", ErrUsage)
		}
		p, err := a.View.Join(ctx, a.RoomID, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "joined %s as %s (%s)\n", a.RoomID, p.Name, p.ID)
		return nil

	case "vote":
		if len(args) != 1 {
			return fmt.Errorf("%w: vote <card>", ErrUsage)
		}
		if !a.View.CanEnterRoom() {
			return domain.ErrNoIdentity
		}
		if err := a.View.SelectCard(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "voted %s\n", args[0])
		return nil

	case "reveal":
		return a.View.ToggleReveal(ctx)
	case "reset":
		return a.View.ClearVotes(ctx)
	case "clear":
		return a.View.ClearParticipants(ctx)

	case "leave":
		if err := a.View.Leave(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.Out, "left")
		return nil

	case "show":
		room, err := a.Rooms.Snapshot(ctx, a.RoomID)
		if err != nil {
			return err
		}
		return Render(a.Out, roomview.State{
			Room:   room,
			Sorted: roomview.SortParticipants(room.Participants, room.Revealed),
		})

	case "watch":
		if !a.View.CanEnterRoom() {
			return domain.ErrNoIdentity
		}
		a.View.OnChange(func(st roomview.State) {
			if st.Loading {
				return
			}
			fmt.Fprintln(a.Out, strings.Repeat("-", 32))
			_ = Render(a.Out, st)
		})
		return a.View.Run(ctx)

	case "cards":
		list, err := cards.Deck(a.View.Deck())
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(list))
		for _, c := range list {
			ids = append(ids, c.ID)
		}
		fmt.Fprintf(a.Out, "%s: %s\n", a.View.Deck(), strings.Join(ids, " "))
		return nil

	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

// Render печатает комнату таблицей. Пока голоса скрыты, видно только,
// кто уже проголосовал.
func Render(w io.Writer, st roomview.State) error {
	if st.Err != nil {
		_, err := fmt.Fprintf(w, "error: %v\n", st.Err)
		return err
	}

	state := "hidden"
	if st.Room.Revealed {
		state = "revealed"
	}
	fmt.Fprintf(w, "room %s (%s)\n", st.Room.ID, state)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, p := range st.Sorted {
		vote := p.Vote.String()
		if !st.Room.Revealed && !p.Vote.IsNone() {
			vote = "✓"
		}
		marker := " "
		if st.Me != nil && st.Me.ID == p.ID {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", marker, p.Name, vote)
	}
	return tw.Flush()
}
