// Package cards — каталог карт для оценки.
package cards

import (
	"fmt"
	"slices"
)

const (
	DeckClassic   = "classic"
	DeckFibonacci = "fibonacci"

	DefaultDeck = DeckFibonacci

	Unsure = "?"
	Coffee = "☕"
)

// Card: Icon заполнен только у особых карт (inline SVG).
type Card struct {
	ID   string `json:"id"`
	Icon string `json:"svg,omitempty"`
}

const iconUnsure = `<svg xmlns="http://www.w3.org/2000/svg" width="1em" height="1em" viewBox="0 0 24 24" fill="none" stroke="currentColor" stroke-width="2" stroke-linecap="round" stroke-linejoin="round"><circle cx="12" cy="12" r="10"/><path d="M9.09 9a3 3 0 0 1 5.83 1c0 2-3 3-3 3"/><path d="M12 17h.01"/></svg>`

const iconCoffee = `<svg xmlns="http://www.w3.org/2000/svg" width="1em" height="1em" viewBox="0 0 24 24" fill="none" stroke="currentColor" stroke-width="2" stroke-linecap="round" stroke-linejoin="round"><path d="M10 2v2"/><path d="M14 2v2"/><path d="M16 8a1 1 0 0 1 1 1v8a4 4 0 0 1-4 4H7a4 4 0 0 1-4-4V9a1 1 0 0 1 1-1h14a4 4 0 1 1 0 8h-1"/><path d="M6 2v2"/></svg>`

var icons = map[string]string{
	Unsure: iconUnsure,
	Coffee: iconCoffee,
}

var decks = map[string][]string{
	DeckClassic:   {"0", "1/2", "1", "2", "3", "5", "8", "13", "21", Unsure, Coffee},
	DeckFibonacci: {Unsure, Coffee, "0", "0.5", "1", "2", "3", "5", "8", "13", "20", "40", "100"},
}

// Deck возвращает карты колоды в порядке показа.
func Deck(name string) ([]Card, error) {
	ids, ok := decks[name]
	if !ok {
		return nil, fmt.Errorf("unknown deck %q", name)
	}
	out := make([]Card, 0, len(ids))
	for _, id := range ids {
		out = append(out, Card{ID: id, Icon: icons[id]})
	}
	return out, nil
}

// Tokens возвращает идентификаторы карт колоды.
func Tokens(name string) []string {
	return slices.Clone(decks[name])
}

// Decks возвращает имена колод по алфавиту.
func Decks() []string {
	names := make([]string, 0, len(decks))
	for n := range decks {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Contains сообщает, есть ли карта в колоде.
func Contains(deck, id string) bool {
	return slices.Contains(decks[deck], id)
}

// Icon возвращает SVG карты, если он есть.
func Icon(id string) (string, bool) {
	svg, ok := icons[id]
	return svg, ok
}
