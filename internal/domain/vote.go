package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type VoteKind uint8

const (
	VoteNone VoteKind = iota
	VoteNumeric
	VoteToken
)

// Vote — выбранная карта участника: число, произвольный токен или отсутствие голоса.
// Разбирается один раз при получении из хранилища.
type Vote struct {
	kind  VoteKind
	raw   string
	value float64
}

// NoVote: ещё не голосовал или голоса сброшены.
var NoVote = Vote{}

// ParseVote строит голос из токена карты. Пустой токен даёт NoVote.
func ParseVote(token string) Vote {
	if token == "" {
		return NoVote
	}
	if f, ok := parseNumeric(token); ok {
		return Vote{kind: VoteNumeric, raw: token, value: f}
	}
	return Vote{kind: VoteToken, raw: token}
}

// VoteFromPtr: nil означает отсутствие голоса.
func VoteFromPtr(token *string) Vote {
	if token == nil {
		return NoVote
	}
	return ParseVote(*token)
}

func (v Vote) Kind() VoteKind { return v.kind }

func (v Vote) IsNone() bool { return v.kind == VoteNone }

// Token возвращает исходный токен карты ("" для отсутствия голоса).
func (v Vote) Token() string { return v.raw }

// Numeric возвращает числовое значение, если голос числовой.
func (v Vote) Numeric() (float64, bool) {
	return v.value, v.kind == VoteNumeric
}

// Ptr отдаёт голос для хранилища, nil для NoVote.
func (v Vote) Ptr() *string {
	if v.kind == VoteNone {
		return nil
	}
	s := v.raw
	return &s
}

func (v Vote) String() string {
	if v.kind == VoteNone {
		return "-"
	}
	return v.raw
}

func (v Vote) MarshalJSON() ([]byte, error) {
	if v.kind == VoteNone {
		return []byte("null"), nil
	}
	return json.Marshal(v.raw)
}

func (v *Vote) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = NoVote
		return nil
	}
	// в хранилище мог попасть и числовой голос без кавычек
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		s = n.String()
	}
	*v = ParseVote(s)
	return nil
}

// parseNumeric принимает конечные десятичные числа и простые дроби вида "1/2".
func parseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, !math.IsInf(f, 0) && !math.IsNaN(f)
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, false
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
	if err != nil || d == 0 {
		return 0, false
	}
	f := n / d
	return f, !math.IsInf(f, 0) && !math.IsNaN(f)
}
