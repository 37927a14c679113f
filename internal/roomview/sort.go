package roomview

import (
	"sort"

	"github.com/cwrk-planet/poker-service/internal/domain"
)

// SortParticipants возвращает новый срез. Пока голоса скрыты, порядок
// остаётся как в коллекции. После раскрытия: числовые голоса по убыванию,
// затем прочие карты по убыванию строки, в конце не проголосовавшие.
func SortParticipants(ps []domain.Participant, revealed bool) []domain.Participant {
	out := append([]domain.Participant(nil), ps...)
	if !revealed {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		return voteLess(out[i].Vote, out[j].Vote)
	})
	return out
}

func rank(v domain.Vote) int {
	switch v.Kind() {
	case domain.VoteNumeric:
		return 0
	case domain.VoteToken:
		return 1
	default:
		return 2
	}
}

func voteLess(a, b domain.Vote) bool {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra < rb
	}
	switch ra {
	case 0:
		fa, _ := a.Numeric()
		fb, _ := b.Numeric()
		return fa > fb
	case 1:
		return a.Token() > b.Token()
	}
	return false
}
