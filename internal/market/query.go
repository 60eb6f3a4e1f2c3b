package market

import (
	"strings"

	"github.com/Veraticus/collectorstream/internal/model"
)

// BuildQuery renders a search query such as
// "Mike Trout 2011 Topps Update #US175 baseball card". Graded cards add the
// grader and grade so comps match the slab.
func BuildQuery(card *model.Card) string {
	if card == nil {
		return ""
	}
	var parts []string
	for _, o := range []model.Optional[string]{card.PlayerName, card.Year, card.Set} {
		if v, ok := o.Get(); ok {
			parts = append(parts, strings.TrimSpace(v))
		}
	}
	if v, ok := card.CardNumber.Get(); ok {
		parts = append(parts, "#"+strings.TrimPrefix(strings.TrimSpace(v), "#"))
	}
	if g := card.Grading; !g.Empty() {
		for _, o := range []model.Optional[string]{g.Company, g.Grade} {
			if v, ok := o.Get(); ok {
				parts = append(parts, v)
			}
		}
	}
	if sport, ok := card.Sport.Get(); ok {
		parts = append(parts, string(sport)+" card")
	}
	return strings.Join(parts, " ")
}

// Graded reports whether a card should be priced against slabbed comps.
func Graded(card *model.Card) bool {
	return card != nil && !card.Grading.Empty()
}
