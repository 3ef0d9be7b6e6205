// Package badges evaluates data-driven badge families against contributor,
// profile and period statistics.
//
// Every family carries an explicit Exclusive flag. Tiers are listed highest
// first: an exclusive family emits only the first tier met, an additive
// family emits every tier met.
package badges

import (
	"sort"
)

// Rarity orders badges by significance.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

func (r Rarity) weight() int {
	switch r {
	case RarityLegendary:
		return 5
	case RarityEpic:
		return 4
	case RarityRare:
		return 3
	case RarityUncommon:
		return 2
	case RarityCommon:
		return 1
	default:
		return 0
	}
}

// Badge is one awarded achievement.
type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Rarity      Rarity `json:"rarity"`
	Priority    int    `json:"priority"`
	Family      string `json:"family"`
	Exclusive   bool   `json:"exclusive"`
}

// Tier is one threshold of a family.
type Tier[S any] struct {
	Badge Badge
	Match func(stats S) bool
}

// Family is an ordered, highest-first list of tiers over stats of type S.
type Family[S any] struct {
	ID        string
	Exclusive bool
	Tiers     []Tier[S]
}

// Evaluate returns the badges a family awards for stats.
func (f Family[S]) Evaluate(stats S) []Badge {
	var awarded []Badge
	for _, tier := range f.Tiers {
		if !tier.Match(stats) {
			continue
		}
		badge := tier.Badge
		badge.Family = f.ID
		badge.Exclusive = f.Exclusive
		awarded = append(awarded, badge)
		if f.Exclusive {
			break
		}
	}
	return awarded
}

func evaluateAll[S any](families []Family[S], stats S) []Badge {
	badges := make([]Badge, 0)
	for _, family := range families {
		badges = append(badges, family.Evaluate(stats)...)
	}
	Sort(badges)
	return badges
}

// Sort orders badges by rarity, then priority descending, then ID.
func Sort(badges []Badge) {
	sort.SliceStable(badges, func(i, j int) bool {
		left, right := badges[i], badges[j]
		if left.Rarity.weight() != right.Rarity.weight() {
			return left.Rarity.weight() > right.Rarity.weight()
		}
		if left.Priority != right.Priority {
			return left.Priority > right.Priority
		}
		return left.ID < right.ID
	})
}

// EvaluateContributor awards repository contributor badges.
func EvaluateContributor(stats ContributorStats) []Badge {
	return evaluateAll(ContributorFamilies(), stats)
}

// EvaluateProfile awards profile badges.
func EvaluateProfile(stats ProfileStats) []Badge {
	return evaluateAll(ProfileFamilies(), stats)
}

// EvaluatePeriod awards badges for one calendar year of activity.
func EvaluatePeriod(stats PeriodStats) []Badge {
	return evaluateAll(PeriodFamilies(), stats)
}
