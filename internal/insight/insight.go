// Package insight computes the composite insight score of a profile.
package insight

import (
	"math"
)

// Rank is an insight tier.
type Rank string

const (
	RankBronze   Rank = "Bronze"
	RankSilver   Rank = "Silver"
	RankGold     Rank = "Gold"
	RankPlatinum Rank = "Platinum"
	RankDiamond  Rank = "Diamond"
)

// tiers are ordered highest threshold first.
var tiers = []struct {
	rank Rank
	min  int
}{
	{rank: RankDiamond, min: 500000},
	{rank: RankPlatinum, min: 100000},
	{rank: RankGold, min: 10000},
	{rank: RankSilver, min: 1000},
	{rank: RankBronze, min: 0},
}

// Input holds the profile and activity metrics that feed the score.
type Input struct {
	Followers    int     `json:"followers"`
	TotalStars   int     `json:"total_stars"`
	TotalForks   int     `json:"total_forks"`
	PublicRepos  int     `json:"public_repos"`
	TotalPRs     int     `json:"total_prs"`
	TotalIssues  int     `json:"total_issues"`
	AccountYears float64 `json:"account_years"`
}

// BreakdownItem is the contribution of one weighted input.
type BreakdownItem struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
	Points int     `json:"points"`
}

// Result is a scored profile.
type Result struct {
	Score     int             `json:"score"`
	Rank      Rank            `json:"rank"`
	Breakdown []BreakdownItem `json:"breakdown"`
}

// Calculate floors each weighted term before summing and maps the total
// onto a rank tier.
func Calculate(input Input) Result {
	terms := []struct {
		metric string
		value  float64
		weight float64
	}{
		{metric: "followers", value: float64(input.Followers), weight: 10},
		{metric: "total_stars", value: float64(input.TotalStars), weight: 5},
		{metric: "total_forks", value: float64(input.TotalForks), weight: 3},
		{metric: "public_repos", value: float64(input.PublicRepos), weight: 2},
		{metric: "total_prs", value: float64(input.TotalPRs), weight: 1},
		{metric: "total_issues", value: float64(input.TotalIssues), weight: 0.5},
		{metric: "account_years", value: input.AccountYears, weight: 50},
	}

	result := Result{Breakdown: make([]BreakdownItem, 0, len(terms))}
	for _, term := range terms {
		points := int(math.Floor(term.value * term.weight))
		result.Score += points
		result.Breakdown = append(result.Breakdown, BreakdownItem{
			Metric: term.metric,
			Value:  term.value,
			Weight: term.weight,
			Points: points,
		})
	}
	result.Rank = RankFor(result.Score)
	return result
}

// RankFor returns the highest tier whose threshold does not exceed score.
func RankFor(score int) Rank {
	for _, tier := range tiers {
		if score >= tier.min {
			return tier.rank
		}
	}
	return RankBronze
}

// AtLeast reports whether r is the same tier as other or higher.
func (r Rank) AtLeast(other Rank) bool {
	return r.order() >= other.order()
}

func (r Rank) order() int {
	for i, tier := range tiers {
		if tier.rank == r {
			return len(tiers) - i
		}
	}
	return 0
}
