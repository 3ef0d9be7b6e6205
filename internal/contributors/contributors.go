// Package contributors folds commit, pull request and review records into
// scored and ranked per-contributor statistics.
package contributors

import (
	"math"
	"sort"

	"github.com/cam3ron2/github-insights/internal/model"
)

const (
	commitWeight      = 10
	additionsDivisor  = 100
	deletionsDivisor  = 200
	pullRequestWeight = 20
	reviewWeight      = 5
)

// accumulator holds the running totals of one identity during a single pass.
type accumulator struct {
	identity     model.Identity
	displayName  string
	avatarURL    string
	commits      int
	additions    int
	deletions    int
	pullRequests int
	reviews      int
}

type aggregation struct {
	byIdentity map[string]*accumulator
}

func (a *aggregation) entry(identity model.Identity) (*accumulator, bool) {
	key, ok := identity.Value()
	if !ok {
		return nil, false
	}
	acc, exists := a.byIdentity[key]
	if !exists {
		acc = &accumulator{identity: identity}
		a.byIdentity[key] = acc
	}
	return acc, true
}

func (acc *accumulator) describe(displayName, avatarURL string) {
	if acc.displayName == "" && displayName != "" {
		acc.displayName = displayName
	}
	if acc.avatarURL == "" && avatarURL != "" {
		acc.avatarURL = avatarURL
	}
}

// Aggregate merges commit authorship, pull request authorship and review
// authorship into ranked statistics. Unresolvable identities are never
// counted and self-reviews do not increment the reviews total.
func Aggregate(commits []model.CommitRecord, pulls []model.PullRequestRecord) []model.ContributorDetailStat {
	agg := &aggregation{byIdentity: make(map[string]*accumulator)}

	for _, commit := range commits {
		acc, ok := agg.entry(commit.Author)
		if !ok {
			continue
		}
		acc.commits++
		acc.additions += commit.Additions
		acc.deletions += commit.Deletions
		acc.describe(commit.AuthorName, commit.AvatarURL)
	}

	for _, pull := range pulls {
		if acc, ok := agg.entry(pull.Author); ok {
			acc.pullRequests++
			acc.describe(pull.AuthorName, pull.AvatarURL)
		}

		author, authorResolved := pull.Author.Value()
		for _, review := range pull.Reviews {
			reviewer, ok := review.Author.Value()
			if !ok || (authorResolved && reviewer == author) {
				continue
			}
			if acc, ok := agg.entry(review.Author); ok {
				acc.reviews++
			}
		}
	}

	stats := make([]model.ContributorDetailStat, 0, len(agg.byIdentity))
	for _, acc := range agg.byIdentity {
		stats = append(stats, acc.stat())
	}
	Rank(stats)
	return stats
}

func (acc *accumulator) stat() model.ContributorDetailStat {
	displayName := acc.displayName
	if displayName == "" {
		displayName = acc.identity.String()
	}
	return model.ContributorDetailStat{
		Identity:     acc.identity,
		DisplayName:  displayName,
		AvatarURL:    acc.avatarURL,
		Commits:      acc.commits,
		Additions:    acc.additions,
		Deletions:    acc.deletions,
		PullRequests: acc.pullRequests,
		Reviews:      acc.reviews,
		Score:        Score(acc.commits, acc.additions, acc.deletions, acc.pullRequests, acc.reviews),
	}
}

// Score is the weighted contribution score, rounded half away from zero.
func Score(commits, additions, deletions, pullRequests, reviews int) int {
	raw := float64(commits)*commitWeight +
		float64(additions)/additionsDivisor +
		float64(deletions)/deletionsDivisor +
		float64(pullRequests)*pullRequestWeight +
		float64(reviews)*reviewWeight
	return int(math.Round(raw))
}

// Rank sorts stats by score descending, identity ascending on ties, and
// assigns dense 1-based ranks in that order.
func Rank(stats []model.ContributorDetailStat) {
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Score != stats[j].Score {
			return stats[i].Score > stats[j].Score
		}
		return stats[i].Identity.String() < stats[j].Identity.String()
	})
	for i := range stats {
		stats[i].Rank = i + 1
	}
}

// Summary totals a ranked contributor list.
type Summary struct {
	Contributors int    `json:"contributors"`
	Commits      int    `json:"commits"`
	Additions    int    `json:"additions"`
	Deletions    int    `json:"deletions"`
	PullRequests int    `json:"pull_requests"`
	Reviews      int    `json:"reviews"`
	Top          string `json:"top,omitempty"`
}

// Summarize totals stats. Top is the rank 1 identity when present.
func Summarize(stats []model.ContributorDetailStat) Summary {
	summary := Summary{Contributors: len(stats)}
	for _, stat := range stats {
		summary.Commits += stat.Commits
		summary.Additions += stat.Additions
		summary.Deletions += stat.Deletions
		summary.PullRequests += stat.PullRequests
		summary.Reviews += stat.Reviews
		if stat.Rank == 1 {
			summary.Top = stat.Identity.String()
		}
	}
	return summary
}
