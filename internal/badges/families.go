package badges

import (
	"fmt"

	"github.com/cam3ron2/github-insights/internal/insight"
	"github.com/cam3ron2/github-insights/internal/model"
	"github.com/cam3ron2/github-insights/internal/temporal"
)

// ContributorStats scopes badges to one repository contributor.
type ContributorStats struct {
	Stat              model.ContributorDetailStat
	TotalContributors int
}

// ProfileStats scopes badges to a user profile.
type ProfileStats struct {
	Input insight.Input
	Rank  insight.Rank
}

// PeriodStats scopes badges to one calendar year of activity.
type PeriodStats struct {
	Year               int
	TotalContributions int
	ActiveDays         int
	Streak             temporal.StreakResult
	Archetype          temporal.Archetype
}

func atLeast[S any](id, name string, rarity Rarity, priority, minimum int, metric func(S) int, unit string) Tier[S] {
	return Tier[S]{
		Badge: Badge{
			ID:          id,
			Name:        name,
			Description: fmt.Sprintf("%d+ %s", minimum, unit),
			Rarity:      rarity,
			Priority:    priority,
		},
		Match: func(stats S) bool { return metric(stats) >= minimum },
	}
}

// ContributorFamilies returns the contributor badge rule table.
func ContributorFamilies() []Family[ContributorStats] {
	commits := func(s ContributorStats) int { return s.Stat.Commits }
	pulls := func(s ContributorStats) int { return s.Stat.PullRequests }
	reviews := func(s ContributorStats) int { return s.Stat.Reviews }
	churn := func(s ContributorStats) int { return s.Stat.Additions + s.Stat.Deletions }

	return []Family[ContributorStats]{
		{
			ID:        "contributor-rank",
			Exclusive: true,
			Tiers: []Tier[ContributorStats]{
				{
					Badge: Badge{ID: "top-contributor", Name: "Top Contributor", Description: "Ranked #1 among at least 2 contributors", Rarity: RarityLegendary, Priority: 100},
					Match: func(s ContributorStats) bool { return s.Stat.Rank == 1 && s.TotalContributors >= 2 },
				},
				{
					Badge: Badge{ID: "podium", Name: "Podium", Description: "Ranked in the top 3 among at least 3 contributors", Rarity: RarityEpic, Priority: 90},
					Match: func(s ContributorStats) bool { return s.Stat.Rank <= 3 && s.TotalContributors >= 3 },
				},
				{
					Badge: Badge{ID: "top-ten", Name: "Top 10", Description: "Ranked in the top 10 among at least 10 contributors", Rarity: RarityRare, Priority: 80},
					Match: func(s ContributorStats) bool { return s.Stat.Rank <= 10 && s.TotalContributors >= 10 },
				},
			},
		},
		{
			ID:        "contributor-commits",
			Exclusive: false,
			Tiers: []Tier[ContributorStats]{
				atLeast("commits-500", "Commit Machine", RarityEpic, 40, 500, commits, "commits"),
				atLeast("commits-100", "Centurion", RarityRare, 30, 100, commits, "commits"),
				atLeast("commits-50", "Regular", RarityUncommon, 20, 50, commits, "commits"),
				atLeast("commits-10", "Committed", RarityCommon, 10, 10, commits, "commits"),
			},
		},
		{
			ID:        "contributor-pull-requests",
			Exclusive: true,
			Tiers: []Tier[ContributorStats]{
				atLeast("pull-requests-100", "Merge Master", RarityEpic, 45, 100, pulls, "pull requests"),
				atLeast("pull-requests-25", "Pull Request Pro", RarityRare, 35, 25, pulls, "pull requests"),
				atLeast("pull-requests-5", "Pull Requester", RarityUncommon, 15, 5, pulls, "pull requests"),
			},
		},
		{
			ID:        "contributor-reviews",
			Exclusive: true,
			Tiers: []Tier[ContributorStats]{
				atLeast("reviews-100", "Gatekeeper", RarityEpic, 44, 100, reviews, "reviews"),
				atLeast("reviews-25", "Code Critic", RarityRare, 34, 25, reviews, "reviews"),
				atLeast("reviews-5", "Reviewer", RarityUncommon, 14, 5, reviews, "reviews"),
			},
		},
		{
			ID:        "contributor-churn",
			Exclusive: true,
			Tiers: []Tier[ContributorStats]{
				atLeast("churn-100k", "Bulldozer", RarityEpic, 42, 100000, churn, "lines changed"),
				atLeast("churn-10k", "Heavy Lifter", RarityRare, 32, 10000, churn, "lines changed"),
				atLeast("churn-1k", "Code Mover", RarityCommon, 12, 1000, churn, "lines changed"),
			},
		},
	}
}

// ProfileFamilies returns the profile badge rule table.
func ProfileFamilies() []Family[ProfileStats] {
	followers := func(s ProfileStats) int { return s.Input.Followers }
	stars := func(s ProfileStats) int { return s.Input.TotalStars }
	years := func(s ProfileStats) int { return int(s.Input.AccountYears) }
	tier := func(rank insight.Rank, id string, rarity Rarity, priority int) Tier[ProfileStats] {
		return Tier[ProfileStats]{
			Badge: Badge{ID: id, Name: string(rank) + " Tier", Description: "Reached the " + string(rank) + " insight tier", Rarity: rarity, Priority: priority},
			Match: func(s ProfileStats) bool { return s.Rank.AtLeast(rank) },
		}
	}

	return []Family[ProfileStats]{
		{
			ID:        "profile-followers",
			Exclusive: true,
			Tiers: []Tier[ProfileStats]{
				atLeast("followers-1000", "Influencer", RarityEpic, 48, 1000, followers, "followers"),
				atLeast("followers-100", "Popular", RarityRare, 38, 100, followers, "followers"),
				atLeast("followers-10", "Networker", RarityCommon, 8, 10, followers, "followers"),
			},
		},
		{
			ID:        "profile-stars",
			Exclusive: true,
			Tiers: []Tier[ProfileStats]{
				atLeast("stars-10000", "Superstar", RarityLegendary, 95, 10000, stars, "stars"),
				atLeast("stars-1000", "Star Collector", RarityEpic, 47, 1000, stars, "stars"),
				atLeast("stars-100", "Rising Star", RarityRare, 37, 100, stars, "stars"),
				atLeast("stars-10", "Stargazer", RarityCommon, 7, 10, stars, "stars"),
			},
		},
		{
			ID:        "profile-veteran",
			Exclusive: true,
			Tiers: []Tier[ProfileStats]{
				atLeast("veteran-10y", "Decade Club", RarityEpic, 46, 10, years, "years on GitHub"),
				atLeast("veteran-5y", "Veteran", RarityRare, 36, 5, years, "years on GitHub"),
			},
		},
		{
			ID:        "profile-insight-tier",
			Exclusive: true,
			Tiers: []Tier[ProfileStats]{
				tier(insight.RankDiamond, "insight-diamond", RarityLegendary, 99),
				tier(insight.RankPlatinum, "insight-platinum", RarityEpic, 49),
				tier(insight.RankGold, "insight-gold", RarityRare, 39),
			},
		},
	}
}

// PeriodFamilies returns the yearly activity badge rule table.
func PeriodFamilies() []Family[PeriodStats] {
	longest := func(s PeriodStats) int { return s.Streak.LongestStreak }
	current := func(s PeriodStats) int { return s.Streak.CurrentStreak }
	contributions := func(s PeriodStats) int { return s.TotalContributions }
	activeDays := func(s PeriodStats) int { return s.ActiveDays }
	archetype := func(a temporal.Archetype, id, name string) Tier[PeriodStats] {
		return Tier[PeriodStats]{
			Badge: Badge{ID: id, Name: name, Description: "Most active as a " + a.Label(), Rarity: RarityCommon, Priority: 5},
			Match: func(s PeriodStats) bool { return s.Archetype == a },
		}
	}

	return []Family[PeriodStats]{
		{
			ID:        "period-streak",
			Exclusive: true,
			Tiers: []Tier[PeriodStats]{
				atLeast("streak-365", "Year-Round", RarityLegendary, 98, 365, longest, "day streak"),
				atLeast("streak-100", "Unstoppable", RarityEpic, 43, 100, longest, "day streak"),
				atLeast("streak-30", "Monthly Habit", RarityRare, 33, 30, longest, "day streak"),
				atLeast("streak-7", "Week Warrior", RarityUncommon, 13, 7, longest, "day streak"),
			},
		},
		{
			ID:        "period-contributions",
			Exclusive: true,
			Tiers: []Tier[PeriodStats]{
				atLeast("contributions-5000", "Prolific", RarityLegendary, 97, 5000, contributions, "contributions"),
				atLeast("contributions-1000", "Workhorse", RarityEpic, 41, 1000, contributions, "contributions"),
				atLeast("contributions-100", "Contributor", RarityUncommon, 11, 100, contributions, "contributions"),
			},
		},
		{
			ID:        "period-active-days",
			Exclusive: true,
			Tiers: []Tier[PeriodStats]{
				atLeast("active-days-300", "Always On", RarityEpic, 42, 300, activeDays, "active days"),
				atLeast("active-days-200", "Dedicated", RarityRare, 31, 200, activeDays, "active days"),
				atLeast("active-days-100", "Consistent", RarityUncommon, 12, 100, activeDays, "active days"),
			},
		},
		{
			ID:        "period-on-fire",
			Exclusive: false,
			Tiers: []Tier[PeriodStats]{
				atLeast("on-fire", "On Fire", RarityUncommon, 16, 7, current, "day current streak"),
			},
		},
		{
			ID:        "period-archetype",
			Exclusive: false,
			Tiers: []Tier[PeriodStats]{
				archetype(temporal.ArchetypeNightOwl, "night-owl", "Night Owl"),
				archetype(temporal.ArchetypeEarlyBird, "early-bird", "Early Bird"),
			},
		},
	}
}
