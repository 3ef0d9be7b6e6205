// Package temporal derives contribution streaks and hour-of-day activity
// archetypes from calendar and event data.
package temporal

import (
	"sort"
	"time"

	"github.com/cam3ron2/github-insights/internal/model"
)

// StreakResult holds the longest and the current run of contribution days.
type StreakResult struct {
	LongestStreak int `json:"longest_streak"`
	CurrentStreak int `json:"current_streak"`
}

// CalculateStreaks scans a calendar for runs of days with contributions.
// For the current year the current streak ends at today's entry; for past
// years it ends at the last entry. A missing today entry yields zero.
func CalculateStreaks(days []model.ContributionDay, year int, now time.Time) StreakResult {
	if len(days) == 0 {
		return StreakResult{}
	}

	sorted := make([]model.ContributionDay, len(days))
	copy(sorted, days)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	result := StreakResult{}
	run := 0
	for _, day := range sorted {
		if day.ContributionCount > 0 {
			run++
			if run > result.LongestStreak {
				result.LongestStreak = run
			}
			continue
		}
		run = 0
	}

	anchor := len(sorted) - 1
	today := now.UTC()
	if year == today.Year() {
		anchor = indexOfDate(sorted, today)
	}
	if anchor < 0 {
		return result
	}
	for i := anchor; i >= 0 && sorted[i].ContributionCount > 0; i-- {
		result.CurrentStreak++
	}
	return result
}

func indexOfDate(days []model.ContributionDay, target time.Time) int {
	y, m, d := target.Date()
	for i := len(days) - 1; i >= 0; i-- {
		dy, dm, dd := days[i].Date.UTC().Date()
		if dy == y && dm == m && dd == d {
			return i
		}
	}
	return -1
}

// ActiveDays counts days with at least one contribution.
func ActiveDays(days []model.ContributionDay) int {
	active := 0
	for _, day := range days {
		if day.ContributionCount > 0 {
			active++
		}
	}
	return active
}

// TotalContributions sums contribution counts.
func TotalContributions(days []model.ContributionDay) int {
	total := 0
	for _, day := range days {
		total += day.ContributionCount
	}
	return total
}
