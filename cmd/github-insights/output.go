package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cam3ron2/github-insights/internal/badges"
	"github.com/cam3ron2/github-insights/internal/model"
	"github.com/cam3ron2/github-insights/internal/service"
	"github.com/cam3ron2/github-insights/internal/temporal"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

const (
	outputTable = "table"
	outputJSON  = "json"

	maxMessageWidth = 60
)

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON:
		return nil
	default:
		return fmt.Errorf("output must be %s or %s, got %q", outputTable, outputJSON, format)
	}
}

func writeJSON(w io.Writer, payload any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func writeTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()

	table.Header(headers)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func writeCommits(w io.Writer, format string, commits []model.CommitRecord) error {
	if format == outputJSON {
		return writeJSON(w, commits)
	}
	rows := make([][]string, 0, len(commits))
	for _, commit := range commits {
		rows = append(rows, []string{
			commit.CommittedAt.UTC().Format(time.DateOnly),
			commit.Author.String(),
			"+" + strconv.Itoa(commit.Additions),
			"-" + strconv.Itoa(commit.Deletions),
			firstLine(commit.Message, maxMessageWidth),
		})
	}
	return writeTable(w, []string{"Date", "Author", "Added", "Deleted", "Message"}, rows)
}

func writeContributors(w io.Writer, format string, report service.RepoContributors) error {
	if format == outputJSON {
		return writeJSON(w, report)
	}
	rows := make([][]string, 0, len(report.Contributors))
	for _, contributor := range report.Contributors {
		rows = append(rows, []string{
			strconv.Itoa(contributor.Rank),
			contributor.Identity.String(),
			strconv.Itoa(contributor.Score),
			strconv.Itoa(contributor.Commits),
			strconv.Itoa(contributor.PullRequests),
			strconv.Itoa(contributor.Reviews),
			fmt.Sprintf("+%d/-%d", contributor.Additions, contributor.Deletions),
			badgeNames(contributor.Badges),
		})
	}
	return writeTable(w, []string{"Rank", "Contributor", "Score", "Commits", "PRs", "Reviews", "Lines", "Badges"}, rows)
}

func writeStreaks(w io.Writer, format string, report service.StreakReport) error {
	if format == outputJSON {
		return writeJSON(w, report)
	}
	return writeTable(w, []string{"User", "Year", "Current", "Longest", "Contributions", "Active Days"}, [][]string{{
		report.Username,
		strconv.Itoa(report.Year),
		strconv.Itoa(report.CurrentStreak),
		strconv.Itoa(report.LongestStreak),
		strconv.Itoa(report.TotalContributions),
		strconv.Itoa(report.ActiveDays),
	}})
}

func writeActivity(w io.Writer, format string, analysis temporal.ActivityTimeAnalysis) error {
	if format == outputJSON {
		return writeJSON(w, analysis)
	}
	return writeTable(w, []string{"Archetype", "Peak Hour (UTC)", "Events"}, [][]string{{
		analysis.Label,
		fmt.Sprintf("%02d:00", analysis.PeakHour),
		strconv.Itoa(analysis.TotalEvents),
	}})
}

func writeInsight(w io.Writer, format string, report service.InsightReport) error {
	if format == outputJSON {
		return writeJSON(w, report)
	}
	rows := make([][]string, 0, len(report.Breakdown)+1)
	for _, item := range report.Breakdown {
		rows = append(rows, []string{
			item.Metric,
			strconv.FormatFloat(item.Value, 'f', -1, 64),
			strconv.FormatFloat(item.Weight, 'f', -1, 64),
			strconv.Itoa(item.Points),
		})
	}
	rows = append(rows, []string{"total (" + string(report.Rank) + ")", "", "", strconv.Itoa(report.Score)})
	return writeTable(w, []string{"Metric", "Value", "Weight", "Points"}, rows)
}

func writeBadges(w io.Writer, format string, awarded []badges.Badge) error {
	if format == outputJSON {
		return writeJSON(w, awarded)
	}
	rows := make([][]string, 0, len(awarded))
	for _, badge := range awarded {
		rows = append(rows, []string{badge.Name, string(badge.Rarity), badge.Family, badge.Description})
	}
	return writeTable(w, []string{"Badge", "Rarity", "Family", "Description"}, rows)
}

func writeRateLimit(w io.Writer, format string, info model.RateLimitInfo, found bool) error {
	if format == outputJSON {
		if !found {
			return writeJSON(w, nil)
		}
		return writeJSON(w, info)
	}
	if !found {
		_, err := fmt.Fprintln(w, "no rate-limit snapshot recorded yet")
		return err
	}
	return writeTable(w, []string{"Remaining", "Limit", "Used", "Resets At"}, [][]string{{
		strconv.Itoa(info.Remaining),
		strconv.Itoa(info.Limit),
		strconv.Itoa(info.Used),
		info.ResetAt.UTC().Format(time.RFC3339),
	}})
}

func badgeNames(awarded []badges.Badge) string {
	names := make([]string, 0, len(awarded))
	for _, badge := range awarded {
		names = append(names, badge.Name)
	}
	return strings.Join(names, ", ")
}

func firstLine(message string, limit int) string {
	line, _, _ := strings.Cut(message, "\n")
	line = strings.TrimSpace(line)
	runes := []rune(line)
	if len(runes) <= limit {
		return line
	}
	return string(runes[:limit-3]) + "..."
}
