package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/cam3ron2/github-insights/internal/app"
	"github.com/cam3ron2/github-insights/internal/githubapi"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the analytics API with metrics and health endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				return rt.Serve(ctx)
			})
		},
	}
}

func newCommitsCommand(opts *rootOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "commits OWNER/REPO",
		Short: "List default-branch commit history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := parseRepo(args[0])
			if err != nil {
				return err
			}
			window := daysFlag(cmd, days)
			return opts.withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				commits, err := rt.Service().CommitHistory(ctx, githubapi.Credential{}, owner, repo, window)
				if err != nil {
					return err
				}
				return writeCommits(opts.out, opts.output, commits)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "only include commits from the last N days")
	return cmd
}

func newContributorsCommand(opts *rootOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "contributors OWNER/REPO",
		Short: "Rank repository contributors by score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := parseRepo(args[0])
			if err != nil {
				return err
			}
			window := daysFlag(cmd, days)
			return opts.withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				report, err := rt.Service().Contributors(ctx, githubapi.Credential{}, owner, repo, window)
				if err != nil {
					return err
				}
				return writeContributors(opts.out, opts.output, report)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "only include activity from the last N days")
	return cmd
}

func newStreaksCommand(opts *rootOptions) *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "streaks USERNAME",
		Short: "Show contribution streaks for a calendar year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				report, err := rt.Service().Streaks(ctx, githubapi.Credential{}, args[0], year)
				if err != nil {
					return err
				}
				return writeStreaks(opts.out, opts.output, report)
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "calendar year (defaults to the current year)")
	return cmd
}

func newActivityCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activity USERNAME",
		Short: "Classify when a user is most active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				analysis, err := rt.Service().ActivityTime(ctx, githubapi.Credential{}, args[0])
				if err != nil {
					return err
				}
				return writeActivity(opts.out, opts.output, analysis)
			})
		},
	}
}

func newInsightCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "insight USERNAME",
		Short: "Score a profile and map it onto a rank tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				report, err := rt.Service().InsightScore(ctx, githubapi.Credential{}, args[0])
				if err != nil {
					return err
				}
				return writeInsight(opts.out, opts.output, report)
			})
		},
	}
}

func newBadgesCommand(opts *rootOptions) *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "badges USERNAME",
		Short: "List the badges a user earned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				result, err := rt.Service().Badges(ctx, githubapi.Credential{}, args[0], year)
				if err != nil {
					return err
				}
				return writeBadges(opts.out, opts.output, result.Badges)
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "calendar year for streak badges (defaults to the current year)")
	return cmd
}

func newRateLimitCommand(opts *rootOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "rate-limit",
		Short: "Show the unauthenticated rate-limit snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if refresh {
					if _, ok := rt.Service().RefreshRateLimit(ctx); !ok {
						return fmt.Errorf("rate-limit probe failed")
					}
				}
				info, found, err := rt.Service().RateLimit(ctx)
				if err != nil {
					return err
				}
				return writeRateLimit(opts.out, opts.output, info, found)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "probe GitHub before reading the snapshot")
	return cmd
}

func parseRepo(raw string) (string, string, error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("repository must be OWNER/REPO, got %q", raw)
	}
	return owner, repo, nil
}

// daysFlag returns nil unless --days was given, so full history stays the default.
func daysFlag(cmd *cobra.Command, days int) *int {
	if !cmd.Flags().Changed("days") {
		return nil
	}
	return &days
}
