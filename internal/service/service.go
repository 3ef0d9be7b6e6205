// Package service runs the analytics operations over GitHub data: it fetches
// through a per-credential source and feeds the pure analytics packages.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/github-insights/internal/badges"
	"github.com/cam3ron2/github-insights/internal/contributors"
	"github.com/cam3ron2/github-insights/internal/githubapi"
	"github.com/cam3ron2/github-insights/internal/insight"
	"github.com/cam3ron2/github-insights/internal/model"
	"github.com/cam3ron2/github-insights/internal/store"
	"github.com/cam3ron2/github-insights/internal/telemetry"
	"github.com/cam3ron2/github-insights/internal/temporal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	tracerName = "github-insights/internal/service"
	// firstCalendarYear is the first year GitHub has contribution data for.
	firstCalendarYear = 2008
)

// ErrInvalidInput marks caller errors such as an empty owner or a bad window.
var ErrInvalidInput = errors.New("invalid input")

// Source is the GitHub data access consumed by the service.
type Source interface {
	Authenticated() bool
	FetchCommitHistory(ctx context.Context, owner, repo string, days *int) ([]model.CommitRecord, error)
	FetchPullRequests(ctx context.Context, owner, repo string, days *int) ([]model.PullRequestRecord, error)
	FetchContributionCalendar(ctx context.Context, username string, year int) ([]model.ContributionDay, error)
	FetchEventTimestamps(ctx context.Context, username string) ([]time.Time, error)
	FetchProfile(ctx context.Context, username string) (model.Profile, error)
	CountContributions(ctx context.Context, username string) (model.ContributionCounts, error)
	UpdateRateLimit(ctx context.Context) (model.RateLimitInfo, bool)
}

// SourceFactory resolves a credential into a Source.
type SourceFactory interface {
	ForCredential(cred githubapi.Credential) (Source, error)
}

// SnapshotReader reads the in-process unauthenticated rate-limit snapshot.
type SnapshotReader interface {
	Snapshot() (model.RateLimitInfo, bool)
}

// OperationRecorder records analytics operation outcomes.
type OperationRecorder interface {
	ObserveOperation(operation string, duration time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, time.Duration, error) {}

// Options configures optional Service collaborators.
type Options struct {
	// Store is consulted when the in-process snapshot is unknown.
	Store    store.RateLimitStore
	Recorder OperationRecorder
	Logger   *zap.Logger
}

// Service runs analytics operations.
type Service struct {
	sources  SourceFactory
	tracker  SnapshotReader
	store    store.RateLimitStore
	recorder OperationRecorder
	logger   *zap.Logger

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// New creates a Service.
func New(sources SourceFactory, tracker SnapshotReader, opts Options) (*Service, error) {
	if sources == nil {
		return nil, fmt.Errorf("source factory is required")
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sources:  sources,
		tracker:  tracker,
		store:    opts.Store,
		recorder: recorder,
		logger:   logger,
		Now:      time.Now,
	}, nil
}

// ContributorReport is one ranked contributor with the badges it earned.
type ContributorReport struct {
	model.ContributorDetailStat
	Badges []badges.Badge `json:"badges"`
}

// RepoContributors is the contributor view of one repository.
type RepoContributors struct {
	Owner         string               `json:"owner"`
	Repo          string               `json:"repo"`
	Days          *int                 `json:"days,omitempty"`
	Authenticated bool                 `json:"authenticated"`
	Summary       contributors.Summary `json:"summary"`
	Contributors  []ContributorReport  `json:"contributors"`
}

// StreakReport is the streak view of one user-year.
type StreakReport struct {
	Username string `json:"username"`
	Year     int    `json:"year"`
	temporal.StreakResult
	TotalContributions int `json:"total_contributions"`
	ActiveDays         int `json:"active_days"`
}

// InsightReport is a scored profile.
type InsightReport struct {
	Profile model.Profile            `json:"profile"`
	Counts  model.ContributionCounts `json:"counts"`
	insight.Result
}

// UserBadges is the combined profile and period badge view of a user.
type UserBadges struct {
	Username string         `json:"username"`
	Year     int            `json:"year"`
	Badges   []badges.Badge `json:"badges"`
}

// CommitHistory returns the capped default-branch history of a repository.
func (s *Service) CommitHistory(ctx context.Context, cred githubapi.Credential, owner, repo string, days *int) (commits []model.CommitRecord, err error) {
	ctx, finish := s.begin(ctx, "commit_history", attribute.String("github.owner", owner), attribute.String("github.repo", repo))
	defer func() { finish(err) }()

	if err := validateRepo(owner, repo, days); err != nil {
		return nil, err
	}
	source, err := s.sources.ForCredential(cred)
	if err != nil {
		return nil, err
	}
	return source.FetchCommitHistory(ctx, owner, repo, days)
}

// Contributors aggregates, ranks and badges the contributors of a repository.
func (s *Service) Contributors(ctx context.Context, cred githubapi.Credential, owner, repo string, days *int) (report RepoContributors, err error) {
	ctx, finish := s.begin(ctx, "contributors", attribute.String("github.owner", owner), attribute.String("github.repo", repo))
	defer func() { finish(err) }()

	if err := validateRepo(owner, repo, days); err != nil {
		return RepoContributors{}, err
	}
	source, err := s.sources.ForCredential(cred)
	if err != nil {
		return RepoContributors{}, err
	}

	commits, err := source.FetchCommitHistory(ctx, owner, repo, days)
	if err != nil {
		return RepoContributors{}, err
	}
	pulls, err := source.FetchPullRequests(ctx, owner, repo, days)
	if err != nil {
		return RepoContributors{}, err
	}

	stats := contributors.Aggregate(commits, pulls)
	report = RepoContributors{
		Owner:         strings.TrimSpace(owner),
		Repo:          strings.TrimSpace(repo),
		Days:          days,
		Authenticated: source.Authenticated(),
		Summary:       contributors.Summarize(stats),
		Contributors:  make([]ContributorReport, 0, len(stats)),
	}
	for _, stat := range stats {
		report.Contributors = append(report.Contributors, ContributorReport{
			ContributorDetailStat: stat,
			Badges: badges.EvaluateContributor(badges.ContributorStats{
				Stat:              stat,
				TotalContributors: len(stats),
			}),
		})
	}

	s.logger.Debug(
		"aggregated contributors",
		zap.String("owner", report.Owner),
		zap.String("repo", report.Repo),
		zap.Int("commits", len(commits)),
		zap.Int("pull_requests", len(pulls)),
		zap.Int("contributors", len(stats)),
	)
	return report, nil
}

// Streaks computes the contribution streaks of a user for year. A zero year
// means the current year.
func (s *Service) Streaks(ctx context.Context, cred githubapi.Credential, username string, year int) (report StreakReport, err error) {
	ctx, finish := s.begin(ctx, "streaks", attribute.String("github.user", username))
	defer func() { finish(err) }()

	year, err = s.resolveYear(year)
	if err != nil {
		return StreakReport{}, err
	}
	if err := validateUser(username); err != nil {
		return StreakReport{}, err
	}
	source, err := s.sources.ForCredential(cred)
	if err != nil {
		return StreakReport{}, err
	}

	days, err := source.FetchContributionCalendar(ctx, username, year)
	if err != nil {
		return StreakReport{}, err
	}
	return StreakReport{
		Username:           strings.TrimSpace(username),
		Year:               year,
		StreakResult:       temporal.CalculateStreaks(days, year, s.Now()),
		TotalContributions: temporal.TotalContributions(days),
		ActiveDays:         temporal.ActiveDays(days),
	}, nil
}

// ActivityTime classifies when a user is active from their recent public events.
func (s *Service) ActivityTime(ctx context.Context, cred githubapi.Credential, username string) (analysis temporal.ActivityTimeAnalysis, err error) {
	ctx, finish := s.begin(ctx, "activity_time", attribute.String("github.user", username))
	defer func() { finish(err) }()

	if err := validateUser(username); err != nil {
		return temporal.ActivityTimeAnalysis{}, err
	}
	source, err := s.sources.ForCredential(cred)
	if err != nil {
		return temporal.ActivityTimeAnalysis{}, err
	}

	timestamps, err := source.FetchEventTimestamps(ctx, username)
	if err != nil {
		return temporal.ActivityTimeAnalysis{}, err
	}
	return temporal.AnalyzeActivityTime(timestamps), nil
}

// InsightScore scores a user's profile.
func (s *Service) InsightScore(ctx context.Context, cred githubapi.Credential, username string) (report InsightReport, err error) {
	ctx, finish := s.begin(ctx, "insight_score", attribute.String("github.user", username))
	defer func() { finish(err) }()

	if err := validateUser(username); err != nil {
		return InsightReport{}, err
	}
	source, err := s.sources.ForCredential(cred)
	if err != nil {
		return InsightReport{}, err
	}
	return s.insight(ctx, source, username)
}

// Badges evaluates the profile badges and the period badges of year for a user.
func (s *Service) Badges(ctx context.Context, cred githubapi.Credential, username string, year int) (result UserBadges, err error) {
	ctx, finish := s.begin(ctx, "badges", attribute.String("github.user", username))
	defer func() { finish(err) }()

	year, err = s.resolveYear(year)
	if err != nil {
		return UserBadges{}, err
	}
	if err := validateUser(username); err != nil {
		return UserBadges{}, err
	}
	source, err := s.sources.ForCredential(cred)
	if err != nil {
		return UserBadges{}, err
	}

	scored, err := s.insight(ctx, source, username)
	if err != nil {
		return UserBadges{}, err
	}
	days, err := source.FetchContributionCalendar(ctx, username, year)
	if err != nil {
		return UserBadges{}, err
	}
	timestamps, err := source.FetchEventTimestamps(ctx, username)
	if err != nil {
		return UserBadges{}, err
	}

	awarded := badges.EvaluateProfile(badges.ProfileStats{
		Input: insightInput(scored.Profile, scored.Counts, s.Now()),
		Rank:  scored.Rank,
	})
	awarded = append(awarded, badges.EvaluatePeriod(badges.PeriodStats{
		Year:               year,
		TotalContributions: temporal.TotalContributions(days),
		ActiveDays:         temporal.ActiveDays(days),
		Streak:             temporal.CalculateStreaks(days, year, s.Now()),
		Archetype:          temporal.AnalyzeActivityTime(timestamps).Archetype,
	})...)
	badges.Sort(awarded)

	return UserBadges{
		Username: strings.TrimSpace(username),
		Year:     year,
		Badges:   awarded,
	}, nil
}

// RateLimit returns the latest unauthenticated rate-limit snapshot, falling
// back to the shared store when this process has not probed yet.
func (s *Service) RateLimit(ctx context.Context) (model.RateLimitInfo, bool, error) {
	if s.tracker != nil {
		if info, ok := s.tracker.Snapshot(); ok {
			return info, true, nil
		}
	}
	if s.store == nil {
		return model.RateLimitInfo{}, false, nil
	}
	info, found, err := s.store.LoadRateLimit(ctx)
	if err != nil {
		return model.RateLimitInfo{}, false, fmt.Errorf("load rate-limit snapshot: %w", err)
	}
	return info, found, nil
}

// unauthenticatedFactory is implemented by factories that keep a dedicated
// unauthenticated client next to a server credential.
type unauthenticatedFactory interface {
	Unauthenticated() (*githubapi.Client, error)
}

// RefreshRateLimit probes the unauthenticated budget once.
func (s *Service) RefreshRateLimit(ctx context.Context) (model.RateLimitInfo, bool) {
	source, err := s.probeSource()
	if err != nil {
		s.logger.Warn("failed to build client for rate-limit probe", zap.Error(err))
		return model.RateLimitInfo{}, false
	}
	return source.UpdateRateLimit(ctx)
}

func (s *Service) probeSource() (Source, error) {
	if factory, ok := s.sources.(unauthenticatedFactory); ok {
		client, err := factory.Unauthenticated()
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return s.sources.ForCredential(githubapi.Credential{})
}

func (s *Service) insight(ctx context.Context, source Source, username string) (InsightReport, error) {
	profile, err := source.FetchProfile(ctx, username)
	if err != nil {
		return InsightReport{}, err
	}
	counts, err := source.CountContributions(ctx, username)
	if err != nil {
		return InsightReport{}, err
	}
	return InsightReport{
		Profile: profile,
		Counts:  counts,
		Result:  insight.Calculate(insightInput(profile, counts, s.Now())),
	}, nil
}

func insightInput(profile model.Profile, counts model.ContributionCounts, now time.Time) insight.Input {
	return insight.Input{
		Followers:    profile.Followers,
		TotalStars:   profile.TotalStars,
		TotalForks:   profile.TotalForks,
		PublicRepos:  profile.PublicRepos,
		TotalPRs:     counts.PullRequests,
		TotalIssues:  counts.Issues,
		AccountYears: profile.AccountYears(now),
	}
}

// begin starts the span and timer of one operation.
func (s *Service) begin(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := s.Now()
	ctx, span := telemetry.StartDependencySpan(ctx, tracerName, "service."+operation, attrs...)
	return ctx, func(err error) {
		telemetry.EndSpan(span, err)
		s.recorder.ObserveOperation(operation, s.Now().Sub(started), err)
		if err != nil && !errors.Is(err, ErrInvalidInput) {
			s.logger.Warn("operation failed", zap.String("operation", operation), zap.Error(err))
		}
	}
}

func (s *Service) resolveYear(year int) (int, error) {
	current := s.Now().UTC().Year()
	if year == 0 {
		return current, nil
	}
	if year < firstCalendarYear || year > current {
		return 0, fmt.Errorf("%w: year must be between %d and %d", ErrInvalidInput, firstCalendarYear, current)
	}
	return year, nil
}

func validateRepo(owner, repo string, days *int) error {
	if strings.TrimSpace(owner) == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	if strings.TrimSpace(repo) == "" {
		return fmt.Errorf("%w: repo is required", ErrInvalidInput)
	}
	if days != nil && *days <= 0 {
		return fmt.Errorf("%w: days must be > 0", ErrInvalidInput)
	}
	return nil
}

func validateUser(username string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	return nil
}
