package githubapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/github-insights/internal/model"
	"github.com/google/go-github/v75/github"
	"go.uber.org/zap"
)

const (
	maxRepoPages  = 10
	maxEventPages = 3
	dayFormat     = "2006-01-02"

	contributionCalendarQuery = `query($login: String!, $from: DateTime!, $to: DateTime!) {
  user(login: $login) {
    contributionsCollection(from: $from, to: $to) {
      contributionCalendar {
        weeks { contributionDays { date contributionCount } }
      }
    }
  }
}`
)

type contributionCalendarData struct {
	User *struct {
		ContributionsCollection struct {
			ContributionCalendar struct {
				Weeks []struct {
					ContributionDays []struct {
						Date              string `json:"date"`
						ContributionCount int    `json:"contributionCount"`
					} `json:"contributionDays"`
				} `json:"weeks"`
			} `json:"contributionCalendar"`
		} `json:"contributionsCollection"`
	} `json:"user"`
}

// FetchContributionCalendar reads the daily contribution calendar of one year.
func (c *Client) FetchContributionCalendar(ctx context.Context, username string, year int) ([]model.ContributionDay, error) {
	login := strings.TrimSpace(username)
	if login == "" {
		return nil, fmt.Errorf("username is required")
	}
	if year < 2008 {
		return nil, fmt.Errorf("year must be >= 2008")
	}

	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)
	variables := map[string]any{
		"login": login,
		"from":  from.Format(time.RFC3339),
		"to":    to.Format(time.RFC3339),
	}

	data, err := withClientRetry(ctx, c, c.retry, "contribution_calendar", func(ctx context.Context) (contributionCalendarData, error) {
		var payload contributionCalendarData
		err := c.graphQL(ctx, "contribution_calendar", contributionCalendarQuery, variables, &payload)
		return payload, err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch contribution calendar for %s: %w", login, err)
	}
	if data.User == nil {
		return nil, fmt.Errorf("fetch contribution calendar for %s: %w", login, ErrNotFound)
	}

	var days []model.ContributionDay
	for _, week := range data.User.ContributionsCollection.ContributionCalendar.Weeks {
		for _, day := range week.ContributionDays {
			date, err := time.Parse(dayFormat, day.Date)
			if err != nil {
				continue
			}
			days = append(days, model.ContributionDay{
				Date:              date,
				ContributionCount: day.ContributionCount,
			})
		}
	}
	return days, nil
}

// FetchProfile reads a user's profile and sums stars and forks over owned, non-fork repositories.
func (c *Client) FetchProfile(ctx context.Context, username string) (model.Profile, error) {
	login := strings.TrimSpace(username)
	if login == "" {
		return model.Profile{}, fmt.Errorf("username is required")
	}

	user, err := withClientRetry(ctx, c, c.retry, "user", func(ctx context.Context) (*github.User, error) {
		user, resp, err := c.rest.Users.Get(ctx, login)
		c.observeREST("user", resp, err)
		return user, err
	})
	if err != nil {
		if IsNotFound(err) {
			return model.Profile{}, fmt.Errorf("fetch user %s: %w", login, ErrNotFound)
		}
		return model.Profile{}, fmt.Errorf("fetch user %s: %w", login, err)
	}

	profile := model.Profile{
		Login:       user.GetLogin(),
		Name:        user.GetName(),
		AvatarURL:   user.GetAvatarURL(),
		Followers:   user.GetFollowers(),
		PublicRepos: user.GetPublicRepos(),
		CreatedAt:   user.GetCreatedAt().Time.UTC(),
	}

	opts := &github.RepositoryListByUserOptions{
		Type:        "owner",
		ListOptions: github.ListOptions{PerPage: maxPageSize},
	}
	for page := 0; page < maxRepoPages; page++ {
		repos, resp, err := withRESTRetry(ctx, c, "user_repos", func(ctx context.Context) ([]*github.Repository, *github.Response, error) {
			return c.rest.Repositories.ListByUser(ctx, login, opts)
		})
		if err != nil {
			return model.Profile{}, fmt.Errorf("list repositories for %s: %w", login, err)
		}
		for _, repo := range repos {
			if repo.GetFork() {
				continue
			}
			profile.TotalStars += repo.GetStargazersCount()
			profile.TotalForks += repo.GetForksCount()
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return profile, nil
}

// CountContributions counts a user's authored pull requests and issues through
// search. Failures other than rate limits yield zero counts.
func (c *Client) CountContributions(ctx context.Context, username string) (model.ContributionCounts, error) {
	login := strings.TrimSpace(username)
	if login == "" {
		return model.ContributionCounts{}, fmt.Errorf("username is required")
	}

	counts := model.ContributionCounts{}
	queries := []struct {
		query  string
		target *int
	}{
		{query: fmt.Sprintf("author:%s type:pr", login), target: &counts.PullRequests},
		{query: fmt.Sprintf("author:%s type:issue", login), target: &counts.Issues},
	}
	for _, q := range queries {
		total, err := withClientRetry(ctx, c, c.retry, "search_issues", func(ctx context.Context) (int, error) {
			result, resp, err := c.rest.Search.Issues(ctx, q.query, &github.SearchOptions{
				ListOptions: github.ListOptions{PerPage: 1},
			})
			c.observeREST("search_issues", resp, err)
			if err != nil {
				return 0, err
			}
			return result.GetTotal(), nil
		})
		if err != nil {
			if !lenient(err) {
				return model.ContributionCounts{}, fmt.Errorf("count contributions for %s: %w", login, err)
			}
			c.logger.Warn("contribution count failed; using zero", zap.String("login", login), zap.String("query", q.query), zap.Error(err))
			continue
		}
		*q.target = total
	}
	return counts, nil
}

// FetchEventTimestamps lists the creation times of a user's recent public events.
func (c *Client) FetchEventTimestamps(ctx context.Context, username string) ([]time.Time, error) {
	login := strings.TrimSpace(username)
	if login == "" {
		return nil, fmt.Errorf("username is required")
	}

	opts := &github.ListOptions{PerPage: maxPageSize}
	var timestamps []time.Time
	for page := 0; page < maxEventPages; page++ {
		events, resp, err := withRESTRetry(ctx, c, "user_events", func(ctx context.Context) ([]*github.Event, *github.Response, error) {
			return c.rest.Activity.ListEventsPerformedByUser(ctx, login, true, opts)
		})
		if err != nil {
			if IsNotFound(err) {
				return nil, fmt.Errorf("list events for %s: %w", login, ErrNotFound)
			}
			return nil, fmt.Errorf("list events for %s: %w", login, err)
		}
		for _, event := range events {
			createdAt := event.GetCreatedAt()
			if createdAt.IsZero() {
				continue
			}
			timestamps = append(timestamps, createdAt.Time.UTC())
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return timestamps, nil
}

type restPage[T any] struct {
	items T
	resp  *github.Response
}

// withRESTRetry retries a paginated go-github call and keeps its response.
func withRESTRetry[T any](
	ctx context.Context,
	c *Client,
	endpoint string,
	call func(ctx context.Context) (T, *github.Response, error),
) (T, *github.Response, error) {
	page, err := withClientRetry(ctx, c, c.retry, endpoint, func(ctx context.Context) (restPage[T], error) {
		items, resp, err := call(ctx)
		c.observeREST(endpoint, resp, err)
		return restPage[T]{items: items, resp: resp}, err
	})
	return page.items, page.resp, err
}
