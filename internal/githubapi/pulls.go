package githubapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/github-insights/internal/model"
	"go.uber.org/zap"
)

const pullRequestsQuery = `query($owner: String!, $name: String!, $first: Int!, $after: String) {
  repository(owner: $owner, name: $name) {
    pullRequests(first: $first, after: $after, orderBy: {field: CREATED_AT, direction: DESC}) {
      pageInfo { hasNextPage endCursor }
      nodes {
        number
        createdAt
        author { login avatarUrl }
        reviews(first: 50) {
          nodes {
            state
            submittedAt
            author { login }
          }
        }
      }
    }
  }
}`

// PullRequestCap returns the maximum number of pull requests fetched for an access mode.
func PullRequestCap(authenticated bool) int {
	if authenticated {
		return 1000
	}
	return 200
}

type pullRequestsData struct {
	Repository *struct {
		PullRequests struct {
			PageInfo pageInfo          `json:"pageInfo"`
			Nodes    []pullRequestNode `json:"nodes"`
		} `json:"pullRequests"`
	} `json:"repository"`
}

type pullRequestNode struct {
	Number    int          `json:"number"`
	CreatedAt string       `json:"createdAt"`
	Author    *userPayload `json:"author"`
	Reviews   struct {
		Nodes []struct {
			State       string       `json:"state"`
			SubmittedAt string       `json:"submittedAt"`
			Author      *userPayload `json:"author"`
		} `json:"nodes"`
	} `json:"reviews"`
}

// FetchPullRequests pages through pull requests newest first, stopping at the
// first one created before the window or at the access-mode cap.
func (c *Client) FetchPullRequests(ctx context.Context, owner, repo string, days *int) ([]model.PullRequestRecord, error) {
	trimmedOwner := strings.TrimSpace(owner)
	trimmedRepo := strings.TrimSpace(repo)
	if trimmedOwner == "" {
		return nil, fmt.Errorf("owner is required")
	}
	if trimmedRepo == "" {
		return nil, fmt.Errorf("repo is required")
	}
	if days != nil && *days <= 0 {
		return nil, fmt.Errorf("days must be > 0")
	}

	var since time.Time
	if days != nil {
		since = c.Now().UTC().AddDate(0, 0, -*days)
	}

	capacity := PullRequestCap(c.authenticated)
	pulls := make([]model.PullRequestRecord, 0, min(capacity, maxPageSize))
	cursor := ""
	maxPages := pageBudget(capacity)
	for pages := 0; len(pulls) < capacity && pages < maxPages; pages++ {
		variables := map[string]any{
			"owner": trimmedOwner,
			"name":  trimmedRepo,
			"first": min(maxPageSize, capacity-len(pulls)),
		}
		if cursor != "" {
			variables["after"] = cursor
		}

		data, err := withClientRetry(ctx, c, PageRetryConfig(), "pull_requests", func(ctx context.Context) (pullRequestsData, error) {
			var page pullRequestsData
			err := c.graphQL(ctx, "pull_requests", pullRequestsQuery, variables, &page)
			return page, err
		})
		if err != nil {
			return nil, fmt.Errorf("fetch pull requests for %s/%s: %w", trimmedOwner, trimmedRepo, err)
		}
		if data.Repository == nil {
			return nil, fmt.Errorf("fetch pull requests for %s/%s: %w", trimmedOwner, trimmedRepo, ErrNotFound)
		}

		connection := data.Repository.PullRequests
		for _, node := range connection.Nodes {
			record := pullRequestRecordFromNode(node)
			if !since.IsZero() && record.CreatedAt.Before(since) {
				c.logger.Debug("pull request window exhausted", zap.Int("pulls", len(pulls)))
				return pulls, nil
			}
			pulls = append(pulls, record)
			if len(pulls) >= capacity {
				break
			}
		}

		if !connection.PageInfo.HasNextPage || connection.PageInfo.EndCursor == "" || len(connection.Nodes) == 0 {
			break
		}
		cursor = connection.PageInfo.EndCursor
	}
	return pulls, nil
}

func pullRequestRecordFromNode(node pullRequestNode) model.PullRequestRecord {
	record := model.PullRequestRecord{
		Number:    node.Number,
		CreatedAt: parseRFC3339(node.CreatedAt),
		Author:    model.Unresolvable(),
	}
	if node.Author != nil {
		record.Author = model.ResolveIdentity(node.Author.Login, "")
		record.AuthorName = node.Author.Login
		record.AvatarURL = node.Author.AvatarURL
	}
	for _, review := range node.Reviews.Nodes {
		reviewer := model.Unresolvable()
		if review.Author != nil {
			reviewer = model.ResolveIdentity(review.Author.Login, "")
		}
		record.Reviews = append(record.Reviews, model.ReviewRecord{
			Author:      reviewer,
			State:       review.State,
			SubmittedAt: parseRFC3339(review.SubmittedAt),
		})
	}
	return record
}
