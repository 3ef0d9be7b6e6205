package githubapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/github-insights/internal/model"
	"go.uber.org/zap"
)

const (
	maxPageSize = 100

	commitHistoryQuery = `query($owner: String!, $name: String!, $first: Int!, $after: String, $since: GitTimestamp) {
  repository(owner: $owner, name: $name) {
    defaultBranchRef {
      target {
        ... on Commit {
          history(first: $first, after: $after, since: $since) {
            pageInfo { hasNextPage endCursor }
            nodes {
              committedDate
              additions
              deletions
              message
              author { name user { login avatarUrl } }
            }
          }
        }
      }
    }
  }
}`
)

// CommitCap returns the maximum number of commits fetched for an access mode
// and window. A nil days means an unbounded window.
func CommitCap(authenticated bool, days *int) int {
	if !authenticated {
		if days != nil && *days <= 7 {
			return 200
		}
		return 300
	}
	if days == nil {
		return 3000
	}
	switch {
	case *days <= 7:
		return 500
	case *days <= 30:
		return 2000
	case *days <= 365:
		return 3000
	default:
		return 5000
	}
}

// PageRetryConfig is the inner per-page retry: three attempts waiting 1s then 2s.
func PageRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

type commitHistoryData struct {
	Repository *struct {
		DefaultBranchRef *struct {
			Target *struct {
				History *struct {
					PageInfo pageInfo            `json:"pageInfo"`
					Nodes    []commitHistoryNode `json:"nodes"`
				} `json:"history"`
			} `json:"target"`
		} `json:"defaultBranchRef"`
	} `json:"repository"`
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type commitHistoryNode struct {
	CommittedDate string `json:"committedDate"`
	Additions     int    `json:"additions"`
	Deletions     int    `json:"deletions"`
	Message       string `json:"message"`
	Author        *struct {
		Name string       `json:"name"`
		User *userPayload `json:"user"`
	} `json:"author"`
}

type userPayload struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatarUrl"`
}

// FetchCommitHistory pages through the default branch history, newest first,
// stopping at the adaptive cap for the client's access mode and window.
func (c *Client) FetchCommitHistory(ctx context.Context, owner, repo string, days *int) ([]model.CommitRecord, error) {
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

	capacity := CommitCap(c.authenticated, days)
	variables := map[string]any{
		"owner": trimmedOwner,
		"name":  trimmedRepo,
	}
	if days != nil {
		since := c.Now().UTC().AddDate(0, 0, -*days)
		variables["since"] = since.Format(time.RFC3339)
	}

	commits := make([]model.CommitRecord, 0, min(capacity, maxPageSize))
	cursor := ""
	pages := 0
	maxPages := pageBudget(capacity)
	for len(commits) < capacity && pages < maxPages {
		pageVariables := make(map[string]any, len(variables)+2)
		for key, value := range variables {
			pageVariables[key] = value
		}
		pageVariables["first"] = min(maxPageSize, capacity-len(commits))
		if cursor != "" {
			pageVariables["after"] = cursor
		}

		data, err := withClientRetry(ctx, c, PageRetryConfig(), "commit_history", func(ctx context.Context) (commitHistoryData, error) {
			var page commitHistoryData
			err := c.graphQL(ctx, "commit_history", commitHistoryQuery, pageVariables, &page)
			return page, err
		})
		if err != nil {
			return nil, fmt.Errorf("fetch commit history page %d for %s/%s: %w", pages+1, trimmedOwner, trimmedRepo, err)
		}
		pages++

		if data.Repository == nil {
			return nil, fmt.Errorf("fetch commit history for %s/%s: %w", trimmedOwner, trimmedRepo, ErrNotFound)
		}
		branch := data.Repository.DefaultBranchRef
		if branch == nil || branch.Target == nil || branch.Target.History == nil {
			c.logger.Debug("repository has no default branch history", zap.String("owner", trimmedOwner), zap.String("repo", trimmedRepo))
			return commits, nil
		}

		history := branch.Target.History
		for _, node := range history.Nodes {
			if len(commits) >= capacity {
				break
			}
			commits = append(commits, commitRecordFromNode(node))
		}

		if !history.PageInfo.HasNextPage || history.PageInfo.EndCursor == "" || len(history.Nodes) == 0 {
			break
		}
		cursor = history.PageInfo.EndCursor
	}

	c.logger.Debug(
		"fetched commit history",
		zap.String("owner", trimmedOwner),
		zap.String("repo", trimmedRepo),
		zap.Int("commits", len(commits)),
		zap.Int("pages", pages),
		zap.Int("cap", capacity),
	)
	return commits, nil
}

// pageBudget is the most page requests a fetch of capacity records may issue,
// even when upstream returns short pages.
func pageBudget(capacity int) int {
	return (capacity + maxPageSize - 1) / maxPageSize
}

func commitRecordFromNode(node commitHistoryNode) model.CommitRecord {
	record := model.CommitRecord{
		CommittedAt: parseRFC3339(node.CommittedDate),
		Additions:   node.Additions,
		Deletions:   node.Deletions,
		Message:     node.Message,
	}
	login := ""
	if node.Author != nil {
		record.AuthorName = node.Author.Name
		if node.Author.User != nil {
			login = node.Author.User.Login
			record.AvatarURL = node.Author.User.AvatarURL
		}
	}
	record.Author = model.ResolveIdentity(login, record.AuthorName)
	return record
}

func parseRFC3339(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
