package model

import (
	"time"
)

const unknownIdentity = "Unknown"

// Identity is a contributor identity that is either resolved to a login or
// display name, or unresolvable. The zero value is unresolvable.
type Identity struct {
	value    string
	resolved bool
}

// ResolveIdentity applies the login, display name, unresolvable fallback chain.
func ResolveIdentity(login, displayName string) Identity {
	if login != "" {
		return Identity{value: login, resolved: true}
	}
	if displayName != "" {
		return Identity{value: displayName, resolved: true}
	}
	return Identity{}
}

// Unresolvable returns the identity used when neither login nor name is known.
func Unresolvable() Identity {
	return Identity{}
}

// Value returns the resolved identity and whether it resolved.
func (i Identity) Value() (string, bool) {
	return i.value, i.resolved
}

// Resolved reports whether the identity resolved to a login or display name.
func (i Identity) Resolved() bool {
	return i.resolved
}

// String renders unresolvable identities as "Unknown".
func (i Identity) String() string {
	if !i.resolved {
		return unknownIdentity
	}
	return i.value
}

// MarshalText renders the identity for JSON payloads.
func (i Identity) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// RateLimitInfo is a snapshot of the remaining GitHub call budget.
type RateLimitInfo struct {
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	Used       int       `json:"used"`
	Resource   string    `json:"resource,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// CommitRecord is one commit from a repository's default branch history.
type CommitRecord struct {
	CommittedAt time.Time `json:"committed_at"`
	Author      Identity  `json:"author"`
	AuthorName  string    `json:"author_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Additions   int       `json:"additions"`
	Deletions   int       `json:"deletions"`
	Message     string    `json:"message"`
}

// ReviewRecord is one submitted pull request review.
type ReviewRecord struct {
	Author      Identity  `json:"author"`
	State       string    `json:"state"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// PullRequestRecord is one pull request with its reviews.
type PullRequestRecord struct {
	Number     int            `json:"number"`
	Author     Identity       `json:"author"`
	AuthorName string         `json:"author_name,omitempty"`
	AvatarURL  string         `json:"avatar_url,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Reviews    []ReviewRecord `json:"reviews"`
}

// ContributorDetailStat is one ranked contributor of a repository.
type ContributorDetailStat struct {
	Identity     Identity `json:"identity"`
	DisplayName  string   `json:"display_name"`
	AvatarURL    string   `json:"avatar_url,omitempty"`
	Commits      int      `json:"commits"`
	Additions    int      `json:"additions"`
	Deletions    int      `json:"deletions"`
	PullRequests int      `json:"pull_requests"`
	Reviews      int      `json:"reviews"`
	Score        int      `json:"score"`
	Rank         int      `json:"rank"`
}

// ContributionDay is one day of a user's contribution calendar.
type ContributionDay struct {
	Date              time.Time `json:"date"`
	ContributionCount int       `json:"contribution_count"`
}

// Profile is the subset of a user's public profile used for insight scoring.
type Profile struct {
	Login       string    `json:"login"`
	Name        string    `json:"name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Followers   int       `json:"followers"`
	PublicRepos int       `json:"public_repos"`
	TotalStars  int       `json:"total_stars"`
	TotalForks  int       `json:"total_forks"`
	CreatedAt   time.Time `json:"created_at"`
}

// AccountYears returns the account age in fractional years at now.
func (p Profile) AccountYears(now time.Time) float64 {
	if p.CreatedAt.IsZero() || now.Before(p.CreatedAt) {
		return 0
	}
	return now.Sub(p.CreatedAt).Hours() / (24 * 365.25)
}

// ContributionCounts are search-derived totals for a user.
type ContributionCounts struct {
	PullRequests int `json:"pull_requests"`
	Issues       int `json:"issues"`
}
