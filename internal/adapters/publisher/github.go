package publisher

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
)

// PullRequest describes a pull request to open.
type PullRequest struct {
	Owner string
	Repo  string
	Title string
	Head  string
	Base  string
	Body  string
}

// PullRequestCreator opens a pull request and returns its HTML URL.
type PullRequestCreator interface {
	CreatePullRequest(ctx context.Context, pr PullRequest) (string, error)
}

// GitHubCreator opens pull requests through the GitHub REST API.
type GitHubCreator struct {
	client *github.Client
}

// NewGitHubCreator builds a creator authenticated with token. A non-empty
// baseURL points the client at a GitHub Enterprise or test server.
func NewGitHubCreator(token, baseURL string) (*GitHubCreator, error) {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		client.BaseURL = u
	}
	return &GitHubCreator{client: client}, nil
}

// CreatePullRequest opens pr and returns its HTML URL.
func (c *GitHubCreator) CreatePullRequest(ctx context.Context, pr PullRequest) (string, error) {
	created, _, err := c.client.PullRequests.Create(ctx, pr.Owner, pr.Repo, &github.NewPullRequest{
		Title: github.String(pr.Title),
		Head:  github.String(pr.Head),
		Base:  github.String(pr.Base),
		Body:  github.String(pr.Body),
	})
	if err != nil {
		return "", fmt.Errorf("create pull request %s/%s: %w", pr.Owner, pr.Repo, err)
	}
	if created.GetHTMLURL() == "" {
		return "", fmt.Errorf("create pull request %s/%s: response has no html url", pr.Owner, pr.Repo)
	}
	return created.GetHTMLURL(), nil
}
