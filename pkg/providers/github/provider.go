// Package github implements the domain provider on top of the GitHub API.
package github

import (
	"context"
	"encoding/json"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"selfpm/pkg/domain"
)

const (
	Name      = "github"
	publicAPI = "https://api.github.com"
)

// Provider is GitHub, seen through one account's token.
type Provider struct {
	client *gh.Client
}

// NewProvider authenticates with token. An empty or public baseURL targets
// github.com; anything else is treated as a GitHub Enterprise API root.
func NewProvider(ctx context.Context, token, baseURL string) (*Provider, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)

	base := strings.TrimRight(baseURL, "/")
	if base == "" || base == publicAPI {
		return &Provider{client: gh.NewClient(httpClient)}, nil
	}
	client, err := gh.NewEnterpriseClient(base, base, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "create github enterprise client")
	}
	return &Provider{client: client}, nil
}

// NewProviderWithClient wraps an existing client.
func NewProviderWithClient(client *gh.Client) *Provider {
	return &Provider{client: client}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Repo(owner, name string) domain.Repo {
	return &repo{client: p.client, owner: owner, name: name}
}

type repo struct {
	client *gh.Client
	owner  string
	name   string
}

func (r *repo) FullName() string { return r.owner + "/" + r.name }

func (r *repo) Issues() domain.Issues { return issues{repo: r} }

type issues struct {
	repo *repo
}

// Received materializes an issue or pull request from its webhook fragment.
// Pull requests are recognized by their head ref or by the pull_request links
// GitHub adds to issues that are pull requests.
func (i issues) Received(raw json.RawMessage) (domain.Issue, error) {
	var decoded gh.Issue
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Wrap(err, "decode github issue")
	}
	if decoded.GetNumber() <= 0 {
		return nil, errors.Errorf("github issue in %s has no number", i.repo.FullName())
	}
	return &issue{
		repo:        i.repo,
		number:      decoded.GetNumber(),
		pullRequest: decoded.IsPullRequest() || gjson.GetBytes(raw, "head").Exists(),
		raw:         raw,
	}, nil
}

type issue struct {
	repo        *repo
	number      int
	pullRequest bool
	raw         json.RawMessage
}

func (i *issue) Number() int { return i.number }

func (i *issue) PullRequest() bool { return i.pullRequest }

func (i *issue) Comments() domain.Comments { return comments{issue: i} }

func (i *issue) JSON() json.RawMessage { return i.raw }

type comments struct {
	issue *issue
}

func (c comments) Received(raw json.RawMessage) (domain.Comment, error) {
	var decoded gh.IssueComment
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Wrap(err, "decode github comment")
	}
	return comment{body: decoded.GetBody(), raw: raw}, nil
}

// Post comments on the issue. Pull requests share the issue comment thread.
func (c comments) Post(ctx context.Context, body string) (domain.Comment, error) {
	r := c.issue.repo
	created, _, err := r.client.Issues.CreateComment(ctx, r.owner, r.name, c.issue.number, &gh.IssueComment{Body: &body})
	if err != nil {
		return nil, errors.Wrapf(err, "comment on %s#%d", r.FullName(), c.issue.number)
	}
	raw, err := json.Marshal(created)
	if err != nil {
		return nil, err
	}
	return comment{body: created.GetBody(), raw: raw}, nil
}

type comment struct {
	body string
	raw  json.RawMessage
}

func (c comment) Body() string { return c.body }

func (c comment) JSON() json.RawMessage { return c.raw }
