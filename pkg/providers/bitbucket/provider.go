// Package bitbucket implements the domain provider on top of the Bitbucket
// Cloud API.
package bitbucket

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	bb "github.com/ktrysmt/go-bitbucket"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"selfpm/pkg/domain"
)

const Name = "bitbucket"

// ErrIssueComments is returned when commenting on a Bitbucket issue; only
// pull request comments are supported.
var ErrIssueComments = errors.New("bitbucket issue comments are not supported")

type Provider struct {
	client *bb.Client
}

// NewProvider authenticates with an OAuth bearer token. The client reads its
// API root from BITBUCKET_API_BASE_URL, which baseURL overrides when set.
func NewProvider(token, baseURL string) (*Provider, error) {
	if token == "" {
		return nil, errors.New("bitbucket token is required")
	}
	if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
		_ = os.Setenv("BITBUCKET_API_BASE_URL", base)
	}
	client, err := bb.NewOAuthbearerToken(token)
	if err != nil {
		return nil, errors.Wrap(err, "create bitbucket client")
	}
	return &Provider{client: client}, nil
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Repo(owner, name string) domain.Repo {
	return &repo{client: p.client, owner: owner, slug: name}
}

type repo struct {
	client *bb.Client
	owner  string
	slug   string
}

func (r *repo) FullName() string { return r.owner + "/" + r.slug }

func (r *repo) Issues() domain.Issues { return issues{repo: r} }

type issues struct {
	repo *repo
}

// Received accepts an issue or pull request object; pull requests carry a
// source.
func (i issues) Received(raw json.RawMessage) (domain.Issue, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("decode bitbucket issue: invalid json")
	}
	id := gjson.GetBytes(raw, "id").Int()
	if id <= 0 {
		return nil, errors.Errorf("bitbucket issue in %s has no id", i.repo.FullName())
	}
	return &issue{
		repo:        i.repo,
		id:          int(id),
		pullRequest: gjson.GetBytes(raw, "source").Exists(),
		raw:         raw,
	}, nil
}

type issue struct {
	repo        *repo
	id          int
	pullRequest bool
	raw         json.RawMessage
}

func (i *issue) Number() int { return i.id }

func (i *issue) PullRequest() bool { return i.pullRequest }

func (i *issue) Comments() domain.Comments { return comments{issue: i} }

func (i *issue) JSON() json.RawMessage { return i.raw }

type comments struct {
	issue *issue
}

func (c comments) Received(raw json.RawMessage) (domain.Comment, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("decode bitbucket comment: invalid json")
	}
	return comment{body: gjson.GetBytes(raw, "content.raw").String(), raw: raw}, nil
}

func (c comments) Post(ctx context.Context, body string) (domain.Comment, error) {
	if !c.issue.pullRequest {
		return nil, ErrIssueComments
	}
	r := c.issue.repo
	opts := (&bb.PullRequestCommentOptions{
		Owner:         r.owner,
		RepoSlug:      r.slug,
		PullRequestID: strconv.Itoa(c.issue.id),
		Content:       body,
	}).WithContext(ctx)
	created, err := r.client.Repositories.PullRequests.AddComment(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "comment on %s#%d", r.FullName(), c.issue.id)
	}
	raw, err := json.Marshal(created)
	if err != nil {
		return nil, err
	}
	return comment{body: body, raw: raw}, nil
}

type comment struct {
	body string
	raw  json.RawMessage
}

func (c comment) Body() string { return c.body }

func (c comment) JSON() json.RawMessage { return c.raw }
