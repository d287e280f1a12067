// Package gitlab implements the domain provider on top of the GitLab API.
// Issues and merge requests are addressed by their project-scoped iid.
package gitlab

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	gl "github.com/xanzy/go-gitlab"

	"selfpm/pkg/domain"
)

const Name = "gitlab"

type Provider struct {
	client *gl.Client
}

// NewProvider authenticates with a personal or project access token. An
// empty baseURL targets gitlab.com.
func NewProvider(token, baseURL string) (*Provider, error) {
	var opts []gl.ClientOptionFunc
	if base := strings.TrimRight(baseURL, "/"); base != "" {
		opts = append(opts, gl.WithBaseURL(base))
	}
	client, err := gl.NewClient(token, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create gitlab client")
	}
	return &Provider{client: client}, nil
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Repo(owner, name string) domain.Repo {
	return &repo{client: p.client, path: owner + "/" + name}
}

type repo struct {
	client *gl.Client
	path   string
}

func (r *repo) FullName() string { return r.path }

func (r *repo) Issues() domain.Issues { return issues{repo: r} }

type issues struct {
	repo *repo
}

// Received accepts an issue or merge request object; merge requests carry a
// source branch.
func (i issues) Received(raw json.RawMessage) (domain.Issue, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("decode gitlab issue: invalid json")
	}
	iid := gjson.GetBytes(raw, "iid").Int()
	if iid <= 0 {
		return nil, errors.Errorf("gitlab issue in %s has no iid", i.repo.path)
	}
	return &issue{
		repo:         i.repo,
		iid:          int(iid),
		mergeRequest: gjson.GetBytes(raw, "source_branch").Exists(),
		raw:          raw,
	}, nil
}

type issue struct {
	repo         *repo
	iid          int
	mergeRequest bool
	raw          json.RawMessage
}

func (i *issue) Number() int { return i.iid }

func (i *issue) PullRequest() bool { return i.mergeRequest }

func (i *issue) Comments() domain.Comments { return notes{issue: i} }

func (i *issue) JSON() json.RawMessage { return i.raw }

type notes struct {
	issue *issue
}

func (n notes) Received(raw json.RawMessage) (domain.Comment, error) {
	var decoded gl.Note
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Wrap(err, "decode gitlab note")
	}
	return note{body: decoded.Body, raw: raw}, nil
}

func (n notes) Post(ctx context.Context, body string) (domain.Comment, error) {
	r := n.issue.repo
	var (
		created *gl.Note
		err     error
	)
	if n.issue.mergeRequest {
		created, _, err = r.client.Notes.CreateMergeRequestNote(r.path, n.issue.iid,
			&gl.CreateMergeRequestNoteOptions{Body: &body}, gl.WithContext(ctx))
	} else {
		created, _, err = r.client.Notes.CreateIssueNote(r.path, n.issue.iid,
			&gl.CreateIssueNoteOptions{Body: &body}, gl.WithContext(ctx))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "comment on %s!%d", r.path, n.issue.iid)
	}
	raw, err := json.Marshal(created)
	if err != nil {
		return nil, err
	}
	return note{body: created.Body, raw: raw}, nil
}

type note struct {
	body string
	raw  json.RawMessage
}

func (n note) Body() string { return n.body }

func (n note) JSON() json.RawMessage { return n.raw }
