package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"hash"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/webhooks/v6/github"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"selfpm/internal"
	"selfpm/pkg/core"
	"selfpm/pkg/domain"
	"selfpm/pkg/event"
	ghprovider "selfpm/pkg/providers/github"
)

// ProjectFinder looks up the project a delivery belongs to.
type ProjectFinder interface {
	FindProject(ctx context.Context, provider, repoFullName string) (domain.Project, error)
	// WebhookSecret returns the project's own secret, or "" to use the
	// handler default.
	WebhookSecret(ctx context.Context, provider, repoFullName string) (string, error)
}

// GitHubHandler verifies GitHub deliveries, binds them to a managed project
// and lets the project resolve the classified event.
type GitHubHandler struct {
	secret      string
	projects    ProjectFinder
	logger      logrus.FieldLogger
	maxBody     int64
	debugEvents bool
}

// githubEvents are the events the webhook library decodes. Other event names
// are verified and passed through undecoded.
var githubEvents = []github.Event{
	github.CheckRunEvent,
	github.CheckSuiteEvent,
	github.CommitCommentEvent,
	github.CreateEvent,
	github.DeleteEvent,
	github.DependabotAlertEvent,
	github.DeployKeyEvent,
	github.DeploymentEvent,
	github.DeploymentStatusEvent,
	github.ForkEvent,
	github.GollumEvent,
	github.InstallationEvent,
	github.InstallationRepositoriesEvent,
	github.IntegrationInstallationEvent,
	github.IntegrationInstallationRepositoriesEvent,
	github.IssueCommentEvent,
	github.IssuesEvent,
	github.LabelEvent,
	github.MemberEvent,
	github.MembershipEvent,
	github.MilestoneEvent,
	github.MetaEvent,
	github.OrganizationEvent,
	github.OrgBlockEvent,
	github.PageBuildEvent,
	github.PingEvent,
	github.ProjectCardEvent,
	github.ProjectColumnEvent,
	github.ProjectEvent,
	github.PublicEvent,
	github.PullRequestEvent,
	github.PullRequestReviewEvent,
	github.PullRequestReviewCommentEvent,
	github.PushEvent,
	github.ReleaseEvent,
	github.RepositoryEvent,
	github.RepositoryVulnerabilityAlertEvent,
	github.SecurityAdvisoryEvent,
	github.StatusEvent,
	github.TeamEvent,
	github.TeamAddEvent,
	github.WatchEvent,
	github.WorkflowDispatchEvent,
	github.WorkflowJobEvent,
	github.WorkflowRunEvent,
	github.GitHubAppAuthorizationEvent,
}

// NewGitHubHandler creates a new GitHubHandler. secret is used for projects
// that have none of their own.
func NewGitHubHandler(secret string, projects ProjectFinder, logger logrus.FieldLogger, maxBody int64, debugEvents bool) *GitHubHandler {
	if logger == nil {
		logger = internal.NewLogger("webhook")
	}
	return &GitHubHandler{
		secret:      secret,
		projects:    projects,
		logger:      logger,
		maxBody:     maxBody,
		debugEvents: debugEvents,
	}
}

// ServeHTTP handles an incoming HTTP request.
func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	internal.IncRequest(ghprovider.Name)
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	reqID := internal.RequestID(r)
	w.Header().Set(internal.RequestIDHeader, reqID)
	ctx := internal.ContextWithRequestID(r.Context(), reqID)
	eventName := r.Header.Get("X-GitHub-Event")
	logger := internal.WithRequestID(h.logger, reqID).WithField("event", eventName)

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		internal.IncParseError(ghprovider.Name)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if h.debugEvents {
		logger.WithField("payload", string(rawBody)).Debug("github delivery")
	}

	fullName := gjson.GetBytes(rawBody, "repository.full_name").String()
	secret, err := h.secretFor(ctx, fullName)
	if err != nil {
		logger.WithError(err).Error("webhook secret lookup failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	payload, err := parseGitHub(r, rawBody, secret)
	if err != nil {
		internal.IncParseError(ghprovider.Name)
		logger.WithError(err).Warn("github parse failed")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if _, ok := payload.(github.PingPayload); ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	if fullName == "" {
		logger.Debug("delivery carries no repository")
		w.WriteHeader(http.StatusAccepted)
		return
	}

	logger = logger.WithField("project", fullName)
	project, err := h.projects.FindProject(ctx, ghprovider.Name, fullName)
	if errors.Is(err, core.ErrUnknownProject) {
		logger.Info("delivery for unmanaged repository")
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err != nil {
		logger.WithError(err).Error("project lookup failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	evt := event.New(project, eventName, rawBody, nil)
	if err := project.Resolve(ctx, evt); err != nil {
		logger.WithError(err).WithField("type", evt.Type().String()).Error("resolve failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *GitHubHandler) secretFor(ctx context.Context, fullName string) (string, error) {
	if fullName == "" || h.projects == nil {
		return h.secret, nil
	}
	secret, err := h.projects.WebhookSecret(ctx, ghprovider.Name, fullName)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return h.secret, nil
	}
	return secret, nil
}

// parseGitHub verifies and decodes a delivery. X-Hub-Signature-256 is
// checked when present; otherwise the legacy SHA1 X-Hub-Signature must match.
// Events the library does not know are returned as raw JSON.
func parseGitHub(r *http.Request, rawBody []byte, secret string) (interface{}, error) {
	eventName := r.Header.Get("X-GitHub-Event")
	if eventName == "" {
		return nil, github.ErrMissingGithubEventHeader
	}
	signed256 := r.Header.Get("X-Hub-Signature-256")
	if secret != "" && signed256 != "" && !verifyGitHubHMAC(sha256.New, "sha256=", secret, rawBody, signed256) {
		return nil, github.ErrHMACVerificationFailed
	}

	if !knownGitHubEvent(eventName) {
		if secret != "" && signed256 == "" {
			if r.Header.Get("X-Hub-Signature") == "" {
				return nil, github.ErrMissingHubSignatureHeader
			}
			if !verifyGitHubHMAC(sha1.New, "sha1=", secret, rawBody, r.Header.Get("X-Hub-Signature")) {
				return nil, github.ErrHMACVerificationFailed
			}
		}
		if !gjson.ValidBytes(rawBody) {
			return nil, github.ErrParsingPayload
		}
		return json.RawMessage(rawBody), nil
	}

	var opts []github.Option
	if secret != "" && signed256 == "" {
		if signed := r.Header.Get("X-Hub-Signature"); signed != "" && !strings.HasPrefix(signed, "sha1=") {
			return nil, github.ErrHMACVerificationFailed
		}
		opts = append(opts, github.Options.Secret(secret))
	}
	hook, err := github.New(opts...)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(rawBody))
	return hook.Parse(r, githubEvents...)
}

func knownGitHubEvent(name string) bool {
	for _, evt := range githubEvents {
		if string(evt) == name {
			return true
		}
	}
	return false
}

func verifyGitHubHMAC(newHash func() hash.Hash, prefix, secret string, body []byte, signature string) bool {
	if secret == "" || len(body) == 0 || !strings.HasPrefix(signature, prefix) {
		return false
	}
	mac := hmac.New(newHash, []byte(secret))
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.TrimPrefix(signature, prefix)), []byte(expected))
}
