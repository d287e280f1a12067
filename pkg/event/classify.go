// Package event classifies provider webhooks and lazily resolves the issue,
// pull request and comment they refer to.
package event

import "selfpm/pkg/domain"

const (
	NamePush        = "push"
	NameIssues      = "issues"
	NamePullRequest = "pull_request"
)

// entityKeys maps an event name to the payload key holding its issue-like entity.
var entityKeys = map[string]string{
	NameIssues:                    "issue",
	NamePullRequest:               "pull_request",
	"issue_comment":               "issue",
	"pull_request_review_comment": "pull_request",
}

// Classify derives the canonical type of a webhook from its event name and
// the payload action. Issues and pull requests classify identically.
func Classify(eventName, action string) domain.EventType {
	switch eventName {
	case NamePush:
		return domain.Push
	case NameIssues, NamePullRequest:
		switch action {
		case "opened":
			return domain.NewIssue
		case "reopened":
			return domain.ReopenedIssue
		}
	}
	return domain.Other(eventName)
}

// EntityKey returns the payload key of the issue-like entity carried by
// eventName, if any.
func EntityKey(eventName string) (string, bool) {
	key, ok := entityKeys[eventName]
	return key, ok
}
