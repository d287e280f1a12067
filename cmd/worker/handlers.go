package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"selfpm/pkg/domain"
	"selfpm/pkg/worker"
)

type handlers struct {
	logger      logrus.FieldLogger
	acknowledge bool
}

func (h *handlers) newIssue(ctx context.Context, evt *worker.Event) error {
	logger := h.logger.WithFields(logrus.Fields{"project": evt.Project, "request_id": evt.RequestID})
	issue, err := h.issue(evt)
	if err != nil {
		return err
	}
	kind := "issue"
	if issue.PullRequest() {
		kind = "pull request"
	}
	logger.WithField("number", issue.Number()).Infof("new %s", kind)
	if !h.acknowledge {
		return nil
	}
	_, err = issue.Comments().Post(ctx, fmt.Sprintf("Thanks, this %s is now tracked.", kind))
	return errors.Wrapf(err, "acknowledge #%d", issue.Number())
}

func (h *handlers) reopened(_ context.Context, evt *worker.Event) error {
	issue, err := h.issue(evt)
	if err != nil {
		return err
	}
	h.logger.WithFields(logrus.Fields{
		"project": evt.Project,
		"number":  issue.Number(),
	}).Info("reopened")
	return nil
}

func (h *handlers) assignedTasks(_ context.Context, evt *worker.Event) error {
	h.logger.WithField("project", evt.Project).Info("review of assigned tasks")
	return nil
}

func (h *handlers) issue(evt *worker.Event) (domain.Issue, error) {
	classified, err := worker.DomainEvent(evt)
	if err != nil {
		return nil, err
	}
	return classified.Issue()
}
