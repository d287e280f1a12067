package review

import (
	"github.com/pkg/errors"

	"selfpm/pkg/domain"
)

// assignedTasks is the event a project receives during a sweep. It carries no
// payload, only the project under review.
type assignedTasks struct {
	project domain.Project
}

func (e assignedTasks) Project() domain.Project { return e.project }

func (e assignedTasks) Type() domain.EventType { return domain.AssignedTasks }

func (e assignedTasks) Commit() domain.Commit { return nil }

func (e assignedTasks) Issue() (domain.Issue, error) {
	return nil, errors.Wrap(domain.ErrNotApplicable, "review has no issue")
}

func (e assignedTasks) Comment() (domain.Comment, error) { return nil, nil }
