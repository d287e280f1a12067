package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"selfpm/pkg/review"
	"selfpm/pkg/storage"
)

// ProjectsHandler lists managed projects, optionally for one manager.
type ProjectsHandler struct {
	Store  storage.Store
	Logger logrus.FieldLogger
}

type projectView struct {
	Provider     string `json:"provider"`
	RepoFullName string `json:"repo_full_name"`
	ManagerID    string `json:"manager_id"`
}

func (h *ProjectsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Store == nil {
		http.Error(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}

	managerID := strings.TrimSpace(r.URL.Query().Get("manager"))
	var managerIDs []string
	if managerID != "" {
		managerIDs = []string{managerID}
	} else {
		managers, err := h.Store.ListManagers(r.Context())
		if err != nil {
			h.fail(w, err, "list managers failed")
			return
		}
		for _, m := range managers {
			managerIDs = append(managerIDs, m.ID)
		}
	}

	views := make([]projectView, 0)
	for _, id := range managerIDs {
		records, err := h.Store.ListProjects(r.Context(), id)
		if err != nil {
			h.fail(w, err, "list projects failed")
			return
		}
		for _, record := range records {
			views = append(views, projectView{
				Provider:     record.Provider,
				RepoFullName: record.RepoFullName,
				ManagerID:    record.ManagerID,
			})
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *ProjectsHandler) fail(w http.ResponseWriter, err error, msg string) {
	if h.Logger != nil {
		h.Logger.WithError(err).Error(msg)
	}
	http.Error(w, msg, http.StatusInternalServerError)
}

// Sweeper runs one review sweep.
type Sweeper interface {
	ReviewAssignedTasks(ctx context.Context) (review.Report, error)
}

// ReviewHandler runs a sweep on demand and answers with its report.
type ReviewHandler struct {
	Reviewer Sweeper
	Logger   logrus.FieldLogger
}

func (h *ReviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Reviewer == nil {
		http.Error(w, "review not configured", http.StatusServiceUnavailable)
		return
	}

	report, err := h.Reviewer.ReviewAssignedTasks(r.Context())
	switch {
	case errors.Is(err, review.ErrReviewInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		if h.Logger != nil {
			h.Logger.WithError(err).Error("on-demand review failed")
		}
		http.Error(w, "review failed", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
