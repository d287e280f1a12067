package gitlab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceivedIssueAndMergeRequest(t *testing.T) {
	provider, err := NewProvider("token", "")
	require.NoError(t, err)
	issues := provider.Repo("mihai", "test").Issues()

	issue, err := issues.Received(json.RawMessage(`{"id":100,"iid":4,"title":"Bug"}`))
	require.NoError(t, err)
	assert.Equal(t, 4, issue.Number())
	assert.False(t, issue.PullRequest())

	mr, err := issues.Received(json.RawMessage(`{"id":101,"iid":5,"source_branch":"feature"}`))
	require.NoError(t, err)
	assert.True(t, mr.PullRequest())

	_, err = issues.Received(json.RawMessage(`{"id":102}`))
	assert.Error(t, err)
	_, err = issues.Received(json.RawMessage(`{`))
	assert.Error(t, err)
}

func TestPostNoteRoutesByKind(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1,"body":"on it"}`))
	}))
	defer server.Close()

	provider, err := NewProvider("token", server.URL+"/api/v4")
	require.NoError(t, err)
	issues := provider.Repo("mihai", "test").Issues()

	issue, err := issues.Received(json.RawMessage(`{"iid":4}`))
	require.NoError(t, err)
	note, err := issue.Comments().Post(context.Background(), "on it")
	require.NoError(t, err)
	assert.Equal(t, "on it", note.Body())

	mr, err := issues.Received(json.RawMessage(`{"iid":5,"source_branch":"feature"}`))
	require.NoError(t, err)
	_, err = mr.Comments().Post(context.Background(), "on it")
	require.NoError(t, err)

	require.Len(t, paths, 2)
	assert.True(t, strings.HasSuffix(paths[0], "/issues/4/notes"), paths[0])
	assert.True(t, strings.HasSuffix(paths[1], "/merge_requests/5/notes"), paths[1])
}
