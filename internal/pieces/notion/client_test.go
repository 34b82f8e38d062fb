package notion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pieceflow/pieceflow/pkg/errors"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClientWithToken("secret_test")
	require.NoError(t, err)
	client.SetBaseURL(server.URL)
	return client
}

func TestClientSendsAuthAndVersionHeaders(t *testing.T) {
	var gotAuth, gotVersion string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("Notion-Version")
		w.Write([]byte(`{"id":"db1","title":[],"properties":{}}`))
	}))

	_, err := client.RetrieveDatabase(context.Background(), "db1")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret_test", gotAuth)
	assert.Equal(t, notionVersion, gotVersion)
}

func TestNotFoundSuggestsSharingTheIntegration(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":"object_not_found","message":"Could not find database"}`))
	}))

	_, err := client.RetrieveDatabase(context.Background(), "db1")
	require.Error(t, err)

	var serr *errors.ServiceError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "notion", serr.Service)
	assert.Equal(t, "object_not_found", serr.Code)
	assert.Contains(t, serr.Suggestion, "Share the page or database")
}

func TestCapabilityErrorSuggestsGrantingCapabilities(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code":"restricted_resource","message":"Insufficient permissions for this endpoint"}`))
	}))

	_, err := client.CreateComment(context.Background(), "page1", "hi")
	require.Error(t, err)

	var serr *errors.ServiceError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Suggestion, "capabilities")
}

func TestSearchDatabasesFollowsPagination(t *testing.T) {
	calls := 0
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"results":[{"id":"db1","title":[{"plain_text":"Tasks"}]}],"next_cursor":"c2","has_more":false}`))
	}))

	databases, _, hasMore, err := client.SearchDatabases(context.Background(), "", "")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.False(t, hasMore)
	require.Len(t, databases, 1)
	assert.Equal(t, "Tasks", databases[0].DisplayTitle())
}
