package dispenser

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_Routes(t *testing.T) {
	server := httptest.NewServer(NewServer(New(), 0).Handler())
	defer server.Close()

	testCases := []struct {
		description  string
		method       string
		path         string
		expectStatus int
		expectBody   string
	}{
		{description: "first index", path: "/getid/job-1/2", expectStatus: http.StatusOK, expectBody: "0"},
		{description: "second index", path: "/getid/job-1/2", expectStatus: http.StatusOK, expectBody: "1"},
		{description: "exhausted", path: "/getid/job-1/2", expectStatus: http.StatusOK, expectBody: "-1"},
		{description: "still exhausted", path: "/getid/job-1/2", expectStatus: http.StatusOK, expectBody: "-1"},
		{description: "other job", path: "/getid/job-2/1", expectStatus: http.StatusOK, expectBody: "0"},
		{description: "non integer total", path: "/getid/job-3/abc", expectStatus: http.StatusBadRequest},
		{description: "health", path: "/healthz", expectStatus: http.StatusOK, expectBody: "ok"},
		{description: "metrics", path: "/metrics", expectStatus: http.StatusOK},
		{description: "unknown", path: "/getjob/job-1", expectStatus: http.StatusNotFound},
		{description: "reset needs delete", path: "/getid/job-1", expectStatus: http.StatusMethodNotAllowed},
		{description: "reset", method: http.MethodDelete, path: "/getid/job-1", expectStatus: http.StatusNoContent},
		{description: "restarted after reset", path: "/getid/job-1/2", expectStatus: http.StatusOK, expectBody: "0"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			method := testCase.method
			if method == "" {
				method = http.MethodGet
			}
			req, err := http.NewRequest(method, server.URL+testCase.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, testCase.expectStatus, resp.StatusCode)
			if testCase.expectBody != "" {
				assert.Equal(t, testCase.expectBody, string(body))
			}
		})
	}

	resp, err := http.Post(server.URL+"/getid/job-9/1", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
