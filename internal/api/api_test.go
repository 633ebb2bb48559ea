package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miem-project-2259/openvair/internal/api"
	"github.com/miem-project-2259/openvair/pkg/cronjob"
	"github.com/miem-project-2259/openvair/pkg/logger"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	mgr, err := cronjob.NewManager(cronjob.NewMemoryRepository(), cronjob.NewMemoryBackend())
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewHandler(mgr, logger.NewNope()).Router())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var payload map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&payload)
	}
	return resp, payload
}

func createJob(t *testing.T, srv *httptest.Server, body map[string]any) map[string]any {
	t.Helper()

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/jobs", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "payload: %v", payload)
	return payload
}

func TestCreateJob(t *testing.T) {
	t.Parallel()

	t.Run("creates and returns the job", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t)
		payload := createJob(t, srv, map[string]any{
			"name":     "backup_daily",
			"schedule": "0 3 * * *",
			"command":  "backup.sh",
		})

		assert.Equal(t, "backup_daily", payload["name"])
		assert.Equal(t, true, payload["enabled"], "enabled defaults to true")
		assert.Equal(t, "materialized", payload["status"])
		assert.NotEmpty(t, payload["id"])
		assert.NotEmpty(t, payload["next_run"])
	})

	t.Run("rejects invalid cron expressions", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t)
		resp, payload := doJSON(t, http.MethodPost, srv.URL+"/jobs", map[string]any{
			"name": "bad", "schedule": "every tuesday", "command": "x.sh",
		})
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, "validation_error", payload["code"])
	})

	t.Run("rejects shell metacharacters in commands", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t)
		for _, cmd := range []string{"backup.sh; rm -rf /", "a.sh && b.sh", "echo `id`", "cat < /etc/shadow", "run.sh #tag", `report.sh "a b"`} {
			resp, payload := doJSON(t, http.MethodPost, srv.URL+"/jobs", map[string]any{
				"name": "meta", "schedule": "0 3 * * *", "command": cmd,
			})
			require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "command %q", cmd)
			assert.Equal(t, "validation_error", payload["code"])
		}
	})

	t.Run("rejects destructive utilities", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t)
		for _, cmd := range []string{"rm -rf /data", "/bin/rm tmp", "dd if=/dev/zero of=/dev/sda", "mkfs.ext4 /dev/sdb1", "shutdown now"} {
			resp, _ := doJSON(t, http.MethodPost, srv.URL+"/jobs", map[string]any{
				"name": "destructive", "schedule": "0 3 * * *", "command": cmd,
			})
			require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "command %q", cmd)
		}
	})

	t.Run("rejects both dependency references", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t)
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/jobs", map[string]any{
			"name": "torn", "schedule": "0 3 * * *", "command": "x.sh",
			"before_job_id": uuid.New(), "after_job_id": uuid.New(),
		})
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("duplicate name maps to 409", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t)
		createJob(t, srv, map[string]any{"name": "dup", "schedule": "0 3 * * *", "command": "a.sh"})

		resp, payload := doJSON(t, http.MethodPost, srv.URL+"/jobs", map[string]any{
			"name": "dup", "schedule": "0 4 * * *", "command": "b.sh",
		})
		require.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "name_conflict", payload["code"])
	})
}

func TestGetAndListJobs(t *testing.T) {
	t.Parallel()

	t.Run("get by id", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t)
		created := createJob(t, srv, map[string]any{"name": "one", "schedule": "0 3 * * *", "command": "one.sh"})

		resp, payload := doJSON(t, http.MethodGet, fmt.Sprintf("%s/jobs/%s", srv.URL, created["id"]), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "one", payload["name"])
	})

	t.Run("unknown id maps to 404", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t)
		resp, payload := doJSON(t, http.MethodGet, fmt.Sprintf("%s/jobs/%s", srv.URL, uuid.New()), nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "job_not_found", payload["code"])
	})

	t.Run("malformed id maps to 400", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t)
		resp, _ := doJSON(t, http.MethodGet, srv.URL+"/jobs/not-a-uuid", nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("list returns all jobs", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t)
		createJob(t, srv, map[string]any{"name": "one", "schedule": "0 3 * * *", "command": "one.sh"})
		createJob(t, srv, map[string]any{"name": "two", "schedule": "0 4 * * *", "command": "two.sh"})

		req, err := http.NewRequest(http.MethodGet, srv.URL+"/jobs", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var jobs []map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
		require.Len(t, jobs, 2)
	})
}

func TestEditJob(t *testing.T) {
	t.Parallel()

	t.Run("merges provided fields", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t)
		created := createJob(t, srv, map[string]any{"name": "edit_me", "schedule": "0 3 * * *", "command": "a.sh"})

		resp, payload := doJSON(t, http.MethodPatch, fmt.Sprintf("%s/jobs/%s", srv.URL, created["id"]), map[string]any{
			"schedule": "15 4 * * *",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "15 4 * * *", payload["schedule"])
		assert.Equal(t, "a.sh", payload["command"], "untouched fields keep their value")
	})

	t.Run("cyclic dependency maps to 422", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t)
		a := createJob(t, srv, map[string]any{"name": "a", "schedule": "0 1 * * *", "command": "a.sh"})
		b := createJob(t, srv, map[string]any{
			"name": "b", "schedule": "0 2 * * *", "command": "b.sh",
			"before_job_id": a["id"],
		})

		resp, payload := doJSON(t, http.MethodPatch, fmt.Sprintf("%s/jobs/%s", srv.URL, a["id"]), map[string]any{
			"before_job_id": b["id"],
		})
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, "cyclic_dependency", payload["code"])
	})

	t.Run("clear_dependency removes the reference", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t)
		a := createJob(t, srv, map[string]any{"name": "a", "schedule": "0 1 * * *", "command": "a.sh"})
		b := createJob(t, srv, map[string]any{
			"name": "b", "schedule": "0 2 * * *", "command": "b.sh",
			"after_job_id": a["id"],
		})

		resp, payload := doJSON(t, http.MethodPatch, fmt.Sprintf("%s/jobs/%s", srv.URL, b["id"]), map[string]any{
			"clear_dependency": true,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Nil(t, payload["after_job_id"])
	})
}

func TestDeleteJob(t *testing.T) {
	t.Parallel()

	t.Run("deletes and returns 204", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t)
		created := createJob(t, srv, map[string]any{"name": "bye", "schedule": "0 3 * * *", "command": "bye.sh"})

		resp, _ := doJSON(t, http.MethodDelete, fmt.Sprintf("%s/jobs/%s", srv.URL, created["id"]), nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, _ = doJSON(t, http.MethodGet, fmt.Sprintf("%s/jobs/%s", srv.URL, created["id"]), nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown id maps to 404", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t)
		resp, _ := doJSON(t, http.MethodDelete, fmt.Sprintf("%s/jobs/%s", srv.URL, uuid.New()), nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
