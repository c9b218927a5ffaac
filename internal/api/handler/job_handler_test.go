package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ductran/service-agent/internal/api/dto"
	"github.com/ductran/service-agent/internal/api/handler"
	"github.com/ductran/service-agent/internal/api/router"
	"github.com/ductran/service-agent/internal/job"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memStore struct {
	mu   sync.Mutex
	jobs []*job.Job
	err  error
}

func (s *memStore) CreateJob(_ context.Context, j *job.Job) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *j
	// Newest first, matching the real store's created_at DESC ordering.
	s.jobs = append([]*job.Job{&copied}, s.jobs...)
	return nil
}

func (s *memStore) GetJob(_ context.Context, tenantID, jobID string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.TenantID == tenantID && j.JobID == jobID {
			copied := *j
			return &copied, nil
		}
	}
	return nil, job.ErrJobNotFound
}

func (s *memStore) ListJobs(_ context.Context, tenantID string, page, limit int) ([]*job.Job, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tenant []*job.Job
	for _, j := range s.jobs {
		if j.TenantID == tenantID {
			tenant = append(tenant, j)
		}
	}

	start := (page - 1) * limit
	if start > len(tenant) {
		start = len(tenant)
	}
	end := start + limit
	if end > len(tenant) {
		end = len(tenant)
	}

	out := make([]*job.Job, 0, end-start)
	for _, j := range tenant[start:end] {
		copied := *j
		out = append(out, &copied)
	}
	return out, len(tenant), nil
}

func (s *memStore) find(jobID string) *job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.JobID == jobID {
			return j
		}
	}
	return nil
}

// memDispatcher marks jobs terminal directly against the store, reporting
// the persisted state back like the real dispatcher.
type memDispatcher struct {
	store   *memStore
	outcome job.JSONMap
	headers job.StringMap
	fail    error

	mu         sync.Mutex
	dispatched []string
}

func (d *memDispatcher) Dispatch(_ context.Context, j *job.Job) (*job.Job, error) {
	d.mu.Lock()
	d.dispatched = append(d.dispatched, j.JobID)
	d.mu.Unlock()

	stored := d.store.find(j.JobID)
	if stored == nil {
		return nil, job.ErrJobNotFound
	}

	d.store.mu.Lock()
	now := time.Now()
	if d.fail != nil {
		stored.Status = job.StatusFailed
		stored.ErrorMessage = d.fail.Error()
	} else {
		stored.Status = job.StatusCompleted
		stored.Response = d.outcome
		stored.ResponseHeaders = d.headers
	}
	stored.CompletedAt = &now
	copied := *stored
	d.store.mu.Unlock()

	return &copied, nil
}

func (d *memDispatcher) dispatchedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dispatched)
}

func newTestRouter(store *memStore, dispatcher *memDispatcher) *gin.Engine {
	return router.SetupRouter(&handler.Dependencies{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:      store,
		Dispatcher: dispatcher,
	})
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateJob_SynchronousHTTP(t *testing.T) {
	store := &memStore{}
	dispatcher := &memDispatcher{
		store:   store,
		outcome: job.JSONMap{"result": "pong"},
		headers: job.StringMap{"Content-Type": "application/json"},
	}
	r := newTestRouter(store, dispatcher)

	w := doJSON(t, r, http.MethodPost, "/api/jobs", map[string]interface{}{
		"name":        "ping",
		"serviceType": "HTTP",
		"url":         "http://example.com/ping",
		"method":      "GET",
		"immediate":   true,
	}, map[string]string{"X-Tenant-ID": "acme"})

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.SubmitJobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, string(job.StatusCompleted), resp.Status)
	assert.Equal(t, job.JSONMap{"result": "pong"}, resp.Response)
	assert.Equal(t, job.StringMap{"Content-Type": "application/json"}, resp.ResponseHeaders)

	stored := store.find(resp.JobID)
	require.NotNil(t, stored)
	assert.Equal(t, "acme", stored.TenantID)
	assert.Equal(t, job.StatusCompleted, stored.Status)
}

func TestCreateJob_SynchronousFailureReportsFinalState(t *testing.T) {
	store := &memStore{}
	dispatcher := &memDispatcher{store: store, fail: fmt.Errorf("connection refused")}
	r := newTestRouter(store, dispatcher)

	w := doJSON(t, r, http.MethodPost, "/api/jobs", map[string]interface{}{
		"name":        "ping",
		"serviceType": "HTTP",
		"url":         "http://unreachable.invalid",
		"method":      "GET",
		"immediate":   true,
	}, nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.SubmitJobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(job.StatusFailed), resp.Status)

	stored := store.find(resp.JobID)
	require.NotNil(t, stored)
	assert.Equal(t, "connection refused", stored.ErrorMessage)
	assert.NotNil(t, stored.CompletedAt)
}

func TestCreateJob_FireAndForgetReturnsSubmitted(t *testing.T) {
	store := &memStore{}
	dispatcher := &memDispatcher{store: store, outcome: job.JSONMap{"ok": true}}
	r := newTestRouter(store, dispatcher)

	w := doJSON(t, r, http.MethodPost, "/api/jobs", map[string]interface{}{
		"name":        "ping",
		"serviceType": "HTTP",
		"url":         "http://example.com",
		"method":      "GET",
	}, nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.SubmitJobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, handler.StatusSubmitted, resp.Status)
	assert.Nil(t, resp.Response)

	assert.Eventually(t, func() bool {
		return dispatcher.dispatchedCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCreateJob_ScheduledIsNotDispatched(t *testing.T) {
	store := &memStore{}
	dispatcher := &memDispatcher{store: store}
	r := newTestRouter(store, dispatcher)

	at := time.Now().Add(time.Hour).UTC()
	w := doJSON(t, r, http.MethodPost, "/api/jobs", map[string]interface{}{
		"name":        "later",
		"serviceType": "MESSAGING",
		"topic":       "alerts",
		"scheduledAt": at.Format(time.RFC3339),
	}, nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.SubmitJobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, handler.StatusSubmitted, resp.Status)

	stored := store.find(resp.JobID)
	require.NotNil(t, stored)
	assert.Equal(t, job.TypeScheduled, stored.JobType)
	assert.Equal(t, job.StatusPending, stored.Status)
	assert.Equal(t, 0, dispatcher.dispatchedCount())
}

func TestCreateJob_ImmediateFlagWithScheduledAtRejected(t *testing.T) {
	store := &memStore{}
	r := newTestRouter(store, &memDispatcher{store: store})

	at := time.Now().Add(time.Hour).UTC()
	w := doJSON(t, r, http.MethodPost, "/api/jobs", map[string]interface{}{
		"name":        "later",
		"serviceType": "HTTP",
		"url":         "http://example.com",
		"method":      "GET",
		"scheduledAt": at.Format(time.RFC3339),
		"immediate":   true,
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Synchronous execution is not valid for scheduled jobs")
}

func TestCreateJob_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{
			name: "missing name",
			body: map[string]interface{}{
				"serviceType": "HTTP",
				"url":         "http://example.com",
				"method":      "GET",
			},
		},
		{
			name: "http without url",
			body: map[string]interface{}{
				"name":        "ping",
				"serviceType": "HTTP",
				"method":      "GET",
			},
		},
		{
			name: "messaging without topic",
			body: map[string]interface{}{
				"name":        "notify",
				"serviceType": "MESSAGING",
			},
		},
		{
			name: "unknown service type",
			body: map[string]interface{}{
				"name":        "ping",
				"serviceType": "FTP",
			},
		},
		{
			name: "scheduledAt in the past",
			body: map[string]interface{}{
				"name":        "late",
				"serviceType": "MESSAGING",
				"topic":       "alerts",
				"scheduledAt": time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{}
			dispatcher := &memDispatcher{store: store}
			r := newTestRouter(store, dispatcher)

			w := doJSON(t, r, http.MethodPost, "/api/jobs", tt.body, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "error")
			assert.Empty(t, store.jobs)
		})
	}
}

func seedJobs(t *testing.T, store *memStore, tenantID string, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		j, err := job.New(tenantID, job.CreateParams{
			Name:        fmt.Sprintf("job-%d", i),
			ServiceType: job.ServiceTypeHTTP,
			URL:         "http://example.com",
			Method:      "GET",
		})
		require.NoError(t, err)
		require.NoError(t, store.CreateJob(context.Background(), j))
	}
}

func TestGetJobs_Pagination(t *testing.T) {
	store := &memStore{}
	r := newTestRouter(store, &memDispatcher{store: store})
	seedJobs(t, store, "acme", 15)

	w := doJSON(t, r, http.MethodGet, "/api/jobs?page=2&limit=10", nil,
		map[string]string{"X-Tenant-ID": "acme"})

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Jobs, 5)
	assert.Equal(t, 15, resp.Pagination.Total)
	assert.Equal(t, 2, resp.Pagination.Page)
	assert.Equal(t, 10, resp.Pagination.Limit)
	assert.Equal(t, 2, resp.Pagination.Pages)
}

func TestGetJobs_DefaultsAndBadParams(t *testing.T) {
	store := &memStore{}
	r := newTestRouter(store, &memDispatcher{store: store})
	seedJobs(t, store, "default", 3)

	w := doJSON(t, r, http.MethodGet, "/api/jobs?page=abc&limit=-1", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Jobs, 3)
	assert.Equal(t, 1, resp.Pagination.Page)
	assert.Equal(t, 10, resp.Pagination.Limit)
	assert.Equal(t, 1, resp.Pagination.Pages)
}

func TestGetJobs_TenantIsolation(t *testing.T) {
	store := &memStore{}
	r := newTestRouter(store, &memDispatcher{store: store})
	seedJobs(t, store, "acme", 2)
	seedJobs(t, store, "globex", 3)

	w := doJSON(t, r, http.MethodGet, "/api/jobs", nil,
		map[string]string{"X-Tenant-ID": "globex"})

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Jobs, 3)
	assert.Equal(t, 3, resp.Pagination.Total)
}

func TestGetJobByID(t *testing.T) {
	store := &memStore{}
	r := newTestRouter(store, &memDispatcher{store: store})
	seedJobs(t, store, "acme", 1)
	jobID := store.jobs[0].JobID

	w := doJSON(t, r, http.MethodGet, "/api/jobs/"+jobID, nil,
		map[string]string{"X-Tenant-ID": "acme"})

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.JobDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, jobID, resp.ID)
	assert.Equal(t, "job-0", resp.Name)
	assert.Equal(t, string(job.StatusPending), resp.Status)
}

func TestCreateThenGetRoundTrip(t *testing.T) {
	store := &memStore{}
	r := newTestRouter(store, &memDispatcher{store: store})

	at := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	w := doJSON(t, r, http.MethodPost, "/api/jobs", map[string]interface{}{
		"name":        "notify",
		"serviceType": "MESSAGING",
		"topic":       "alerts",
		"headers":     map[string]string{"priority": "high"},
		"body":        map[string]interface{}{"event": "signup"},
		"scheduledAt": at.Format(time.RFC3339),
	}, map[string]string{"X-Tenant-ID": "acme"})
	require.Equal(t, http.StatusOK, w.Code)

	var created dto.SubmitJobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, r, http.MethodGet, "/api/jobs/"+created.JobID, nil,
		map[string]string{"X-Tenant-ID": "acme"})
	require.Equal(t, http.StatusOK, w.Code)

	var got dto.JobDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))

	assert.Equal(t, created.JobID, got.ID)
	assert.Equal(t, "notify", got.Name)
	assert.Equal(t, string(job.ServiceTypeMessaging), got.ServiceType)
	assert.Equal(t, "alerts", got.Topic)
	assert.Empty(t, got.URL)
	assert.Empty(t, got.Method)
	assert.Equal(t, job.StringMap{"priority": "high"}, got.Headers)
	assert.Equal(t, job.JSONMap{"event": "signup"}, got.Body)
	assert.Equal(t, string(job.TypeScheduled), got.JobType)
	assert.Equal(t, string(job.StatusPending), got.Status)
	require.NotNil(t, got.ScheduledAt)
	assert.True(t, got.ScheduledAt.Equal(at))
}

func TestGetJobByID_NotFound(t *testing.T) {
	store := &memStore{}
	r := newTestRouter(store, &memDispatcher{store: store})

	w := doJSON(t, r, http.MethodGet, "/api/jobs/does-not-exist", nil, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Job not found")
}

func TestGetJobByID_OtherTenantIsNotFound(t *testing.T) {
	store := &memStore{}
	r := newTestRouter(store, &memDispatcher{store: store})
	seedJobs(t, store, "acme", 1)
	jobID := store.jobs[0].JobID

	w := doJSON(t, r, http.MethodGet, "/api/jobs/"+jobID, nil,
		map[string]string{"X-Tenant-ID": "globex"})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTenantDefaultsWhenHeaderMissing(t *testing.T) {
	store := &memStore{}
	dispatcher := &memDispatcher{store: store}
	r := newTestRouter(store, dispatcher)

	w := doJSON(t, r, http.MethodPost, "/api/jobs", map[string]interface{}{
		"name":        "notify",
		"serviceType": "MESSAGING",
		"topic":       "alerts",
	}, nil)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.jobs, 1)
	assert.Equal(t, handler.DefaultTenant, store.jobs[0].TenantID)
}
