package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	future := time.Now().Add(1 * time.Hour)
	past := time.Now().Add(-1 * time.Hour)

	tests := []struct {
		name      string
		tenantID  string
		params    CreateParams
		wantErr   bool
		errField  string
		checkFunc func(t *testing.T, j *Job)
	}{
		{
			name:     "valid HTTP job",
			tenantID: "acme",
			params: CreateParams{
				Name:        "ping",
				ServiceType: ServiceTypeHTTP,
				URL:         "http://example.com",
				Method:      "GET",
			},
			checkFunc: func(t *testing.T, j *Job) {
				assert.Equal(t, ServiceTypeHTTP, j.ServiceType)
				assert.Equal(t, "http://example.com", j.URL)
				assert.Equal(t, "GET", j.Method)
				assert.Empty(t, j.Topic)
				assert.Equal(t, TypeImmediate, j.JobType)
				assert.Equal(t, StatusPending, j.Status)
				assert.NotEmpty(t, j.JobID)
				assert.Equal(t, "acme", j.TenantID)
			},
		},
		{
			name:     "valid messaging job",
			tenantID: "acme",
			params: CreateParams{
				Name:        "notify",
				ServiceType: ServiceTypeMessaging,
				Topic:       "alerts",
			},
			checkFunc: func(t *testing.T, j *Job) {
				assert.Equal(t, ServiceTypeMessaging, j.ServiceType)
				assert.Equal(t, "alerts", j.Topic)
				assert.Empty(t, j.URL)
				assert.Empty(t, j.Method)
			},
		},
		{
			name:     "future scheduledAt yields scheduled pending job",
			tenantID: "acme",
			params: CreateParams{
				Name:        "later",
				ServiceType: ServiceTypeHTTP,
				URL:         "http://example.com",
				Method:      "POST",
				ScheduledAt: &future,
			},
			checkFunc: func(t *testing.T, j *Job) {
				assert.Equal(t, TypeScheduled, j.JobType)
				assert.Equal(t, StatusPending, j.Status)
				require.NotNil(t, j.ScheduledAt)
				assert.True(t, j.ScheduledAt.Equal(future))
			},
		},
		{
			name:     "past scheduledAt is rejected",
			tenantID: "acme",
			params: CreateParams{
				Name:        "too-late",
				ServiceType: ServiceTypeHTTP,
				URL:         "http://example.com",
				Method:      "GET",
				ScheduledAt: &past,
			},
			wantErr:  true,
			errField: "scheduledAt",
		},
		{
			name:     "missing name",
			tenantID: "acme",
			params: CreateParams{
				Name:        "   ",
				ServiceType: ServiceTypeHTTP,
				URL:         "http://example.com",
				Method:      "GET",
			},
			wantErr:  true,
			errField: "name",
		},
		{
			name:     "missing tenant",
			tenantID: "",
			params: CreateParams{
				Name:        "ping",
				ServiceType: ServiceTypeHTTP,
				URL:         "http://example.com",
				Method:      "GET",
			},
			wantErr:  true,
			errField: "tenantId",
		},
		{
			name:     "HTTP job without method",
			tenantID: "acme",
			params: CreateParams{
				Name:        "ping",
				ServiceType: ServiceTypeHTTP,
				URL:         "http://example.com",
			},
			wantErr:  true,
			errField: "url",
		},
		{
			name:     "HTTP job with a topic",
			tenantID: "acme",
			params: CreateParams{
				Name:        "ping",
				ServiceType: ServiceTypeHTTP,
				URL:         "http://example.com",
				Method:      "GET",
				Topic:       "alerts",
			},
			wantErr:  true,
			errField: "topic",
		},
		{
			name:     "messaging job without topic",
			tenantID: "acme",
			params: CreateParams{
				Name:        "notify",
				ServiceType: ServiceTypeMessaging,
			},
			wantErr:  true,
			errField: "topic",
		},
		{
			name:     "messaging job with url",
			tenantID: "acme",
			params: CreateParams{
				Name:        "notify",
				ServiceType: ServiceTypeMessaging,
				Topic:       "alerts",
				URL:         "http://example.com",
			},
			wantErr:  true,
			errField: "url",
		},
		{
			name:     "unknown service type",
			tenantID: "acme",
			params: CreateParams{
				Name:        "ping",
				ServiceType: "FTP",
			},
			wantErr:  true,
			errField: "serviceType",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := New(tt.tenantID, tt.params)

			if tt.wantErr {
				require.Error(t, err)
				var validationErr *ValidationError
				require.ErrorAs(t, err, &validationErr)
				assert.Equal(t, tt.errField, validationErr.Field)
				assert.Nil(t, j)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, j)
			assert.NotNil(t, j.Headers)
			assert.NotNil(t, j.Body)
			assert.False(t, j.CreatedAt.IsZero())
			if tt.checkFunc != nil {
				tt.checkFunc(t, j)
			}
		})
	}
}

func TestNew_CopiesPayload(t *testing.T) {
	headers := map[string]string{"source": "test"}
	body := map[string]interface{}{"n": 1}

	j, err := New("acme", CreateParams{
		Name:        "notify",
		ServiceType: ServiceTypeMessaging,
		Topic:       "alerts",
		Headers:     headers,
		Body:        body,
	})
	require.NoError(t, err)

	headers["source"] = "mutated"
	body["n"] = 2

	assert.Equal(t, "test", j.Headers["source"])
	assert.Equal(t, 1, j.Body["n"])
}

func TestNamespacedTopic(t *testing.T) {
	j := &Job{TenantID: "acme", Topic: "alerts"}
	assert.Equal(t, "acme.alerts", j.NamespacedTopic())
}

func TestSplitTopic(t *testing.T) {
	tests := []struct {
		topic      string
		wantTenant string
		wantName   string
		wantOK     bool
	}{
		{"acme.alerts", "acme", "alerts", true},
		{"acme.alerts.critical", "acme", "alerts.critical", true},
		{"plain", "", "plain", false},
		{".alerts", "", ".alerts", false},
		{"acme.", "", "acme.", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			tenant, name, ok := SplitTopic(tt.topic)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantTenant, tenant)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, (&Job{Status: StatusPending}).IsTerminal())
	assert.False(t, (&Job{Status: StatusInProgress}).IsTerminal())
	assert.True(t, (&Job{Status: StatusCompleted}).IsTerminal())
	assert.True(t, (&Job{Status: StatusFailed}).IsTerminal())
}
