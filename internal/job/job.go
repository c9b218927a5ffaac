package job

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job. Transitions are one-directional:
// PENDING -> IN_PROGRESS -> {COMPLETED, FAILED}. COMPLETED and FAILED are
// terminal.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Type says when a job runs: as soon as it is accepted, or once its
// scheduled time has passed.
type Type string

const (
	TypeImmediate Type = "IMMEDIATE"
	TypeScheduled Type = "SCHEDULED"
)

// ServiceType selects the transport a job is dispatched to.
type ServiceType string

const (
	ServiceTypeHTTP      ServiceType = "HTTP"
	ServiceTypeMessaging ServiceType = "MESSAGING"
)

// TopicSeparator joins a tenant id and a topic name into the bus topic.
// Tenant ids or topic names containing the separator themselves are not
// rejected and can collide with another tenant's namespace; this is a known
// ambiguity of the wire contract.
const TopicSeparator = "."

// Job is one unit of dispatchable work.
type Job struct {
	JobID           string      `db:"job_id"`
	TenantID        string      `db:"tenant_id"`
	Name            string      `db:"name"`
	ServiceType     ServiceType `db:"service_type"`
	URL             string      `db:"url"`
	Method          string      `db:"method"`
	Topic           string      `db:"topic"`
	Headers         StringMap   `db:"headers"`
	Body            JSONMap     `db:"body"`
	JobType         Type        `db:"job_type"`
	Status          Status      `db:"status"`
	ScheduledAt     *time.Time  `db:"scheduled_at"`
	CompletedAt     *time.Time  `db:"completed_at"`
	Response        JSONMap     `db:"response"`
	ResponseHeaders StringMap   `db:"response_headers"`
	ErrorMessage    string      `db:"error_message"`
	CreatedAt       time.Time   `db:"created_at"`
}

// CreateParams carries the validated fields of a creation request.
type CreateParams struct {
	Name        string
	ServiceType ServiceType
	URL         string
	Method      string
	Topic       string
	Headers     map[string]string
	Body        map[string]interface{}
	ScheduledAt *time.Time
}

// New builds a Job from a creation request, enforcing the creation
// invariants: name and tenant required, transport fields matching the
// service type and mutually exclusive, and scheduledAt strictly in the
// future when present. The job type is derived from the presence of
// scheduledAt.
func New(tenantID string, p CreateParams) (*Job, error) {
	if tenantID == "" {
		return nil, &ValidationError{Field: "tenantId", Reason: "tenant id is required"}
	}

	if strings.TrimSpace(p.Name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "job name is required"}
	}

	switch p.ServiceType {
	case ServiceTypeHTTP:
		if p.URL == "" || p.Method == "" {
			return nil, &ValidationError{Field: "url", Reason: "URL and method are required for HTTP jobs"}
		}
		if p.Topic != "" {
			return nil, &ValidationError{Field: "topic", Reason: "topic is not allowed for HTTP jobs"}
		}
	case ServiceTypeMessaging:
		if p.Topic == "" {
			return nil, &ValidationError{Field: "topic", Reason: "topic is required for messaging jobs"}
		}
		if p.URL != "" || p.Method != "" {
			return nil, &ValidationError{Field: "url", Reason: "URL and method are not allowed for messaging jobs"}
		}
	default:
		return nil, &ValidationError{Field: "serviceType", Reason: "service type must be HTTP or MESSAGING"}
	}

	jobType := TypeImmediate
	if p.ScheduledAt != nil {
		if !p.ScheduledAt.After(time.Now()) {
			return nil, &ValidationError{Field: "scheduledAt", Reason: "scheduled time must be in the future"}
		}
		jobType = TypeScheduled
	}

	headers := StringMap{}
	for k, v := range p.Headers {
		headers[k] = v
	}

	body := JSONMap{}
	for k, v := range p.Body {
		body[k] = v
	}

	return &Job{
		JobID:       uuid.New().String(),
		TenantID:    tenantID,
		Name:        p.Name,
		ServiceType: p.ServiceType,
		URL:         p.URL,
		Method:      p.Method,
		Topic:       p.Topic,
		Headers:     headers,
		Body:        body,
		JobType:     jobType,
		Status:      StatusPending,
		ScheduledAt: p.ScheduledAt,
		CreatedAt:   time.Now(),
	}, nil
}

// IsTerminal reports whether the job has reached COMPLETED or FAILED.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// NamespacedTopic returns the bus topic this job publishes to:
// {tenantId}{separator}{topic}.
func (j *Job) NamespacedTopic() string {
	return j.TenantID + TopicSeparator + j.Topic
}

// SplitTopic recovers (tenantId, topicName) from a namespaced bus topic.
// The second return is false when the topic carries no namespace.
func SplitTopic(topic string) (string, string, bool) {
	parts := strings.SplitN(topic, TopicSeparator, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", topic, false
	}
	return parts[0], parts[1], true
}
