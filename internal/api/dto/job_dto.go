package dto

import (
	"time"

	"github.com/ductran/service-agent/internal/job"
)

// CreateJobRequest is the job creation payload. Exactly one transport's
// fields must be set, matching serviceType. A scheduledAt in the future
// makes the job SCHEDULED; immediate=true asks for a synchronous response
// and is only valid without scheduledAt.
type CreateJobRequest struct {
	Name        string                 `json:"name"`
	ServiceType string                 `json:"serviceType"`
	URL         string                 `json:"url"`
	Method      string                 `json:"method"`
	Topic       string                 `json:"topic"`
	Headers     map[string]string      `json:"headers"`
	Body        map[string]interface{} `json:"body"`
	ScheduledAt *time.Time             `json:"scheduledAt"`
	Immediate   bool                   `json:"immediate"`
}

// SubmitJobResponse acknowledges a creation. Fire-and-forget and scheduled
// submissions carry only jobId and "submitted"; synchronous submissions
// carry the final persisted status and the captured outcome.
type SubmitJobResponse struct {
	JobID           string        `json:"jobId"`
	Status          string        `json:"status"`
	Response        job.JSONMap   `json:"response,omitempty"`
	ResponseHeaders job.StringMap `json:"responseHeaders,omitempty"`
}

// JobDTO is the full job view returned by the query endpoints.
type JobDTO struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	ServiceType     string        `json:"serviceType"`
	URL             string        `json:"url,omitempty"`
	Method          string        `json:"method,omitempty"`
	Topic           string        `json:"topic,omitempty"`
	Headers         job.StringMap `json:"headers"`
	Body            job.JSONMap   `json:"body"`
	JobType         string        `json:"jobType"`
	Status          string        `json:"status"`
	ScheduledAt     *time.Time    `json:"scheduledAt,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty"`
	Response        job.JSONMap   `json:"response,omitempty"`
	ResponseHeaders job.StringMap `json:"responseHeaders,omitempty"`
	ErrorMessage    string        `json:"errorMessage,omitempty"`
}

// Pagination describes one page of a job listing.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// ListJobsResponse is the paginated job listing.
type ListJobsResponse struct {
	Jobs       []JobDTO   `json:"jobs"`
	Pagination Pagination `json:"pagination"`
}

// FromJob maps a stored job to its API view.
func FromJob(j *job.Job) JobDTO {
	return JobDTO{
		ID:              j.JobID,
		Name:            j.Name,
		ServiceType:     string(j.ServiceType),
		URL:             j.URL,
		Method:          j.Method,
		Topic:           j.Topic,
		Headers:         j.Headers,
		Body:            j.Body,
		JobType:         string(j.JobType),
		Status:          string(j.Status),
		ScheduledAt:     j.ScheduledAt,
		CreatedAt:       j.CreatedAt,
		CompletedAt:     j.CompletedAt,
		Response:        j.Response,
		ResponseHeaders: j.ResponseHeaders,
		ErrorMessage:    j.ErrorMessage,
	}
}
