package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ductran/service-agent/internal/api/dto"
	"github.com/ductran/service-agent/internal/job"
	"github.com/gin-gonic/gin"
)

// StatusSubmitted acknowledges a job accepted for asynchronous execution.
const StatusSubmitted = "submitted"

// CreateJob handles POST /api/jobs.
// Immediate jobs are dispatched right away: synchronously when the
// immediate flag is set (the response then reflects the final persisted
// status), otherwise fire-and-forget. Scheduled jobs wait for the
// scheduler.
func (h *JobHandler) CreateJob(c *gin.Context) {
	tenantID := TenantID(c)

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if req.Immediate && req.ScheduledAt != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Synchronous execution is not valid for scheduled jobs",
		})
		return
	}

	j, err := job.New(tenantID, job.CreateParams{
		Name:        req.Name,
		ServiceType: job.ServiceType(req.ServiceType),
		URL:         req.URL,
		Method:      req.Method,
		Topic:       req.Topic,
		Headers:     req.Headers,
		Body:        req.Body,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		var validationErr *job.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": validationErr.Reason,
			})
			return
		}
		h.logger.Error("Failed to build job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	if err := h.store.CreateJob(c.Request.Context(), j); err != nil {
		h.logger.Error("Failed to create job",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	h.logger.Info("Job created",
		slog.String("job_id", j.JobID),
		slog.String("tenant_id", tenantID),
		slog.String("service_type", string(j.ServiceType)),
		slog.String("job_type", string(j.JobType)),
	)

	if j.JobType == job.TypeImmediate {
		if req.Immediate {
			h.dispatchSync(c, j)
			return
		}

		// Fire-and-forget: the record's own status fields are the only
		// channel for the outcome from here on.
		go func(j *job.Job) {
			if _, err := h.dispatcher.Dispatch(context.Background(), j); err != nil {
				h.logger.Error("Background dispatch failed",
					slog.String("job_id", j.JobID),
					slog.String("error", err.Error()),
				)
			}
		}(j)
	}

	c.JSON(http.StatusOK, dto.SubmitJobResponse{
		JobID:  j.JobID,
		Status: StatusSubmitted,
	})
}

// dispatchSync blocks until the executor finishes and answers with the
// final persisted state, success or failure alike.
func (h *JobHandler) dispatchSync(c *gin.Context, j *job.Job) {
	final, err := h.dispatcher.Dispatch(c.Request.Context(), j)
	if err != nil {
		h.logger.Error("Synchronous dispatch failed",
			slog.String("job_id", j.JobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to dispatch job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.SubmitJobResponse{
		JobID:           final.JobID,
		Status:          string(final.Status),
		Response:        final.Response,
		ResponseHeaders: final.ResponseHeaders,
	})
}

// GetJobs handles GET /api/jobs.
// Lists the tenant's jobs newest-first with page/limit pagination.
func (h *JobHandler) GetJobs(c *gin.Context) {
	tenantID := TenantID(c)

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 {
		limit = 10
	}

	jobs, total, err := h.store.ListJobs(c.Request.Context(), tenantID, page, limit)
	if err != nil {
		h.logger.Error("Failed to list jobs",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	jobDTOs := make([]dto.JobDTO, len(jobs))
	for i, j := range jobs {
		jobDTOs[i] = dto.FromJob(j)
	}

	pages := total / limit
	if total%limit != 0 {
		pages++
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs: jobDTOs,
		Pagination: dto.Pagination{
			Total: total,
			Page:  page,
			Limit: limit,
			Pages: pages,
		},
	})
}

// GetJobByID handles GET /api/jobs/:id.
// Returns the full job or 404 when the id does not exist within the
// caller's tenant.
func (h *JobHandler) GetJobByID(c *gin.Context) {
	tenantID := TenantID(c)
	jobID := c.Param("id")

	j, err := h.store.GetJob(c.Request.Context(), tenantID, jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job",
			slog.String("tenant_id", tenantID),
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(j))
}
