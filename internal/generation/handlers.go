package generation

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// enqueueRequest is the JSON body for creating a generation job
type enqueueRequest struct {
	Sections              []string `json:"sections"`
	NotesContext          string   `json:"notes_context"`
	Model                 string   `json:"model"`
	PerJobCapUSD          *float64 `json:"per_job_cap_usd"`
	ProjectDailyBudgetUSD *float64 `json:"project_daily_budget_usd"`
}

// retryRequest is the JSON body for retrying a terminal job
type retryRequest struct {
	Sections     []string `json:"sections"`
	NotesContext *string  `json:"notes_context"`
	Model        string   `json:"model"`
}

// EnqueueHandler creates a generation job for a manuscript and starts it in
// the background. Responds 201 with the full job record (including the cost
// estimate fields), 402 on budget rejection, 409 on an active-job conflict.
func EnqueueHandler(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, ok := parseUintParam(c, "projectID")
		if !ok {
			return
		}
		manuscriptID, ok := parseUintParam(c, "manuscriptID")
		if !ok {
			return
		}

		var req enqueueRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		job, err := service.Enqueue(c.Request.Context(), EnqueueParams{
			ProjectID:             projectID,
			ManuscriptID:          manuscriptID,
			Sections:              req.Sections,
			NotesContext:          req.NotesContext,
			Model:                 req.Model,
			PerJobCapUSD:          req.PerJobCapUSD,
			ProjectDailyBudgetUSD: req.ProjectDailyBudgetUSD,
		})
		if err != nil {
			respondJobError(c, err)
			return
		}

		c.JSON(http.StatusCreated, job)
	}
}

// GetJobHandler returns a job by id
func GetJobHandler(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := service.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondJobError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// ListJobsHandler returns a manuscript's recent jobs, most recent first.
// The limit query parameter is clamped server-side.
func ListJobsHandler(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		manuscriptID, ok := parseUintParam(c, "manuscriptID")
		if !ok {
			return
		}

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			limit = parsed
		}

		jobs, err := service.ListRecent(c.Request.Context(), manuscriptID, limit)
		if err != nil {
			respondJobError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": jobs})
	}
}

// CancelJobHandler requests cooperative cancellation and returns the updated
// record. Idempotent on terminal jobs.
func CancelJobHandler(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := service.Cancel(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondJobError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// RetryJobHandler creates a new lineage-linked job from a failed or
// cancelled one and returns it.
func RetryJobHandler(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req retryRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
		}

		job, err := service.Retry(c.Request.Context(), c.Param("id"), RetryOverrides{
			Sections:     req.Sections,
			NotesContext: req.NotesContext,
			Model:        req.Model,
		})
		if err != nil {
			respondJobError(c, err)
			return
		}
		c.JSON(http.StatusCreated, job)
	}
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	parsed, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(parsed), true
}

// respondJobError maps service errors onto HTTP statuses
func respondJobError(c *gin.Context, err error) {
	var budgetErr *BudgetError
	switch {
	case errors.As(err, &budgetErr):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": budgetErr.Error(), "reason": budgetErr.Reason})
	case errors.Is(err, ErrActiveJobExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrJobNotRetriable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrProjectNotFound), errors.Is(err, ErrManuscriptNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
