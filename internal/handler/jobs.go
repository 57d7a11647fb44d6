package handler

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/pollinator/api/internal/model"
	"github.com/pollinator/api/internal/service"
	"github.com/pollinator/api/pkg/response"
)

type JobHandler struct {
	service *service.JobService
}

func NewJobHandler(svc *service.JobService) *JobHandler {
	return &JobHandler{service: svc}
}

// Create handles POST /jobs
// @Summary      Submit an image for text extraction and speech synthesis
// @Tags         Jobs
// @Accept       json
// @Produce      json
// @Param        request body model.CreateJobRequest true "Uploaded image"
// @Success      201 {object} model.CreateJobResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /jobs [post]
func (h *JobHandler) Create(c *fiber.Ctx) error {
	var req model.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	result, err := h.service.CreateJob(c.UserContext(), &req)
	if err != nil {
		return writeError(c, err)
	}

	return response.Created(c, result)
}

// List handles GET /jobs?userId=&cursor=
// @Summary      List a user's jobs
// @Tags         Jobs
// @Produce      json
// @Param        userId query string true "Owner"
// @Param        cursor query string false "nextCursor of the previous page"
// @Success      200 {object} model.ListJobsResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /jobs [get]
func (h *JobHandler) List(c *fiber.Ctx) error {
	result, err := h.service.ListJobs(c.UserContext(), c.Query("userId"), c.Query("cursor"))
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, result)
}

// Get handles GET /jobs/:jobId?userId=
func (h *JobHandler) Get(c *fiber.Ctx) error {
	result, err := h.service.GetJob(c.UserContext(), c.Query("userId"), c.Params("jobId"))
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, result)
}

func writeError(c *fiber.Ctx, err error) error {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return response.ValidationError(c, verr.Message, nil)
	case errors.Is(err, model.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	}

	log.Printf("[Jobs] %s %s failed: %v", c.Method(), c.Path(), err)
	return response.ServiceError(c, err.Error())
}
