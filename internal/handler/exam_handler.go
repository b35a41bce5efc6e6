package handler

import (
	"errors"
	"net/http"

	"github.com/cryptexam/cryptexam-backend/internal/middleware"
	"github.com/cryptexam/cryptexam-backend/internal/model"
	"github.com/cryptexam/cryptexam-backend/internal/response"
	"github.com/cryptexam/cryptexam-backend/internal/service"
	"github.com/cryptexam/cryptexam-backend/internal/validator"
	"github.com/cryptexam/cryptexam-backend/internal/vault"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ExamHandler handles the institute-facing exam surface: submitting content,
// tracking lifecycle state, and releasing results.
type ExamHandler struct {
	examService    *service.ExamService
	releaseService *service.ReleaseService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, releaseService *service.ReleaseService) *ExamHandler {
	return &ExamHandler{examService: examService, releaseService: releaseService}
}

// SubmitExam godoc
// POST /api/v1/institute/exams
// Accepts exam content, encrypts it at rest, and queues it for review.
func (h *ExamHandler) SubmitExam(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.SubmitExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.SubmitContent(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		if errors.Is(err, vault.ErrValidation) {
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrInvalidContent)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// ListMyExams godoc
// GET /api/v1/institute/exams
// Lists the institute's own exams across all lifecycle states.
func (h *ExamHandler) ListMyExams(c *gin.Context) {
	claims := middleware.GetClaims(c)

	exams, err := h.examService.ListByInstitute(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// GetExam godoc
// GET /api/v1/institute/exams/:exam_id
// Returns one of the institute's own exams. Foreign exams read as missing.
func (h *ExamHandler) GetExam(c *gin.Context) {
	claims := middleware.GetClaims(c)

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil || exam.InstituteID != claims.UserID {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// ListExamResults godoc
// GET /api/v1/institute/exams/:exam_id/results
// Per-student results for one of the institute's own exams.
func (h *ExamHandler) ListExamResults(c *gin.Context) {
	claims := middleware.GetClaims(c)

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	results, err := h.releaseService.ListExamResults(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}

// ReleaseResults godoc
// POST /api/v1/institute/exams/:exam_id/release
// Makes scores visible to students and fans out result notifications.
func (h *ExamHandler) ReleaseResults(c *gin.Context) {
	claims := middleware.GetClaims(c)

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	queued, err := h.releaseService.ReleaseResults(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrInvalidTransition):
			response.Fail(c, http.StatusConflict, response.ErrInvalidTransition)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"notifications_queued": queued})
}
