package handler

import (
	"errors"
	"net/http"

	"github.com/cryptexam/cryptexam-backend/internal/middleware"
	"github.com/cryptexam/cryptexam-backend/internal/model"
	"github.com/cryptexam/cryptexam-backend/internal/response"
	"github.com/cryptexam/cryptexam-backend/internal/service"
	"github.com/cryptexam/cryptexam-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AttemptHandler handles the student surface: available exams, the attempt
// flow, and score-gated results.
type AttemptHandler struct {
	sessionService *service.ExamSessionService
	releaseService *service.ReleaseService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(sessionService *service.ExamSessionService, releaseService *service.ReleaseService) *AttemptHandler {
	return &AttemptHandler{sessionService: sessionService, releaseService: releaseService}
}

// ListAvailableExams godoc
// GET /api/v1/student/exams
// Published exams the student has not attempted yet.
func (h *AttemptHandler) ListAvailableExams(c *gin.Context) {
	claims := middleware.GetClaims(c)

	exams, err := h.sessionService.ListAvailableExams(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// StartAttempt godoc
// POST /api/v1/student/exams/:exam_id/attempt
// Opens (or resumes) the single attempt and returns the sanitized paper.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.sessionService.StartAttempt(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		h.failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// SubmitAttempt godoc
// POST /api/v1/student/attempts/:session_id/submit
// Grades the answer sheet and completes the session.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.sessionService.SubmitAttempt(c.Request.Context(), sessionID, claims.UserID, req.Answers)
	if err != nil {
		h.failAttempt(c, err)
		return
	}

	// The score stays hidden until the institute releases results; only the
	// completion state is confirmed here.
	response.Success(c, http.StatusOK, gin.H{
		"session_id":   session.ID,
		"status":       session.Status,
		"submitted_at": session.SubmittedAt,
	})
}

// ListMyResults godoc
// GET /api/v1/student/results
// All of the student's sessions, scores visible only after release.
func (h *AttemptHandler) ListMyResults(c *gin.Context) {
	claims := middleware.GetClaims(c)

	results, err := h.releaseService.ListMyResults(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}

// GetMyResult godoc
// GET /api/v1/student/results/:session_id
// One session, score visible only after release.
func (h *AttemptHandler) GetMyResult(c *gin.Context) {
	claims := middleware.GetClaims(c)

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.releaseService.GetMyResult(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// failAttempt maps attempt flow errors onto API error codes. Content
// protection failures deliberately surface as a generic unavailability.
func (h *AttemptHandler) failAttempt(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotAvailable):
		response.Fail(c, http.StatusNotFound, response.ErrExamNotAvailable)
	case errors.Is(err, service.ErrDuplicateAttempt):
		response.Fail(c, http.StatusConflict, response.ErrDuplicateAttempt)
	case errors.Is(err, service.ErrAttemptTimedOut):
		response.Fail(c, http.StatusConflict, response.ErrAttemptTimedOut)
	case errors.Is(err, service.ErrNoActiveSession):
		response.Fail(c, http.StatusConflict, response.ErrNoActiveSession)
	case errors.Is(err, service.ErrContentUnavailable):
		response.Fail(c, http.StatusServiceUnavailable, response.ErrContentProtected)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
