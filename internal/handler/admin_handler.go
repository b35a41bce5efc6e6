package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/cryptexam/cryptexam-backend/internal/middleware"
	"github.com/cryptexam/cryptexam-backend/internal/model"
	"github.com/cryptexam/cryptexam-backend/internal/response"
	"github.com/cryptexam/cryptexam-backend/internal/service"
	"github.com/cryptexam/cryptexam-backend/internal/validator"
	"github.com/cryptexam/cryptexam-backend/internal/vault"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AdminHandler handles the reviewer surface: the review queue, verdicts,
// account provisioning and the dashboard.
type AdminHandler struct {
	examService *service.ExamService
	userService *service.UserService
	authService *service.AuthService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(examService *service.ExamService, userService *service.UserService, authService *service.AuthService) *AdminHandler {
	return &AdminHandler{
		examService: examService,
		userService: userService,
		authService: authService,
	}
}

// ListPendingExams godoc
// GET /api/v1/admin/exams/pending
// The review queue, oldest submissions last.
func (h *AdminHandler) ListPendingExams(c *gin.Context) {
	exams, err := h.examService.ListPending(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// ReviewExam godoc
// POST /api/v1/admin/exams/:exam_id/review
// Approves (and publishes) or rejects a pending exam.
func (h *AdminHandler) ReviewExam(c *gin.Context) {
	claims := middleware.GetClaims(c)

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ReviewExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	// Best-effort lookup for the verdict notification.
	institute, err := h.userService.GetByID(c.Request.Context(), exam.InstituteID)
	if err != nil {
		institute = nil
	}

	reviewed, err := h.examService.Review(c.Request.Context(), examID, claims.UserID, &req, institute)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTransition):
			response.Fail(c, http.StatusConflict, response.ErrInvalidTransition)
		case errors.Is(err, vault.ErrPublication):
			response.Fail(c, http.StatusInternalServerError, response.ErrPublicationFailed)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": reviewed})
}

// PublishExam godoc
// POST /api/v1/admin/exams/:exam_id/publish
// Retries publication for an APPROVED exam whose first publish failed.
func (h *AdminHandler) PublishExam(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.Publish(c.Request.Context(), examID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrInvalidTransition):
			response.Fail(c, http.StatusConflict, response.ErrInvalidTransition)
		case errors.Is(err, vault.ErrPublication):
			response.Fail(c, http.StatusInternalServerError, response.ErrPublicationFailed)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// Dashboard godoc
// GET /api/v1/admin/dashboard
// Exam counts per lifecycle state.
func (h *AdminHandler) Dashboard(c *gin.Context) {
	counts, err := h.examService.StatusCounts(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam_counts": counts})
}

// CreateUser godoc
// POST /api/v1/admin/users
// Provisions a student, institute, or admin account.
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req model.CreateUserRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	user, err := h.userService.Create(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			response.Fail(c, http.StatusConflict, response.ErrConflict)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"user": userView(user)})
}

// ResetUserSession godoc
// POST /api/v1/admin/users/:user_id/reset-session
// Clears a stuck single-device session so the user can log in again.
func (h *AdminHandler) ResetUserSession(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.authService.ResetUserSession(c.Request.Context(), userID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
