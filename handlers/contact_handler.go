package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/matrix-portfolio/portfolio-api/errors"
	"github.com/matrix-portfolio/portfolio-api/types"
)

// ContactHandler serves the contact form and the admin listing.
type ContactHandler struct {
	submissions SubmissionServiceInterface
}

func NewContactHandler(submissions SubmissionServiceInterface) *ContactHandler {
	return &ContactHandler{submissions: submissions}
}

// SubmitContact handles POST /api/contact.
func (h *ContactHandler) SubmitContact(c *gin.Context) {
	var req types.ContactRequest
	if !bindJSONOrError(c, &req) {
		return
	}

	if _, err := h.submissions.Submit(c.Request.Context(), req, c.ClientIP()); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, types.MessageResponse{Message: "Contact saved successfully"})
}

// ListContacts handles GET /api/contacts. AdminAuth guards the route.
func (h *ContactHandler) ListContacts(c *gin.Context) {
	subs, err := h.submissions.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

func bindJSONOrError(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			_ = c.Error(apperrors.PayloadTooLarge(maxErr.Limit))
			return false
		}
		_ = c.Error(apperrors.ValidationFailed(apperrors.CodeInvalidBody, "Invalid request body", ""))
		return false
	}
	return true
}
