package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/invoice-parser/app/requests"
	"github.com/invoice-parser/app/responses"
	"github.com/invoice-parser/app/services"
	"go.uber.org/zap"
)

// AdminController serves the review queue and maintenance endpoints
type AdminController struct {
	admin  *services.AdminService
	logger *zap.Logger
}

// NewAdminController creates the controller
func NewAdminController(admin *services.AdminService, logger *zap.Logger) *AdminController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminController{admin: admin, logger: logger}
}

func (ac *AdminController) serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrReviewsDisabled):
		c.JSON(http.StatusServiceUnavailable, responses.NewError(responses.CodeUnavailable, err.Error()))
	case errors.Is(err, services.ErrReviewNotFound):
		c.JSON(http.StatusNotFound, responses.NewError(responses.CodeNotFound, err.Error()))
	case errors.Is(err, services.ErrInvalidReviewStatus):
		c.JSON(http.StatusBadRequest, responses.NewError(responses.CodeInvalidRequest, err.Error()))
	default:
		ac.logger.Error("admin request failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, responses.NewError(responses.CodeProcessError, err.Error()))
	}
}

// ListReviews pages through the review queue: ?status=&limit=&offset=
func (ac *AdminController) ListReviews(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		badRequest(c, err)
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		badRequest(c, err)
		return
	}
	page, err := ac.admin.ListReviews(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		ac.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// ApproveReview accepts a queued document, optionally corrected
func (ac *AdminController) ApproveReview(c *gin.Context) {
	var req requests.ReviewDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	review, err := ac.admin.ApproveReview(c.Request.Context(), c.Param("id"), req.ReviewerID, req.ManualResult)
	if err != nil {
		ac.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

// RejectReview marks a queued document as unusable
func (ac *AdminController) RejectReview(c *gin.Context) {
	var req requests.ReviewDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	review, err := ac.admin.RejectReview(c.Request.Context(), c.Param("id"), req.ReviewerID)
	if err != nil {
		ac.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

// ClearCache drops the processed-document caches
func (ac *AdminController) ClearCache(c *gin.Context) {
	if err := ac.admin.ClearCache(c.Request.Context()); err != nil {
		ac.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, responses.SuccessResponse{Success: true, Message: "cache cleared"})
}

// GetStats reports service, queue and runtime figures
func (ac *AdminController) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, ac.admin.GetSystemStats(c.Request.Context()))
}
