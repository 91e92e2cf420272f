package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fieldbase/fieldbase/internal/services"
	appErrors "github.com/fieldbase/fieldbase/pkg/errors"
	"github.com/fieldbase/fieldbase/pkg/response"
)

type AuditHandler struct {
	svc *services.AuditService
}

func NewAuditHandler(svc *services.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	if _, ok := mustActor(c); !ok {
		return
	}

	opts := services.AuditListOptions{
		Filters: services.AuditFilters{
			ActorID:  c.Query("actor_id"),
			Action:   c.Query("action"),
			Resource: c.Query("resource"),
		},
	}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.NewValidation("page must be an integer"))
			return
		}
		opts.Page = page
	}
	if raw := c.Query("per_page"); raw != "" {
		perPage, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.NewValidation("per_page must be an integer"))
			return
		}
		opts.PageSize = perPage
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.NewValidation("since must be an RFC3339 timestamp"))
			return
		}
		opts.Filters.Since = &since
	}

	logs, total, err := h.svc.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	totalPages := int((total + int64(perPage) - 1) / int64(perPage))

	response.SuccessWithMeta(c, http.StatusOK, logs, &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: totalPages,
	})
}
