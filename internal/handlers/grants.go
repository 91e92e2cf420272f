package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldbase/fieldbase/internal/access"
	"github.com/fieldbase/fieldbase/internal/services"
	"github.com/fieldbase/fieldbase/pkg/response"
)

type GrantHandler struct {
	svc *services.GrantService
}

type grantRequest struct {
	PrincipalType string `json:"principal_type" validate:"required,oneof=user team"`
	PrincipalID   string `json:"principal_id" validate:"required"`
	Level         string `json:"level" validate:"required,oneof=viewer read_only read_write admin"`
}

func NewGrantHandler(svc *services.GrantService) *GrantHandler {
	return &GrantHandler{svc: svc}
}

// POST /api/projects/:id/grants
func (h *GrantHandler) Grant(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var body grantRequest
	if !bindAndValidate(c, &body) {
		return
	}

	grant, err := h.svc.Grant(requestContext(c), c.Param("id"), services.GrantInput{
		PrincipalType: body.PrincipalType,
		PrincipalID:   body.PrincipalID,
		Level:         access.Level(body.Level),
	}, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, grant)
}

// DELETE /api/projects/:id/grants/:principalType/:principalID
func (h *GrantHandler) Revoke(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	err := h.svc.Revoke(requestContext(c), c.Param("id"),
		c.Param("principalType"), c.Param("principalID"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/projects/:id/access
func (h *GrantHandler) ListEffective(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	entries, err := h.svc.ListEffective(requestContext(c), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, entries)
}

// GET /api/projects/:id/access/me
func (h *GrantHandler) MyLevel(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	level, hasAccess, err := h.svc.BestLevel(requestContext(c), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := gin.H{"has_access": hasAccess}
	if hasAccess {
		payload["level"] = level
	}
	response.Success(c, http.StatusOK, payload)
}
