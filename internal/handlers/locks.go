package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldbase/fieldbase/internal/services"
	"github.com/fieldbase/fieldbase/pkg/response"
)

type LockHandler struct {
	svc *services.LockService
}

type releaseLockRequest struct {
	Comment string `json:"comment" validate:"omitempty,max=512"`
}

func NewLockHandler(svc *services.LockService) *LockHandler {
	return &LockHandler{svc: svc}
}

// POST /api/projects/:id/lock
func (h *LockHandler) Acquire(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	lock, err := h.svc.Acquire(requestContext(c), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, lock)
}

// DELETE /api/projects/:id/lock
func (h *LockHandler) Release(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	// Body is optional; an override release usually carries a comment.
	var body releaseLockRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &body) {
		return
	}

	if err := h.svc.Release(requestContext(c), c.Param("id"), actor, body.Comment); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"released": true})
}

// GET /api/projects/:id/lock
func (h *LockHandler) Status(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	status, err := h.svc.Status(requestContext(c), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// GET /api/projects/:id/lock/history
func (h *LockHandler) History(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	locks, err := h.svc.History(requestContext(c), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, locks)
}
