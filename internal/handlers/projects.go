package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldbase/fieldbase/internal/services"
	"github.com/fieldbase/fieldbase/pkg/response"
)

type ProjectHandler struct {
	svc *services.ProjectService
}

type createProjectRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=128"`
	Kind        string `json:"kind" validate:"omitempty,oneof=survey fleet"`
	Description string `json:"description" validate:"omitempty,max=512"`
}

type updateContentRequest struct {
	Content string `json:"content"`
}

func NewProjectHandler(svc *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{svc: svc}
}

// POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var body createProjectRequest
	if !bindAndValidate(c, &body) {
		return
	}

	project, err := h.svc.Create(requestContext(c), services.CreateProjectInput{
		Name:        body.Name,
		Kind:        body.Kind,
		Description: body.Description,
	}, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, project)
}

// GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	projects, err := h.svc.List(requestContext(c), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, projects)
}

// GET /api/projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	project, err := h.svc.GetByID(requestContext(c), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, project)
}

// PUT /api/projects/:id/content
func (h *ProjectHandler) UpdateContent(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var body updateContentRequest
	if !bindAndValidate(c, &body) {
		return
	}

	project, err := h.svc.UpdateContent(requestContext(c), c.Param("id"), actor, body.Content)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, project)
}
