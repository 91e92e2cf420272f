package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldbase/fieldbase/internal/services"
	"github.com/fieldbase/fieldbase/pkg/response"
)

type EquipmentHandler struct {
	svc *services.EquipmentService
}

type registerEquipmentRequest struct {
	FleetID      string `json:"fleet_id" validate:"required"`
	SerialNumber string `json:"serial_number" validate:"required,max=128"`
	Model        string `json:"model" validate:"omitempty,max=128"`
	Notes        string `json:"notes" validate:"omitempty,max=512"`
}

func NewEquipmentHandler(svc *services.EquipmentService) *EquipmentHandler {
	return &EquipmentHandler{svc: svc}
}

// POST /api/equipment
func (h *EquipmentHandler) Register(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var body registerEquipmentRequest
	if !bindAndValidate(c, &body) {
		return
	}

	equipment, err := h.svc.Register(requestContext(c), services.RegisterEquipmentInput{
		FleetID:      body.FleetID,
		SerialNumber: body.SerialNumber,
		Model:        body.Model,
		Notes:        body.Notes,
	}, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, equipment)
}

// GET /api/equipment/:id
func (h *EquipmentHandler) Get(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	equipment, err := h.svc.GetByID(requestContext(c), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, equipment)
}

// GET /api/projects/:id/equipment
func (h *EquipmentHandler) ListByFleet(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	units, err := h.svc.ListByFleet(requestContext(c), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, units)
}
