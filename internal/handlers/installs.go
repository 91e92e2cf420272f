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

type InstallHandler struct {
	svc *services.InstallService
}

type installRequest struct {
	EquipmentID     string     `json:"equipment_id" validate:"required"`
	ProjectID       string     `json:"project_id" validate:"required"`
	SiteName        string     `json:"site_name" validate:"omitempty,max=256"`
	Latitude        float64    `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude       float64    `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	InstalledAt     *time.Time `json:"installed_at"`
	BatteryDueAt    *time.Time `json:"battery_due_at"`
	PermitExpiresAt *time.Time `json:"permit_expires_at"`
}

type transitionRequest struct {
	Status           string     `json:"status" validate:"required,oneof=retrieved lost abandoned"`
	UninstalledAt    *time.Time `json:"uninstalled_at"`
	UninstallActorID *string    `json:"uninstall_actor_id"`
}

type readingRequest struct {
	Value      float64    `json:"value" validate:"gte=0"`
	UnitSystem string     `json:"unit_system" validate:"omitempty,oneof=metric imperial"`
	MeasuredAt *time.Time `json:"measured_at"`
	Note       string     `json:"note" validate:"omitempty,max=512"`
}

func NewInstallHandler(svc *services.InstallService) *InstallHandler {
	return &InstallHandler{svc: svc}
}

// POST /api/installs
func (h *InstallHandler) Install(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var body installRequest
	if !bindAndValidate(c, &body) {
		return
	}

	record, err := h.svc.Install(requestContext(c), services.InstallInput{
		EquipmentID:     body.EquipmentID,
		ProjectID:       body.ProjectID,
		SiteName:        body.SiteName,
		Latitude:        body.Latitude,
		Longitude:       body.Longitude,
		InstalledAt:     body.InstalledAt,
		BatteryDueAt:    body.BatteryDueAt,
		PermitExpiresAt: body.PermitExpiresAt,
	}, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, record)
}

// GET /api/installs/:id
func (h *InstallHandler) Get(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	record, err := h.svc.GetByID(requestContext(c), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, record)
}

// POST /api/installs/:id/transition
func (h *InstallHandler) Transition(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var body transitionRequest
	if !bindAndValidate(c, &body) {
		return
	}

	record, err := h.svc.Transition(requestContext(c), c.Param("id"), body.Status, services.TransitionInput{
		UninstalledAt:    body.UninstalledAt,
		UninstallActorID: body.UninstallActorID,
	}, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, record)
}

// POST /api/installs/:id/readings
func (h *InstallHandler) AddReading(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var body readingRequest
	if !bindAndValidate(c, &body) {
		return
	}

	reading, err := h.svc.AddCheckReading(requestContext(c), c.Param("id"), services.ReadingInput{
		Value:      body.Value,
		UnitSystem: body.UnitSystem,
		MeasuredAt: body.MeasuredAt,
		Note:       body.Note,
	}, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, reading)
}

// GET /api/projects/:id/installs
func (h *InstallHandler) ListByProject(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	records, err := h.svc.ListByProject(requestContext(c), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, records)
}

// GET /api/projects/:id/watchlist?window_days=45
func (h *InstallHandler) Watchlist(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	windowDays := 0
	if raw := c.Query("window_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.NewValidation("window_days must be an integer"))
			return
		}
		windowDays = parsed
	}

	records, err := h.svc.DueForRetrieval(requestContext(c), c.Param("id"), windowDays, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, records)
}
