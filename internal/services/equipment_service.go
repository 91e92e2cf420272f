package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/fieldbase/fieldbase/internal/access"
	"github.com/fieldbase/fieldbase/internal/models"
	apperrors "github.com/fieldbase/fieldbase/pkg/errors"
)

// RegisterEquipmentInput captures a new equipment unit.
type RegisterEquipmentInput struct {
	FleetID      string
	SerialNumber string
	Model        string
	Notes        string
}

// EquipmentService manages the fleet equipment registry.
type EquipmentService struct {
	db           *gorm.DB
	auditService *AuditService
	checker      *access.Checker
}

// NewEquipmentService constructs an EquipmentService instance.
func NewEquipmentService(db *gorm.DB, auditService *AuditService, checker *access.Checker) (*EquipmentService, error) {
	if db == nil {
		return nil, errors.New("equipment service: db is required")
	}
	if checker == nil {
		return nil, errors.New("equipment service: access checker is required")
	}
	return &EquipmentService{
		db:           db,
		auditService: auditService,
		checker:      checker,
	}, nil
}

// Register adds a unit to a fleet. Serial numbers are globally unique.
func (s *EquipmentService) Register(ctx context.Context, input RegisterEquipmentInput, actorID string) (*models.Equipment, error) {
	ctx = ensureContext(ctx)

	ok, err := s.checker.Check(ctx, actorID, input.FleetID, access.LevelReadWrite)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}

	serial := strings.TrimSpace(input.SerialNumber)
	if serial == "" {
		return nil, apperrors.NewValidation("serial number is required")
	}

	var fleet models.Project
	if err := s.db.WithContext(ctx).Select("id", "kind").First(&fleet, "id = ?", input.FleetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("equipment service: load fleet: %w", err)
	}
	if fleet.Kind != models.ProjectKindFleet {
		return nil, apperrors.NewValidation("equipment can only be registered to a fleet project")
	}

	equipment := &models.Equipment{
		FleetID:      input.FleetID,
		SerialNumber: serial,
		Model:        strings.TrimSpace(input.Model),
		Notes:        strings.TrimSpace(input.Notes),
	}
	if err := s.db.WithContext(ctx).Create(equipment).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("serial number already registered")
		}
		return nil, fmt.Errorf("equipment service: create equipment: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		ActorID:  strPtr(actorID),
		Action:   "equipment.register",
		Resource: equipment.ID,
		Result:   "success",
		Metadata: map[string]any{"fleet_id": equipment.FleetID, "serial_number": equipment.SerialNumber},
	})

	return equipment, nil
}

// GetByID loads one unit, gated at VIEWER on its fleet.
func (s *EquipmentService) GetByID(ctx context.Context, id, callerID string) (*models.Equipment, error) {
	ctx = ensureContext(ctx)

	var equipment models.Equipment
	if err := s.db.WithContext(ctx).First(&equipment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEquipmentNotFound
		}
		return nil, fmt.Errorf("equipment service: load equipment: %w", err)
	}

	ok, err := s.checker.Check(ctx, callerID, equipment.FleetID, access.LevelViewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}

	return &equipment, nil
}

// ListByFleet returns the fleet's units ordered by serial number.
func (s *EquipmentService) ListByFleet(ctx context.Context, fleetID, callerID string) ([]models.Equipment, error) {
	ctx = ensureContext(ctx)

	ok, err := s.checker.Check(ctx, callerID, fleetID, access.LevelViewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}

	var units []models.Equipment
	if err := s.db.WithContext(ctx).
		Where("fleet_id = ?", fleetID).
		Order("serial_number ASC").
		Find(&units).Error; err != nil {
		return nil, fmt.Errorf("equipment service: list equipment: %w", err)
	}
	return units, nil
}
