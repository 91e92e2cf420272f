package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fieldbase/fieldbase/internal/access"
	"github.com/fieldbase/fieldbase/internal/models"
	apperrors "github.com/fieldbase/fieldbase/pkg/errors"
	"github.com/fieldbase/fieldbase/pkg/metrics"
)

var (
	// ErrEquipmentNotFound indicates the referenced equipment unit does not exist.
	ErrEquipmentNotFound = apperrors.New("NOT_FOUND", "Equipment not found", http.StatusNotFound)
	// ErrInstallRecordNotFound indicates the referenced install record does not exist.
	ErrInstallRecordNotFound = apperrors.New("NOT_FOUND", "Install record not found", http.StatusNotFound)
	// ErrAlreadyInstalled indicates the unit already has an open placement.
	ErrAlreadyInstalled = apperrors.NewConflict("Equipment is already installed elsewhere")
)

// Plausibility ceilings for check readings, per unit system. Values at or
// above the ceiling are rejected as sensor glitches.
const (
	MaxReadingMetric   = 10_000.0
	MaxReadingImperial = 32_808.0
)

// InstallInput captures a new equipment placement.
type InstallInput struct {
	EquipmentID     string
	ProjectID       string
	SiteName        string
	Latitude        float64
	Longitude       float64
	InstalledAt     *time.Time
	BatteryDueAt    *time.Time
	PermitExpiresAt *time.Time
}

// TransitionInput carries the uninstall details for a terminal transition.
// For RETRIEVED both fields may be omitted and default to now/caller; LOST
// and ABANDONED require them because the caller is reporting on someone
// else's field event.
type TransitionInput struct {
	UninstalledAt    *time.Time
	UninstallActorID *string
}

// ReadingInput captures one periodic check measurement.
type ReadingInput struct {
	Value      float64
	UnitSystem string
	MeasuredAt *time.Time
	Note       string
}

// InstallService drives the install record lifecycle: one open placement
// per unit, a single transition into a terminal status, and append-only
// check readings while open.
type InstallService struct {
	db           *gorm.DB
	auditService *AuditService
	checker      *access.Checker
}

// NewInstallService constructs an InstallService instance.
func NewInstallService(db *gorm.DB, auditService *AuditService, checker *access.Checker) (*InstallService, error) {
	if db == nil {
		return nil, errors.New("install service: db is required")
	}
	if checker == nil {
		return nil, errors.New("install service: access checker is required")
	}
	return &InstallService{
		db:           db,
		auditService: auditService,
		checker:      checker,
	}, nil
}

// Install opens a new placement record for an equipment unit. The partial
// unique index on install_records is what actually prevents two concurrent
// installs of the same unit; a violation surfaces as ErrAlreadyInstalled.
func (s *InstallService) Install(ctx context.Context, input InstallInput, actorID string) (*models.InstallRecord, error) {
	ctx = ensureContext(ctx)

	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, apperrors.NewValidation("actor id is required")
	}

	ok, err := s.checker.Check(ctx, actorID, input.ProjectID, access.LevelReadWrite)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}

	var equipment models.Equipment
	if err := s.db.WithContext(ctx).Select("id").First(&equipment, "id = ?", input.EquipmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEquipmentNotFound
		}
		return nil, fmt.Errorf("install service: load equipment: %w", err)
	}

	installedAt := time.Now()
	if input.InstalledAt != nil {
		installedAt = *input.InstalledAt
	}

	record := &models.InstallRecord{
		EquipmentID:     input.EquipmentID,
		ProjectID:       input.ProjectID,
		SiteName:        strings.TrimSpace(input.SiteName),
		Latitude:        input.Latitude,
		Longitude:       input.Longitude,
		Status:          models.InstallStatusInstalled,
		InstalledAt:     installedAt,
		InstallActorID:  actorID,
		BatteryDueAt:    input.BatteryDueAt,
		PermitExpiresAt: input.PermitExpiresAt,
	}
	if err := record.Validate(); err != nil {
		return nil, apperrors.NewValidation(err.Error())
	}

	// On sqlite and postgres the partial unique index turns a lost race into
	// a constraint violation. MySQL has no partial indexes, so there the
	// transactional existence check under a row lock carries the guarantee.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.InstallRecord{}).
			Where("equipment_id = ? AND status = ?", input.EquipmentID, models.InstallStatusInstalled)
		if tx.Dialector.Name() == "mysql" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var openCount int64
		if err := query.Count(&openCount).Error; err != nil {
			return fmt.Errorf("install service: check open installs: %w", err)
		}
		if openCount > 0 {
			return ErrAlreadyInstalled
		}

		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("install service: create record: %w", err)
		}
		return nil
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrAlreadyInstalled
		}
		return nil, err
	}

	metrics.InstallTransitions.WithLabelValues(models.InstallStatusInstalled).Inc()

	recordAudit(s.auditService, ctx, AuditEntry{
		ActorID:  strPtr(actorID),
		Action:   "install.create",
		Resource: record.ID,
		Result:   "success",
		Metadata: map[string]any{
			"equipment_id": record.EquipmentID,
			"project_id":   record.ProjectID,
			"site_name":    record.SiteName,
		},
	})

	return record, nil
}

// Transition moves an open record into a terminal status. The UPDATE is
// guarded on status='installed' so two concurrent transitions cannot both
// win; the loser sees zero affected rows.
func (s *InstallService) Transition(ctx context.Context, recordID, target string, input TransitionInput, actorID string) (*models.InstallRecord, error) {
	ctx = ensureContext(ctx)

	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, apperrors.NewValidation("actor id is required")
	}

	target = strings.ToLower(strings.TrimSpace(target))
	if !models.TerminalInstallStatus(target) {
		return nil, apperrors.NewValidation(fmt.Sprintf("target status must be terminal, got %q", target))
	}

	record, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	ok, err := s.checker.Check(ctx, actorID, record.ProjectID, access.LevelReadWrite)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}

	uninstalledAt := input.UninstalledAt
	uninstallActor := input.UninstallActorID
	if target == models.InstallStatusRetrieved {
		if uninstalledAt == nil {
			now := time.Now()
			uninstalledAt = &now
		}
		if uninstallActor == nil {
			uninstallActor = strPtr(actorID)
		}
	}

	candidate := *record
	candidate.Status = target
	candidate.UninstalledAt = uninstalledAt
	candidate.UninstallActorID = uninstallActor
	if err := candidate.Validate(); err != nil {
		return nil, apperrors.NewValidation(err.Error())
	}

	result := s.db.WithContext(ctx).
		Model(&models.InstallRecord{}).
		Where("id = ? AND status = ?", record.ID, models.InstallStatusInstalled).
		Updates(map[string]any{
			"status":             target,
			"uninstalled_at":     uninstalledAt,
			"uninstall_actor_id": uninstallActor,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("install service: transition record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.NewValidation("cannot change status from a terminal state")
	}

	metrics.InstallTransitions.WithLabelValues(target).Inc()

	recordAudit(s.auditService, ctx, AuditEntry{
		ActorID:  strPtr(actorID),
		Action:   "install.transition",
		Resource: record.ID,
		Result:   "success",
		Metadata: map[string]any{
			"equipment_id": record.EquipmentID,
			"status":       target,
		},
	})

	return s.loadRecord(ctx, recordID)
}

// AddCheckReading appends a measurement to an open install record. Readings
// never mutate the record itself.
func (s *InstallService) AddCheckReading(ctx context.Context, recordID string, input ReadingInput, actorID string) (*models.CheckReading, error) {
	ctx = ensureContext(ctx)

	record, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	ok, err := s.checker.Check(ctx, actorID, record.ProjectID, access.LevelReadWrite)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}

	if record.Status != models.InstallStatusInstalled {
		return nil, apperrors.NewValidation("readings can only be added to an installed record")
	}

	unit := strings.ToLower(strings.TrimSpace(input.UnitSystem))
	if unit == "" {
		unit = models.UnitSystemMetric
	}

	var ceiling float64
	switch unit {
	case models.UnitSystemMetric:
		ceiling = MaxReadingMetric
	case models.UnitSystemImperial:
		ceiling = MaxReadingImperial
	default:
		return nil, apperrors.NewValidation("unit system must be metric or imperial")
	}

	if input.Value < 0 {
		return nil, apperrors.NewValidation("reading value must not be negative")
	}
	if input.Value >= ceiling {
		return nil, apperrors.NewValidation(fmt.Sprintf("reading value %.1f exceeds the %s ceiling", input.Value, unit))
	}

	measuredAt := time.Now()
	if input.MeasuredAt != nil {
		measuredAt = *input.MeasuredAt
	}

	reading := &models.CheckReading{
		InstallRecordID: record.ID,
		MeasuredAt:      measuredAt,
		Value:           input.Value,
		UnitSystem:      unit,
		ActorID:         strings.TrimSpace(actorID),
		Note:            strings.TrimSpace(input.Note),
	}
	if err := s.db.WithContext(ctx).Create(reading).Error; err != nil {
		return nil, fmt.Errorf("install service: create reading: %w", err)
	}

	return reading, nil
}

// GetByID loads an install record with its readings, gated at VIEWER on the
// record's project.
func (s *InstallService) GetByID(ctx context.Context, recordID, callerID string) (*models.InstallRecord, error) {
	ctx = ensureContext(ctx)

	record, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	ok, err := s.checker.Check(ctx, callerID, record.ProjectID, access.LevelViewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}

	if err := s.db.WithContext(ctx).
		Preload("Readings", func(db *gorm.DB) *gorm.DB {
			return db.Order("measured_at ASC")
		}).
		First(record, "id = ?", record.ID).Error; err != nil {
		return nil, fmt.Errorf("install service: reload record: %w", err)
	}

	return record, nil
}

// ListByProject returns the project's install records, newest first.
func (s *InstallService) ListByProject(ctx context.Context, projectID, callerID string) ([]models.InstallRecord, error) {
	ctx = ensureContext(ctx)

	ok, err := s.checker.Check(ctx, callerID, projectID, access.LevelViewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}

	var records []models.InstallRecord
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("installed_at DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("install service: list records: %w", err)
	}
	return records, nil
}

// DueForRetrieval returns the fleet's open install records whose battery or
// permit deadline falls before now plus windowDays. Window zero means
// strictly overdue items only.
func (s *InstallService) DueForRetrieval(ctx context.Context, fleetID string, windowDays int, callerID string) ([]models.InstallRecord, error) {
	ctx = ensureContext(ctx)

	if windowDays < 0 {
		return nil, apperrors.NewValidation("window days must not be negative")
	}

	ok, err := s.checker.Check(ctx, callerID, fleetID, access.LevelViewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}

	cutoff := time.Now().AddDate(0, 0, windowDays)

	var records []models.InstallRecord
	if err := s.db.WithContext(ctx).
		Joins("JOIN equipment ON equipment.id = install_records.equipment_id").
		Where("equipment.fleet_id = ?", fleetID).
		Where("install_records.status = ?", models.InstallStatusInstalled).
		Where("install_records.battery_due_at < ? OR install_records.permit_expires_at < ?", cutoff, cutoff).
		Order("install_records.installed_at ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("install service: watchlist query: %w", err)
	}

	return records, nil
}

func (s *InstallService) loadRecord(ctx context.Context, recordID string) (*models.InstallRecord, error) {
	var record models.InstallRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", recordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInstallRecordNotFound
		}
		return nil, fmt.Errorf("install service: load record: %w", err)
	}
	return &record, nil
}
