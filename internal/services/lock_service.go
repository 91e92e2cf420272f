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

// ErrLockHeld indicates another user currently holds the project's lock.
var ErrLockHeld = apperrors.NewConflict("Project is locked by another user")

// LockStatus reports a project's current lock state.
type LockStatus struct {
	Locked          bool       `json:"locked"`
	HolderID        string     `json:"holder_id,omitempty"`
	AcquiredAt      *time.Time `json:"acquired_at,omitempty"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
}

// LockService implements the exclusive per-project write lock. The open lock
// row (released_at IS NULL) is the lock; the partial unique index on
// resource_locks makes concurrent inserts for the same project impossible,
// so the database, not this code, is the arbiter under contention.
type LockService struct {
	db           *gorm.DB
	auditService *AuditService
	checker      *access.Checker
}

// NewLockService constructs a LockService instance.
func NewLockService(db *gorm.DB, auditService *AuditService, checker *access.Checker) (*LockService, error) {
	if db == nil {
		return nil, errors.New("lock service: db is required")
	}
	if checker == nil {
		return nil, errors.New("lock service: access checker is required")
	}
	return &LockService{
		db:           db,
		auditService: auditService,
		checker:      checker,
	}, nil
}

// Acquire takes the project's exclusive lock for the caller. Re-acquiring a
// lock the caller already holds is idempotent and refreshes the heartbeat.
// A lock held by someone else yields ErrLockHeld.
func (s *LockService) Acquire(ctx context.Context, projectID, callerID string) (*models.ResourceLock, error) {
	ctx = ensureContext(ctx)

	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return nil, apperrors.NewValidation("caller id is required")
	}

	ok, err := s.checker.Check(ctx, callerID, projectID, access.LevelReadWrite)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}

	lock, raced, err := s.tryAcquire(ctx, projectID, callerID)
	if raced {
		// Lost the insert race. The winner's row is visible now, so one
		// retry resolves to either a refresh or ErrLockHeld.
		lock, _, err = s.tryAcquire(ctx, projectID, callerID)
	}
	if err != nil {
		if err == ErrLockHeld {
			metrics.LockOperations.WithLabelValues("conflict").Inc()
		}
		return nil, err
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		ActorID:  strPtr(callerID),
		Action:   "lock.acquire",
		Resource: projectID,
		Result:   "success",
	})

	return lock, nil
}

// tryAcquire makes one attempt. raced is true only when the insert lost to
// a concurrent acquirer, in which case a fresh attempt can classify the
// outcome properly. On sqlite and postgres the partial unique index arbitrates
// the race; on MySQL the open-row read holds a row lock for the transaction.
func (s *LockService) tryAcquire(ctx context.Context, projectID, callerID string) (lock *models.ResourceLock, raced bool, err error) {
	var outcome string

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := openLockRow(tx, projectID, true)
		if err != nil {
			return err
		}

		if open != nil {
			if open.HolderID != callerID {
				return ErrLockHeld
			}
			heartbeat := time.Now()
			if err := tx.Model(open).Update("last_heartbeat_at", heartbeat).Error; err != nil {
				return fmt.Errorf("lock service: refresh heartbeat: %w", err)
			}
			open.LastHeartbeatAt = heartbeat
			lock = open
			outcome = "refreshed"
			return nil
		}

		now := time.Now()
		fresh := &models.ResourceLock{
			ProjectID:       projectID,
			HolderID:        callerID,
			AcquiredAt:      now,
			LastHeartbeatAt: now,
		}
		if err := tx.Create(fresh).Error; err != nil {
			return fmt.Errorf("lock service: create lock: %w", err)
		}
		lock = fresh
		outcome = "acquired"
		return nil
	})
	if txErr != nil {
		if txErr == ErrLockHeld {
			return nil, false, ErrLockHeld
		}
		if isUniqueConstraintError(txErr) {
			return nil, true, apperrors.NewConflict("lock changed concurrently")
		}
		return nil, false, txErr
	}

	metrics.LockOperations.WithLabelValues(outcome).Inc()
	return lock, false, nil
}

// Release closes the project's open lock. The holder may always release
// their own lock; a project ADMIN may override-release anyone's, which is
// the recovery path for locks orphaned by departed users.
func (s *LockService) Release(ctx context.Context, projectID, callerID, comment string) error {
	ctx = ensureContext(ctx)

	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return apperrors.NewValidation("caller id is required")
	}

	open, err := s.openLock(ctx, projectID)
	if err != nil {
		return err
	}

	// Holding the lock is itself the authority to release it, even when the
	// holder's write grant was revoked after acquiring. Anyone else needs
	// ADMIN, and the admin check runs before the "no active lock" answer so
	// an unauthorized caller learns nothing about the lock state.
	override := false
	if open == nil || open.HolderID != callerID {
		isAdmin, err := s.checker.Check(ctx, callerID, projectID, access.LevelAdmin)
		if err != nil {
			return err
		}
		if !isAdmin {
			return apperrors.ErrForbidden
		}
		override = open != nil
	}

	if open == nil {
		return apperrors.NewValidation("project has no active lock")
	}

	// Guard on released_at so a concurrent release of the same row closes
	// it exactly once.
	result := s.db.WithContext(ctx).
		Model(&models.ResourceLock{}).
		Where("id = ? AND released_at IS NULL", open.ID).
		Updates(map[string]any{
			"released_at":     time.Now(),
			"released_by_id":  callerID,
			"release_comment": strings.TrimSpace(comment),
		})
	if result.Error != nil {
		return fmt.Errorf("lock service: release lock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewValidation("project has no active lock")
	}

	outcome := "released"
	if override {
		outcome = "override"
	}
	metrics.LockOperations.WithLabelValues(outcome).Inc()

	recordAudit(s.auditService, ctx, AuditEntry{
		ActorID:  strPtr(callerID),
		Action:   "lock.release",
		Resource: projectID,
		Result:   "success",
		Metadata: map[string]any{
			"holder_id": open.HolderID,
			"override":  override,
			"comment":   strings.TrimSpace(comment),
		},
	})

	return nil
}

// Status reports whether the project is locked and by whom. Requires VIEWER.
func (s *LockService) Status(ctx context.Context, projectID, callerID string) (*LockStatus, error) {
	ctx = ensureContext(ctx)

	ok, err := s.checker.Check(ctx, callerID, projectID, access.LevelViewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}

	open, err := s.openLock(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return &LockStatus{}, nil
	}

	return &LockStatus{
		Locked:          true,
		HolderID:        open.HolderID,
		AcquiredAt:      &open.AcquiredAt,
		LastHeartbeatAt: &open.LastHeartbeatAt,
	}, nil
}

// History returns the project's closed and open lock rows, newest first.
func (s *LockService) History(ctx context.Context, projectID, callerID string) ([]models.ResourceLock, error) {
	ctx = ensureContext(ctx)

	ok, err := s.checker.Check(ctx, callerID, projectID, access.LevelViewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}

	var locks []models.ResourceLock
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("acquired_at DESC").
		Find(&locks).Error; err != nil {
		return nil, fmt.Errorf("lock service: list locks: %w", err)
	}
	return locks, nil
}

// RequireHolder fails with Forbidden unless the caller currently holds the
// project's lock. Content writes call this instead of a plain level check.
func (s *LockService) RequireHolder(ctx context.Context, projectID, callerID string) error {
	ctx = ensureContext(ctx)

	open, err := s.openLock(ctx, projectID)
	if err != nil {
		return err
	}
	if open == nil || open.HolderID != strings.TrimSpace(callerID) {
		return apperrors.New("FORBIDDEN", "Project lock must be held to write content", http.StatusForbidden)
	}
	return nil
}

func (s *LockService) openLock(ctx context.Context, projectID string) (*models.ResourceLock, error) {
	return openLockRow(s.db.WithContext(ctx), projectID, false)
}

// openLockRow loads the project's open lock row, or nil when unlocked. With
// forUpdate set it takes a row lock on MySQL, where no partial unique index
// backs the mutual exclusion.
func openLockRow(db *gorm.DB, projectID string, forUpdate bool) (*models.ResourceLock, error) {
	query := db.Where("project_id = ? AND released_at IS NULL", projectID)
	if forUpdate && db.Dialector.Name() == "mysql" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var lock models.ResourceLock
	err := query.First(&lock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock service: load lock: %w", err)
	}
	return &lock, nil
}
