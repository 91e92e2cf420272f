package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/fieldbase/fieldbase/internal/access"
	"github.com/fieldbase/fieldbase/internal/models"
	apperrors "github.com/fieldbase/fieldbase/pkg/errors"
)

// ErrProjectNotFound indicates the requested project does not exist.
var ErrProjectNotFound = apperrors.New("NOT_FOUND", "Project not found", http.StatusNotFound)

// CreateProjectInput captures new project metadata.
type CreateProjectInput struct {
	Name        string
	Kind        string
	Description string
}

// ProjectService manages survey projects and equipment fleets. Creating a
// project grants the creator ADMIN in the same transaction, so a resource is
// never left without an administrator.
type ProjectService struct {
	db           *gorm.DB
	auditService *AuditService
	checker      *access.Checker
	locks        *LockService
}

// NewProjectService constructs a ProjectService instance.
func NewProjectService(db *gorm.DB, auditService *AuditService, checker *access.Checker, locks *LockService) (*ProjectService, error) {
	if db == nil {
		return nil, errors.New("project service: db is required")
	}
	if checker == nil {
		return nil, errors.New("project service: access checker is required")
	}
	return &ProjectService{
		db:           db,
		auditService: auditService,
		checker:      checker,
		locks:        locks,
	}, nil
}

// Create registers a new project and seeds the creator's ADMIN grant.
func (s *ProjectService) Create(ctx context.Context, input CreateProjectInput, actorID string) (*models.Project, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidation("project name is required")
	}

	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, apperrors.NewValidation("actor id is required")
	}

	kind := strings.ToLower(strings.TrimSpace(input.Kind))
	if kind == "" {
		kind = models.ProjectKindSurvey
	}
	if kind != models.ProjectKindSurvey && kind != models.ProjectKindFleet {
		return nil, apperrors.NewValidation("kind must be survey or fleet")
	}

	project := &models.Project{
		Name:        name,
		Kind:        kind,
		Description: strings.TrimSpace(input.Description),
		OwnerUserID: actorID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return fmt.Errorf("project service: create project: %w", err)
		}

		grant := models.Grant{
			ProjectID:     project.ID,
			PrincipalType: models.PrincipalTypeUser,
			PrincipalID:   actorID,
			Level:         string(access.LevelAdmin),
			IsActive:      true,
			GrantedByID:   strPtr(actorID),
		}
		if err := tx.Create(&grant).Error; err != nil {
			return fmt.Errorf("project service: seed admin grant: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		ActorID:  strPtr(actorID),
		Action:   "project.create",
		Resource: project.ID,
		Result:   "success",
		Metadata: map[string]any{"name": project.Name, "kind": project.Kind},
	})

	return project, nil
}

// GetByID loads a project visible to the caller (VIEWER or better).
func (s *ProjectService) GetByID(ctx context.Context, projectID, callerID string) (*models.Project, error) {
	ctx = ensureContext(ctx)

	ok, err := s.checker.Check(ctx, callerID, projectID, access.LevelViewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}

	var project models.Project
	if err := s.db.WithContext(ctx).First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("project service: load project: %w", err)
	}

	return &project, nil
}

// List returns the projects the caller can see through any active grant,
// direct or team-inherited.
func (s *ProjectService) List(ctx context.Context, callerID string) ([]models.Project, error) {
	ctx = ensureContext(ctx)

	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return nil, apperrors.NewValidation("caller id is required")
	}

	teamIDs, err := s.checker.ActiveTeamIDs(ctx, callerID)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).
		Model(&models.Grant{}).
		Select("DISTINCT project_id").
		Where("is_active = ?", true)

	if len(teamIDs) > 0 {
		query = query.Where(
			"(principal_type = ? AND principal_id = ?) OR (principal_type = ? AND principal_id IN ?)",
			models.PrincipalTypeUser, callerID, models.PrincipalTypeTeam, teamIDs,
		)
	} else {
		query = query.Where("principal_type = ? AND principal_id = ?", models.PrincipalTypeUser, callerID)
	}

	var projectIDs []string
	if err := query.Pluck("project_id", &projectIDs).Error; err != nil {
		return nil, fmt.Errorf("project service: resolve visible projects: %w", err)
	}
	if len(projectIDs) == 0 {
		return []models.Project{}, nil
	}

	var projects []models.Project
	if err := s.db.WithContext(ctx).
		Where("id IN ?", projectIDs).
		Order("created_at ASC").
		Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("project service: list projects: %w", err)
	}

	return projects, nil
}

// UpdateContent replaces the project's content. Holding write-level access
// is not enough here: the caller must presently hold the project's exclusive
// lock, which is the stricter gate applied to collaborative writes.
func (s *ProjectService) UpdateContent(ctx context.Context, projectID, callerID, content string) (*models.Project, error) {
	ctx = ensureContext(ctx)

	if s.locks == nil {
		return nil, errors.New("project service: lock service is required for content writes")
	}

	if err := s.locks.RequireHolder(ctx, projectID, callerID); err != nil {
		return nil, err
	}

	var project models.Project
	if err := s.db.WithContext(ctx).First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("project service: load project: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&project).Update("content", content).Error; err != nil {
		return nil, fmt.Errorf("project service: update content: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		ActorID:  strPtr(callerID),
		Action:   "project.update_content",
		Resource: project.ID,
		Result:   "success",
	})

	return &project, nil
}
