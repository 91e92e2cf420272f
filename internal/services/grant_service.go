package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/fieldbase/fieldbase/internal/access"
	"github.com/fieldbase/fieldbase/internal/models"
	apperrors "github.com/fieldbase/fieldbase/pkg/errors"
)

// GrantInput describes the payload for creating or reactivating a grant.
type GrantInput struct {
	PrincipalType string
	PrincipalID   string
	Level         access.Level
}

// EffectiveAccess is one row of a project's resolved access listing: the
// single highest-level entry for a user, with the contributing team when the
// winning grant is team-inherited.
type EffectiveAccess struct {
	UserID      string       `json:"user_id"`
	Username    string       `json:"username"`
	Level       access.Level `json:"level"`
	ViaTeamID   string       `json:"via_team_id,omitempty"`
	ViaTeamName string       `json:"via_team_name,omitempty"`
}

// GrantService manages per-(principal, project) permission grants. Rows are
// never hard-deleted: revocation deactivates, a later grant reactivates.
type GrantService struct {
	db           *gorm.DB
	auditService *AuditService
	checker      *access.Checker
}

// NewGrantService constructs a GrantService instance.
func NewGrantService(db *gorm.DB, auditService *AuditService, checker *access.Checker) (*GrantService, error) {
	if db == nil {
		return nil, errors.New("grant service: db is required")
	}
	if checker == nil {
		return nil, errors.New("grant service: access checker is required")
	}
	return &GrantService{
		db:           db,
		auditService: auditService,
		checker:      checker,
	}, nil
}

// Grant creates a grant, or reactivates and relevels the existing row for
// the same (principal, project). The caller must hold ADMIN on the project;
// that check runs before anything else so an unauthorized caller learns
// nothing about the project's grants.
func (s *GrantService) Grant(ctx context.Context, projectID string, input GrantInput, actorID string) (*models.Grant, error) {
	ctx = ensureContext(ctx)

	ok, err := s.checker.Check(ctx, actorID, projectID, access.LevelAdmin)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}

	principalType := strings.ToLower(strings.TrimSpace(input.PrincipalType))
	principalID := strings.TrimSpace(input.PrincipalID)
	if principalType == "" || principalID == "" {
		return nil, apperrors.NewValidation("principal type and id are required")
	}
	if principalType != models.PrincipalTypeUser && principalType != models.PrincipalTypeTeam {
		return nil, apperrors.NewValidation("principal type must be user or team")
	}
	if !input.Level.Valid() {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown access level %q", input.Level))
	}

	if err := s.ensureProjectExists(ctx, projectID); err != nil {
		return nil, err
	}
	if err := s.ensurePrincipalExists(ctx, principalType, principalID); err != nil {
		return nil, err
	}

	grant, err := s.upsertGrant(ctx, projectID, principalType, principalID, input.Level, actorID)
	if err != nil && errors.Is(err, apperrors.ErrConflict) {
		// Lost an insert race: another caller created the row between our
		// read and write. One retry with a fresh read takes the update path.
		grant, err = s.upsertGrant(ctx, projectID, principalType, principalID, input.Level, actorID)
	}
	if err != nil {
		return nil, err
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		ActorID:  strPtr(actorID),
		Action:   "grant.create",
		Resource: projectID,
		Result:   "success",
		Metadata: map[string]any{
			"principal_type": principalType,
			"principal_id":   principalID,
			"level":          string(input.Level),
		},
	})

	return grant, nil
}

func (s *GrantService) upsertGrant(ctx context.Context, projectID, principalType, principalID string, level access.Level, actorID string) (*models.Grant, error) {
	var existing models.Grant
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND principal_type = ? AND principal_id = ?",
			projectID, principalType, principalID).
		First(&existing).Error

	switch {
	case err == nil:
		updates := map[string]any{
			"level":             string(level),
			"is_active":         true,
			"granted_by_id":     actorID,
			"deactivated_by_id": nil,
		}
		if err := s.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("grant service: reactivate grant: %w", err)
		}
		if err := s.db.WithContext(ctx).First(&existing, "id = ?", existing.ID).Error; err != nil {
			return nil, fmt.Errorf("grant service: reload grant: %w", err)
		}
		return &existing, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		grant := models.Grant{
			ProjectID:     projectID,
			PrincipalType: principalType,
			PrincipalID:   principalID,
			Level:         string(level),
			IsActive:      true,
			GrantedByID:   strPtr(actorID),
		}
		if err := s.db.WithContext(ctx).Create(&grant).Error; err != nil {
			if isUniqueConstraintError(err) {
				return nil, apperrors.NewConflict("grant changed concurrently")
			}
			return nil, fmt.Errorf("grant service: create grant: %w", err)
		}
		return &grant, nil

	default:
		return nil, fmt.Errorf("grant service: load grant: %w", err)
	}
}

// Revoke deactivates a grant, recording who revoked it. A principal can
// never revoke its own access; this holds even for the project's ADMIN so a
// lockout is always someone else's deliberate act.
func (s *GrantService) Revoke(ctx context.Context, projectID, principalType, principalID, actorID string) error {
	ctx = ensureContext(ctx)

	ok, err := s.checker.Check(ctx, actorID, projectID, access.LevelAdmin)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrForbidden
	}

	principalType = strings.ToLower(strings.TrimSpace(principalType))
	principalID = strings.TrimSpace(principalID)

	if principalType == models.PrincipalTypeUser && principalID == strings.TrimSpace(actorID) {
		return apperrors.ErrSelfModify
	}

	var grant models.Grant
	err = s.db.WithContext(ctx).
		Where("project_id = ? AND principal_type = ? AND principal_id = ?",
			projectID, principalType, principalID).
		First(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NewNotFound("no grant exists for this principal")
	}
	if err != nil {
		return fmt.Errorf("grant service: load grant: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&grant).Updates(map[string]any{
		"is_active":         false,
		"deactivated_by_id": actorID,
	}).Error; err != nil {
		return fmt.Errorf("grant service: deactivate grant: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		ActorID:  strPtr(actorID),
		Action:   "grant.revoke",
		Resource: projectID,
		Result:   "success",
		Metadata: map[string]any{
			"principal_type": principalType,
			"principal_id":   principalID,
		},
	})

	return nil
}

// BestLevel computes the user's effective level on a project, or false when
// the user has no access.
func (s *GrantService) BestLevel(ctx context.Context, userID, projectID string) (access.Level, bool, error) {
	return s.checker.BestLevel(ensureContext(ctx), userID, projectID)
}

// Check reports whether the user's effective level meets min.
func (s *GrantService) Check(ctx context.Context, userID, projectID string, min access.Level) (bool, error) {
	return s.checker.Check(ensureContext(ctx), userID, projectID, min)
}

// ListEffective resolves the project's access for display: direct and
// team-derived grants merged, one entry per user at their highest level,
// sorted by level descending then user id ascending.
func (s *GrantService) ListEffective(ctx context.Context, projectID, callerID string) ([]EffectiveAccess, error) {
	ctx = ensureContext(ctx)

	ok, err := s.checker.Check(ctx, callerID, projectID, access.LevelViewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}

	var grants []models.Grant
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND is_active = ?", projectID, true).
		Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("grant service: list grants: %w", err)
	}

	sourcesByUser := make(map[string][]access.Source)
	for _, grant := range grants {
		switch grant.PrincipalType {
		case models.PrincipalTypeUser:
			sourcesByUser[grant.PrincipalID] = append(sourcesByUser[grant.PrincipalID],
				access.Source{Level: access.Level(grant.Level)})
		case models.PrincipalTypeTeam:
			members, teamName, err := s.activeTeamMembers(ctx, grant.PrincipalID)
			if err != nil {
				return nil, err
			}
			for _, userID := range members {
				sourcesByUser[userID] = append(sourcesByUser[userID], access.Source{
					Level:    access.Level(grant.Level),
					TeamID:   grant.PrincipalID,
					TeamName: teamName,
				})
			}
		}
	}

	usernames, err := s.loadUsernames(ctx, sourcesByUser)
	if err != nil {
		return nil, err
	}

	entries := make([]EffectiveAccess, 0, len(sourcesByUser))
	for userID, sources := range sourcesByUser {
		best, ok := access.Best(sources)
		if !ok {
			continue
		}
		entries = append(entries, EffectiveAccess{
			UserID:      userID,
			Username:    usernames[userID],
			Level:       best.Level,
			ViaTeamID:   best.TeamID,
			ViaTeamName: best.TeamName,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Level != entries[j].Level {
			return entries[j].Level.Less(entries[i].Level)
		}
		return entries[i].UserID < entries[j].UserID
	})

	return entries, nil
}

func (s *GrantService) activeTeamMembers(ctx context.Context, teamID string) ([]string, string, error) {
	var team models.Team
	if err := s.db.WithContext(ctx).Select("id", "name").First(&team, "id = ?", teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("grant service: load team: %w", err)
	}

	var userIDs []string
	if err := s.db.WithContext(ctx).
		Model(&models.TeamMembership{}).
		Where("team_id = ? AND is_active = ?", teamID, true).
		Pluck("user_id", &userIDs).Error; err != nil {
		return nil, "", fmt.Errorf("grant service: load team members: %w", err)
	}

	return userIDs, team.Name, nil
}

func (s *GrantService) loadUsernames(ctx context.Context, sourcesByUser map[string][]access.Source) (map[string]string, error) {
	names := make(map[string]string, len(sourcesByUser))
	if len(sourcesByUser) == 0 {
		return names, nil
	}

	ids := make([]string, 0, len(sourcesByUser))
	for id := range sourcesByUser {
		ids = append(ids, id)
	}

	var users []models.User
	if err := s.db.WithContext(ctx).
		Select("id", "username").
		Where("id IN ?", ids).
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("grant service: load users: %w", err)
	}

	for _, user := range users {
		names[user.ID] = user.Username
	}
	return names, nil
}

func (s *GrantService) ensureProjectExists(ctx context.Context, projectID string) error {
	var project models.Project
	if err := s.db.WithContext(ctx).Select("id").First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("grant service: load project: %w", err)
	}
	return nil
}

func (s *GrantService) ensurePrincipalExists(ctx context.Context, principalType, principalID string) error {
	switch principalType {
	case models.PrincipalTypeUser:
		var user models.User
		if err := s.db.WithContext(ctx).Select("id", "is_active").First(&user, "id = ?", principalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("grant service: load user: %w", err)
		}
		if !user.IsActive {
			return apperrors.NewValidation("user is deactivated")
		}
	case models.PrincipalTypeTeam:
		var team models.Team
		if err := s.db.WithContext(ctx).Select("id").First(&team, "id = ?", principalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTeamNotFound
			}
			return fmt.Errorf("grant service: load team: %w", err)
		}
	}
	return nil
}
