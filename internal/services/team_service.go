package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/fieldbase/fieldbase/internal/models"
	apperrors "github.com/fieldbase/fieldbase/pkg/errors"
)

var (
	// ErrTeamNotFound indicates the requested team does not exist.
	ErrTeamNotFound = apperrors.New("NOT_FOUND", "Team not found", http.StatusNotFound)
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrMembershipNotFound indicates the user has no membership row in the team.
	ErrMembershipNotFound = apperrors.New("NOT_FOUND", "User is not a member of the team", http.StatusNotFound)
)

// CreateTeamInput captures new team metadata.
type CreateTeamInput struct {
	Name        string
	Description string
}

// TeamService handles team lifecycle and membership management. Membership
// rows are soft-deactivated rather than deleted so a user's effective teams
// are always the rows with is_active=true.
type TeamService struct {
	db           *gorm.DB
	auditService *AuditService
}

// NewTeamService constructs a TeamService instance.
func NewTeamService(db *gorm.DB, auditService *AuditService) (*TeamService, error) {
	if db == nil {
		return nil, errors.New("team service: db is required")
	}
	return &TeamService{
		db:           db,
		auditService: auditService,
	}, nil
}

// Create registers a new team.
func (s *TeamService) Create(ctx context.Context, input CreateTeamInput, actorID string) (*models.Team, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidation("team name is required")
	}

	team := &models.Team{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
	}

	if err := s.db.WithContext(ctx).Create(team).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("team name already exists")
		}
		return nil, fmt.Errorf("team service: create team: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		ActorID:  strPtr(actorID),
		Action:   "team.create",
		Resource: team.ID,
		Result:   "success",
		Metadata: map[string]any{"name": team.Name},
	})

	return team, nil
}

// GetByID loads a team with its active memberships.
func (s *TeamService) GetByID(ctx context.Context, id string) (*models.Team, error) {
	ctx = ensureContext(ctx)

	var team models.Team
	err := s.db.WithContext(ctx).
		Preload("Memberships", "is_active = ?", true).
		Preload("Memberships.User").
		First(&team, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("team service: get team: %w", err)
	}

	return &team, nil
}

// AddMember attaches a user to a team, reactivating a previously removed
// membership row instead of inserting a duplicate.
func (s *TeamService) AddMember(ctx context.Context, teamID, userID, role string, actorID string) error {
	ctx = ensureContext(ctx)

	teamID = strings.TrimSpace(teamID)
	userID = strings.TrimSpace(userID)
	if teamID == "" || userID == "" {
		return apperrors.NewValidation("team id and user id are required")
	}

	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = models.TeamRoleMember
	}
	if role != models.TeamRoleMember && role != models.TeamRoleLeader {
		return apperrors.NewValidation("role must be member or leader")
	}

	var team models.Team
	if err := s.db.WithContext(ctx).Select("id").First(&team, "id = ?", teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTeamNotFound
		}
		return fmt.Errorf("team service: load team: %w", err)
	}

	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "is_active").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("team service: load user: %w", err)
	}
	if !user.IsActive {
		return apperrors.NewValidation("user is deactivated")
	}

	var existing models.TeamMembership
	err := s.db.WithContext(ctx).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		First(&existing).Error
	switch {
	case err == nil:
		if err := s.db.WithContext(ctx).Model(&existing).Updates(map[string]any{
			"role":      role,
			"is_active": true,
		}).Error; err != nil {
			return fmt.Errorf("team service: reactivate membership: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		membership := models.TeamMembership{
			TeamID:   teamID,
			UserID:   userID,
			Role:     role,
			IsActive: true,
		}
		if err := s.db.WithContext(ctx).Create(&membership).Error; err != nil {
			if isUniqueConstraintError(err) {
				// Lost a race with a concurrent AddMember; the row exists now.
				return apperrors.NewConflict("membership changed concurrently")
			}
			return fmt.Errorf("team service: create membership: %w", err)
		}
	default:
		return fmt.Errorf("team service: check membership: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		ActorID:  strPtr(actorID),
		Action:   "team.add_member",
		Resource: teamID,
		Result:   "success",
		Metadata: map[string]any{"user_id": userID, "role": role},
	})

	return nil
}

// RemoveMember deactivates a user's membership. The row is retained.
func (s *TeamService) RemoveMember(ctx context.Context, teamID, userID, actorID string) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(teamID) == "" || strings.TrimSpace(userID) == "" {
		return apperrors.NewValidation("team id and user id are required")
	}

	result := s.db.WithContext(ctx).
		Model(&models.TeamMembership{}).
		Where("team_id = ? AND user_id = ? AND is_active = ?", teamID, userID, true).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("team service: deactivate membership: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrMembershipNotFound
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		ActorID:  strPtr(actorID),
		Action:   "team.remove_member",
		Resource: teamID,
		Result:   "success",
		Metadata: map[string]any{"user_id": userID},
	})

	return nil
}

// ListMembers returns the active memberships of a team.
func (s *TeamService) ListMembers(ctx context.Context, teamID string) ([]models.TeamMembership, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(teamID) == "" {
		return nil, apperrors.NewValidation("team id is required")
	}

	team, err := s.GetByID(ctx, teamID)
	if err != nil {
		return nil, err
	}

	return team.Memberships, nil
}
