package access

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/fieldbase/fieldbase/internal/models"
	"github.com/fieldbase/fieldbase/pkg/metrics"
)

// Checker resolves effective access levels from grant and membership rows.
// It is read-only; grant mutation lives in the services layer.
type Checker struct {
	db *gorm.DB
}

// NewChecker constructs a Checker using the provided database handle.
func NewChecker(db *gorm.DB) (*Checker, error) {
	if db == nil {
		return nil, errors.New("access checker: db is required")
	}
	return &Checker{db: db}, nil
}

// ActiveTeamIDs returns the teams the user actively belongs to.
func (c *Checker) ActiveTeamIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	if err := c.db.WithContext(ctx).
		Model(&models.TeamMembership{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Pluck("team_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("access checker: load memberships: %w", err)
	}
	return ids, nil
}

// Sources collects every candidate level for the user on the project: the
// user's own active grant, if any, plus the active grant of every team the
// user actively belongs to.
func (c *Checker) Sources(ctx context.Context, userID, projectID string) ([]Source, error) {
	var sources []Source

	var direct models.Grant
	err := c.db.WithContext(ctx).
		Where("project_id = ? AND principal_type = ? AND principal_id = ? AND is_active = ?",
			projectID, models.PrincipalTypeUser, userID, true).
		First(&direct).Error
	switch {
	case err == nil:
		sources = append(sources, Source{Level: Level(direct.Level)})
	case errors.Is(err, gorm.ErrRecordNotFound):
		// no direct grant
	default:
		return nil, fmt.Errorf("access checker: load direct grant: %w", err)
	}

	teamIDs, err := c.ActiveTeamIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(teamIDs) == 0 {
		return sources, nil
	}

	var teamGrants []struct {
		PrincipalID string
		Level       string
		TeamName    string
	}
	if err := c.db.WithContext(ctx).
		Model(&models.Grant{}).
		Select("grants.principal_id, grants.level, teams.name AS team_name").
		Joins("JOIN teams ON teams.id = grants.principal_id").
		Where("grants.project_id = ? AND grants.principal_type = ? AND grants.principal_id IN ? AND grants.is_active = ?",
			projectID, models.PrincipalTypeTeam, teamIDs, true).
		Scan(&teamGrants).Error; err != nil {
		return nil, fmt.Errorf("access checker: load team grants: %w", err)
	}

	for _, grant := range teamGrants {
		sources = append(sources, Source{
			Level:    Level(grant.Level),
			TeamID:   grant.PrincipalID,
			TeamName: grant.TeamName,
		})
	}

	return sources, nil
}

// BestLevel computes the user's effective level on the project. The boolean
// is false when the user has no access at all.
func (c *Checker) BestLevel(ctx context.Context, userID, projectID string) (Level, bool, error) {
	sources, err := c.Sources(ctx, userID, projectID)
	if err != nil {
		return "", false, err
	}
	level, ok := BestLevel(sources)
	return level, ok, nil
}

// Check reports whether the user's effective level meets min.
func (c *Checker) Check(ctx context.Context, userID, projectID string, min Level) (bool, error) {
	level, ok, err := c.BestLevel(ctx, userID, projectID)
	if err != nil {
		metrics.PermissionChecks.WithLabelValues(string(min), "error").Inc()
		return false, err
	}

	allowed := ok && level.AtLeast(min)
	if allowed {
		metrics.PermissionChecks.WithLabelValues(string(min), "allow").Inc()
	} else {
		metrics.PermissionChecks.WithLabelValues(string(min), "deny").Inc()
	}
	return allowed, nil
}
