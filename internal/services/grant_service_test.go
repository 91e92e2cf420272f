package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbase/fieldbase/internal/access"
	"github.com/fieldbase/fieldbase/internal/models"
	apperrors "github.com/fieldbase/fieldbase/pkg/errors"
)

func TestGrantRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.user(t, "owner")
	writer := env.user(t, "writer")
	outsider := env.user(t, "outsider")
	project := env.project(t, owner.ID, models.ProjectKindSurvey)

	env.grantLevel(t, project.ID, owner.ID, models.PrincipalTypeUser, writer.ID, access.LevelReadWrite)

	// READ_WRITE is not enough to manage grants.
	_, err := env.grants.Grant(ctx, project.ID, GrantInput{
		PrincipalType: models.PrincipalTypeUser,
		PrincipalID:   outsider.ID,
		Level:         access.LevelViewer,
	}, writer.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = env.grants.Grant(ctx, project.ID, GrantInput{
		PrincipalType: models.PrincipalTypeUser,
		PrincipalID:   outsider.ID,
		Level:         access.LevelViewer,
	}, outsider.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestGrantUnknownPrincipal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.user(t, "owner")
	project := env.project(t, owner.ID, models.ProjectKindSurvey)

	_, err := env.grants.Grant(ctx, project.ID, GrantInput{
		PrincipalType: models.PrincipalTypeUser,
		PrincipalID:   "00000000-0000-0000-0000-000000000000",
		Level:         access.LevelViewer,
	}, owner.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = env.grants.Grant(ctx, project.ID, GrantInput{
		PrincipalType: models.PrincipalTypeTeam,
		PrincipalID:   "00000000-0000-0000-0000-000000000000",
		Level:         access.LevelViewer,
	}, owner.ID)
	assert.ErrorIs(t, err, ErrTeamNotFound)
}

func TestGrantDeactivatedUserRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.user(t, "owner")
	admin2 := env.user(t, "admin2")
	leaver := env.user(t, "leaver")
	project := env.project(t, owner.ID, models.ProjectKindSurvey)
	env.grantLevel(t, project.ID, owner.ID, models.PrincipalTypeUser, admin2.ID, access.LevelAdmin)

	require.NoError(t, env.users.Deactivate(ctx, leaver.ID, admin2.ID))

	_, err := env.grants.Grant(ctx, project.ID, GrantInput{
		PrincipalType: models.PrincipalTypeUser,
		PrincipalID:   leaver.ID,
		Level:         access.LevelViewer,
	}, owner.ID)
	require.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Contains(t, err.Error(), "deactivated")
}

func TestRevokeDeactivatesAndRegrantReactivates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.user(t, "owner")
	member := env.user(t, "member")
	project := env.project(t, owner.ID, models.ProjectKindSurvey)

	env.grantLevel(t, project.ID, owner.ID, models.PrincipalTypeUser, member.ID, access.LevelReadWrite)

	level, ok, err := env.grants.BestLevel(ctx, member.ID, project.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, access.LevelReadWrite, level)

	require.NoError(t, env.grants.Revoke(ctx, project.ID, models.PrincipalTypeUser, member.ID, owner.ID))

	_, ok, err = env.grants.BestLevel(ctx, member.ID, project.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// The row survives revocation and records who revoked it.
	var row models.Grant
	require.NoError(t, env.db.
		Where("project_id = ? AND principal_id = ?", project.ID, member.ID).
		First(&row).Error)
	assert.False(t, row.IsActive)
	require.NotNil(t, row.DeactivatedByID)
	assert.Equal(t, owner.ID, *row.DeactivatedByID)

	// Granting again reuses the same row at the new level.
	env.grantLevel(t, project.ID, owner.ID, models.PrincipalTypeUser, member.ID, access.LevelViewer)

	var count int64
	require.NoError(t, env.db.Model(&models.Grant{}).
		Where("project_id = ? AND principal_id = ?", project.ID, member.ID).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)

	level, ok, err = env.grants.BestLevel(ctx, member.ID, project.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, access.LevelViewer, level)
}

func TestRevokeSelfForbiddenEvenForAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.user(t, "owner")
	project := env.project(t, owner.ID, models.ProjectKindSurvey)

	err := env.grants.Revoke(ctx, project.ID, models.PrincipalTypeUser, owner.ID, owner.ID)
	assert.ErrorIs(t, err, apperrors.ErrSelfModify)

	// The grant is untouched.
	level, ok, bestErr := env.grants.BestLevel(ctx, owner.ID, project.ID)
	require.NoError(t, bestErr)
	require.True(t, ok)
	assert.Equal(t, access.LevelAdmin, level)
}

func TestRevokeMissingGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.user(t, "owner")
	stranger := env.user(t, "stranger")
	project := env.project(t, owner.ID, models.ProjectKindSurvey)

	err := env.grants.Revoke(ctx, project.ID, models.PrincipalTypeUser, stranger.ID, owner.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestBestLevelUnionOfDirectAndTeams(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.user(t, "owner")
	member := env.user(t, "member")
	project := env.project(t, owner.ID, models.ProjectKindSurvey)

	surveyors := env.team(t, "surveyors", member.ID)
	maintainers := env.team(t, "maintainers", member.ID)

	env.grantLevel(t, project.ID, owner.ID, models.PrincipalTypeUser, member.ID, access.LevelViewer)
	env.grantLevel(t, project.ID, owner.ID, models.PrincipalTypeTeam, surveyors.ID, access.LevelReadWrite)
	env.grantLevel(t, project.ID, owner.ID, models.PrincipalTypeTeam, maintainers.ID, access.LevelReadOnly)

	level, ok, err := env.grants.BestLevel(ctx, member.ID, project.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, access.LevelReadWrite, level)

	// Leaving the stronger team drops the effective level to the next source.
	require.NoError(t, env.teams.RemoveMember(ctx, surveyors.ID, member.ID, ""))

	level, ok, err = env.grants.BestLevel(ctx, member.ID, project.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, access.LevelReadOnly, level)
}

func TestInactiveMembershipContributesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.user(t, "owner")
	member := env.user(t, "member")
	project := env.project(t, owner.ID, models.ProjectKindSurvey)

	crew := env.team(t, "crew", member.ID)
	env.grantLevel(t, project.ID, owner.ID, models.PrincipalTypeTeam, crew.ID, access.LevelAdmin)

	require.NoError(t, env.teams.RemoveMember(ctx, crew.ID, member.ID, ""))

	_, ok, err := env.grants.BestLevel(ctx, member.ID, project.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListEffectiveOrderingAndDeduplication(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.user(t, "owner")
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	project := env.project(t, owner.ID, models.ProjectKindSurvey)

	crew := env.team(t, "crew", alice.ID, bob.ID)

	env.grantLevel(t, project.ID, owner.ID, models.PrincipalTypeTeam, crew.ID, access.LevelReadOnly)
	env.grantLevel(t, project.ID, owner.ID, models.PrincipalTypeUser, alice.ID, access.LevelReadWrite)

	entries, err := env.grants.ListEffective(ctx, project.ID, owner.ID)
	require.NoError(t, err)

	// One entry per user at their single highest level.
	require.Len(t, entries, 3)

	byUser := make(map[string]EffectiveAccess, len(entries))
	for _, entry := range entries {
		byUser[entry.UserID] = entry
	}

	assert.Equal(t, access.LevelAdmin, byUser[owner.ID].Level)
	assert.Equal(t, access.LevelReadWrite, byUser[alice.ID].Level)
	assert.Empty(t, byUser[alice.ID].ViaTeamID)
	assert.Equal(t, access.LevelReadOnly, byUser[bob.ID].Level)
	assert.Equal(t, crew.ID, byUser[bob.ID].ViaTeamID)
	assert.Equal(t, "crew", byUser[bob.ID].ViaTeamName)

	// Sorted by level descending, ties by user id ascending.
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if prev.Level == cur.Level {
			assert.Less(t, prev.UserID, cur.UserID)
		} else {
			assert.True(t, cur.Level.Less(prev.Level))
		}
	}
}

func TestListEffectiveRequiresViewer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.user(t, "owner")
	outsider := env.user(t, "outsider")
	project := env.project(t, owner.ID, models.ProjectKindSurvey)

	_, err := env.grants.ListEffective(ctx, project.ID, outsider.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}
