package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fieldbase/fieldbase/internal/access"
	"github.com/fieldbase/fieldbase/internal/database/testutil"
	"github.com/fieldbase/fieldbase/internal/models"
)

type testEnv struct {
	db        *gorm.DB
	audit     *AuditService
	checker   *access.Checker
	users     *UserService
	teams     *TeamService
	projects  *ProjectService
	grants    *GrantService
	locks     *LockService
	installs  *InstallService
	equipment *EquipmentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t)

	audit, err := NewAuditService(db)
	require.NoError(t, err)

	checker, err := access.NewChecker(db)
	require.NoError(t, err)

	users, err := NewUserService(db, audit)
	require.NoError(t, err)

	teams, err := NewTeamService(db, audit)
	require.NoError(t, err)

	locks, err := NewLockService(db, audit, checker)
	require.NoError(t, err)

	projects, err := NewProjectService(db, audit, checker, locks)
	require.NoError(t, err)

	grants, err := NewGrantService(db, audit, checker)
	require.NoError(t, err)

	installs, err := NewInstallService(db, audit, checker)
	require.NoError(t, err)

	equipment, err := NewEquipmentService(db, audit, checker)
	require.NoError(t, err)

	return &testEnv{
		db:        db,
		audit:     audit,
		checker:   checker,
		users:     users,
		teams:     teams,
		projects:  projects,
		grants:    grants,
		locks:     locks,
		installs:  installs,
		equipment: equipment,
	}
}

func (e *testEnv) user(t *testing.T, name string) *models.User {
	t.Helper()
	user, err := e.users.Create(context.Background(), CreateUserInput{
		Username: name,
		Email:    fmt.Sprintf("%s@example.com", name),
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) team(t *testing.T, name string, memberIDs ...string) *models.Team {
	t.Helper()
	team, err := e.teams.Create(context.Background(), CreateTeamInput{Name: name}, "")
	require.NoError(t, err)
	for _, id := range memberIDs {
		require.NoError(t, e.teams.AddMember(context.Background(), team.ID, id, models.TeamRoleMember, ""))
	}
	return team
}

func (e *testEnv) project(t *testing.T, ownerID, kind string) *models.Project {
	t.Helper()
	project, err := e.projects.Create(context.Background(), CreateProjectInput{
		Name: fmt.Sprintf("project-%s-%s", kind, ownerID[:8]),
		Kind: kind,
	}, ownerID)
	require.NoError(t, err)
	return project
}

func (e *testEnv) grantLevel(t *testing.T, projectID, adminID, principalType, principalID string, level access.Level) {
	t.Helper()
	_, err := e.grants.Grant(context.Background(), projectID, GrantInput{
		PrincipalType: principalType,
		PrincipalID:   principalID,
		Level:         level,
	}, adminID)
	require.NoError(t, err)
}
