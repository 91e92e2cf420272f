package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbase/fieldbase/internal/access"
	"github.com/fieldbase/fieldbase/internal/models"
	apperrors "github.com/fieldbase/fieldbase/pkg/errors"
)

type installFixture struct {
	env       *testEnv
	owner     *models.User
	fleet     *models.Project
	equipment *models.Equipment
}

func newInstallFixture(t *testing.T) *installFixture {
	env := newTestEnv(t)
	owner := env.user(t, "owner")
	fleet := env.project(t, owner.ID, models.ProjectKindFleet)

	equipment, err := env.equipment.Register(context.Background(), RegisterEquipmentInput{
		FleetID:      fleet.ID,
		SerialNumber: "SN-0001",
		Model:        "Hydrolab HL7",
	}, owner.ID)
	require.NoError(t, err)

	return &installFixture{env: env, owner: owner, fleet: fleet, equipment: equipment}
}

func (f *installFixture) install(t *testing.T) *models.InstallRecord {
	t.Helper()
	record, err := f.env.installs.Install(context.Background(), InstallInput{
		EquipmentID: f.equipment.ID,
		ProjectID:   f.fleet.ID,
		SiteName:    "weir 12",
	}, f.owner.ID)
	require.NoError(t, err)
	return record
}

func TestInstallRejectsSecondOpenPlacement(t *testing.T) {
	f := newInstallFixture(t)
	ctx := context.Background()

	f.install(t)

	_, err := f.env.installs.Install(ctx, InstallInput{
		EquipmentID: f.equipment.ID,
		ProjectID:   f.fleet.ID,
		SiteName:    "weir 13",
	}, f.owner.ID)
	assert.ErrorIs(t, err, ErrAlreadyInstalled)
}

func TestInstallRequiresReadWrite(t *testing.T) {
	f := newInstallFixture(t)
	ctx := context.Background()

	viewer := f.env.user(t, "viewer")
	f.env.grantLevel(t, f.fleet.ID, f.owner.ID, models.PrincipalTypeUser, viewer.ID, access.LevelReadOnly)

	_, err := f.env.installs.Install(ctx, InstallInput{
		EquipmentID: f.equipment.ID,
		ProjectID:   f.fleet.ID,
	}, viewer.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestRetrievedAutoFillsUninstallFields(t *testing.T) {
	f := newInstallFixture(t)
	ctx := context.Background()

	record := f.install(t)

	updated, err := f.env.installs.Transition(ctx, record.ID, models.InstallStatusRetrieved, TransitionInput{}, f.owner.ID)
	require.NoError(t, err)

	assert.Equal(t, models.InstallStatusRetrieved, updated.Status)
	require.NotNil(t, updated.UninstalledAt)
	require.NotNil(t, updated.UninstallActorID)
	assert.Equal(t, f.owner.ID, *updated.UninstallActorID)
	assert.WithinDuration(t, time.Now(), *updated.UninstalledAt, time.Minute)
}

func TestLostRequiresUninstallFields(t *testing.T) {
	f := newInstallFixture(t)
	ctx := context.Background()

	record := f.install(t)

	_, err := f.env.installs.Transition(ctx, record.ID, models.InstallStatusLost, TransitionInput{}, f.owner.ID)
	require.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Contains(t, err.Error(), "lost")

	when := time.Now()
	updated, err := f.env.installs.Transition(ctx, record.ID, models.InstallStatusLost, TransitionInput{
		UninstalledAt:    &when,
		UninstallActorID: &f.owner.ID,
	}, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstallStatusLost, updated.Status)
}

func TestUninstallDateBeforeInstallRejected(t *testing.T) {
	f := newInstallFixture(t)
	ctx := context.Background()

	installedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	record, err := f.env.installs.Install(ctx, InstallInput{
		EquipmentID: f.equipment.ID,
		ProjectID:   f.fleet.ID,
		InstalledAt: &installedAt,
	}, f.owner.ID)
	require.NoError(t, err)

	uninstalledAt := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	_, err = f.env.installs.Transition(ctx, record.ID, models.InstallStatusRetrieved, TransitionInput{
		UninstalledAt:    &uninstalledAt,
		UninstallActorID: &f.owner.ID,
	}, f.owner.ID)
	require.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Contains(t, err.Error(), "2023-12-31")
	assert.Contains(t, err.Error(), "2024-01-01")
}

func TestTerminalRecordCannotTransitionAgain(t *testing.T) {
	f := newInstallFixture(t)
	ctx := context.Background()

	record := f.install(t)

	_, err := f.env.installs.Transition(ctx, record.ID, models.InstallStatusRetrieved, TransitionInput{}, f.owner.ID)
	require.NoError(t, err)

	_, err = f.env.installs.Transition(ctx, record.ID, models.InstallStatusAbandoned, TransitionInput{
		UninstalledAt:    &record.InstalledAt,
		UninstallActorID: &f.owner.ID,
	}, f.owner.ID)
	require.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Contains(t, err.Error(), "terminal")
}

func TestTransitionTargetMustBeTerminal(t *testing.T) {
	f := newInstallFixture(t)
	ctx := context.Background()

	record := f.install(t)

	_, err := f.env.installs.Transition(ctx, record.ID, models.InstallStatusInstalled, TransitionInput{}, f.owner.ID)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestReinstallAfterTerminalCreatesFreshRecord(t *testing.T) {
	f := newInstallFixture(t)
	ctx := context.Background()

	first := f.install(t)
	_, err := f.env.installs.Transition(ctx, first.ID, models.InstallStatusRetrieved, TransitionInput{}, f.owner.ID)
	require.NoError(t, err)

	second, err := f.env.installs.Install(ctx, InstallInput{
		EquipmentID: f.equipment.ID,
		ProjectID:   f.fleet.ID,
		SiteName:    "weir 14",
	}, f.owner.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// The old record remains as history.
	records, err := f.env.installs.ListByProject(ctx, f.fleet.ID, f.owner.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCheckReadingCeilings(t *testing.T) {
	f := newInstallFixture(t)
	ctx := context.Background()

	record := f.install(t)

	_, err := f.env.installs.AddCheckReading(ctx, record.ID, ReadingInput{Value: 9_999.9, UnitSystem: models.UnitSystemMetric}, f.owner.ID)
	require.NoError(t, err)

	_, err = f.env.installs.AddCheckReading(ctx, record.ID, ReadingInput{Value: 10_000.0, UnitSystem: models.UnitSystemMetric}, f.owner.ID)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.env.installs.AddCheckReading(ctx, record.ID, ReadingInput{Value: 20_000.0, UnitSystem: models.UnitSystemImperial}, f.owner.ID)
	require.NoError(t, err)

	_, err = f.env.installs.AddCheckReading(ctx, record.ID, ReadingInput{Value: 32_808.0, UnitSystem: models.UnitSystemImperial}, f.owner.ID)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.env.installs.AddCheckReading(ctx, record.ID, ReadingInput{Value: -1}, f.owner.ID)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCheckReadingOnlyWhileInstalled(t *testing.T) {
	f := newInstallFixture(t)
	ctx := context.Background()

	record := f.install(t)
	_, err := f.env.installs.Transition(ctx, record.ID, models.InstallStatusRetrieved, TransitionInput{}, f.owner.ID)
	require.NoError(t, err)

	_, err = f.env.installs.AddCheckReading(ctx, record.ID, ReadingInput{Value: 1.5}, f.owner.ID)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestDueForRetrievalWindow(t *testing.T) {
	f := newInstallFixture(t)
	ctx := context.Background()

	// Three more units so each record can carry its own deadline.
	serials := []string{"SN-0002", "SN-0003", "SN-0004"}
	units := []*models.Equipment{f.equipment}
	for _, serial := range serials {
		unit, err := f.env.equipment.Register(ctx, RegisterEquipmentInput{
			FleetID:      f.fleet.ID,
			SerialNumber: serial,
		}, f.owner.ID)
		require.NoError(t, err)
		units = append(units, unit)
	}

	now := time.Now()
	daysFromNow := func(days int) *time.Time {
		v := now.AddDate(0, 0, days)
		return &v
	}

	// Battery 90 days overdue, battery due in 30 days, permit 61 days
	// expired, and one record with no deadlines at all.
	overdue, err := f.env.installs.Install(ctx, InstallInput{
		EquipmentID:  units[0].ID,
		ProjectID:    f.fleet.ID,
		BatteryDueAt: daysFromNow(-90),
	}, f.owner.ID)
	require.NoError(t, err)

	upcoming, err := f.env.installs.Install(ctx, InstallInput{
		EquipmentID:  units[1].ID,
		ProjectID:    f.fleet.ID,
		BatteryDueAt: daysFromNow(30),
	}, f.owner.ID)
	require.NoError(t, err)

	expiredPermit, err := f.env.installs.Install(ctx, InstallInput{
		EquipmentID:     units[2].ID,
		ProjectID:       f.fleet.ID,
		PermitExpiresAt: daysFromNow(-61),
	}, f.owner.ID)
	require.NoError(t, err)

	_, err = f.env.installs.Install(ctx, InstallInput{
		EquipmentID: units[3].ID,
		ProjectID:   f.fleet.ID,
	}, f.owner.ID)
	require.NoError(t, err)

	ids := func(records []models.InstallRecord) []string {
		out := make([]string, 0, len(records))
		for _, r := range records {
			out = append(out, r.ID)
		}
		return out
	}

	// Window zero: only the already-overdue deadlines.
	due, err := f.env.installs.DueForRetrieval(ctx, f.fleet.ID, 0, f.owner.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{overdue.ID, expiredPermit.ID}, ids(due))

	// A 45 day window additionally picks up the battery due in 30 days.
	due, err = f.env.installs.DueForRetrieval(ctx, f.fleet.ID, 45, f.owner.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{overdue.ID, upcoming.ID, expiredPermit.ID}, ids(due))

	// Terminal records leave the watchlist.
	_, err = f.env.installs.Transition(ctx, overdue.ID, models.InstallStatusRetrieved, TransitionInput{}, f.owner.ID)
	require.NoError(t, err)

	due, err = f.env.installs.DueForRetrieval(ctx, f.fleet.ID, 45, f.owner.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{upcoming.ID, expiredPermit.ID}, ids(due))
}

func TestDueForRetrievalRejectsNegativeWindow(t *testing.T) {
	f := newInstallFixture(t)

	_, err := f.env.installs.DueForRetrieval(context.Background(), f.fleet.ID, -1, f.owner.ID)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
