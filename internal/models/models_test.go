package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInstallRecordValidateMirrorsStatus(t *testing.T) {
	installed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	actor := "a3b2c1d0-0000-0000-0000-000000000001"

	record := InstallRecord{
		Status:      InstallStatusInstalled,
		InstalledAt: installed,
	}
	require.NoError(t, record.Validate())

	record.UninstalledAt = &installed
	require.Error(t, record.Validate(), "installed record must not carry uninstall fields")

	uninstalled := installed.AddDate(0, 3, 0)
	record = InstallRecord{
		Status:           InstallStatusRetrieved,
		InstalledAt:      installed,
		UninstalledAt:    &uninstalled,
		UninstallActorID: &actor,
	}
	require.NoError(t, record.Validate())

	record.UninstallActorID = nil
	require.Error(t, record.Validate(), "terminal status requires both uninstall fields")
}

func TestInstallRecordValidateDateOrder(t *testing.T) {
	installed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	early := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	actor := "a3b2c1d0-0000-0000-0000-000000000001"

	record := InstallRecord{
		Status:           InstallStatusRetrieved,
		InstalledAt:      installed,
		UninstalledAt:    &early,
		UninstallActorID: &actor,
	}
	err := record.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "2023-12-31")
	require.Contains(t, err.Error(), "2024-01-01")
}

func TestTerminalInstallStatus(t *testing.T) {
	require.False(t, TerminalInstallStatus(InstallStatusInstalled))
	for _, status := range []string{InstallStatusRetrieved, InstallStatusLost, InstallStatusAbandoned} {
		require.True(t, TerminalInstallStatus(status))
	}
	require.False(t, TerminalInstallStatus("scrapped"))
}

func TestLockOpen(t *testing.T) {
	now := time.Now()
	lock := &ResourceLock{AcquiredAt: now, LastHeartbeatAt: now}
	require.True(t, lock.Open())

	lock.ReleasedAt = &now
	require.False(t, lock.Open())

	var nilLock *ResourceLock
	require.False(t, nilLock.Open())
}
