package models

import (
	"fmt"
	"time"
)

// Install record statuses. INSTALLED is the only non-terminal state.
const (
	InstallStatusInstalled = "installed"
	InstallStatusRetrieved = "retrieved"
	InstallStatusLost      = "lost"
	InstallStatusAbandoned = "abandoned"
)

// TerminalInstallStatus reports whether status ends the record's lifecycle.
func TerminalInstallStatus(status string) bool {
	switch status {
	case InstallStatusRetrieved, InstallStatusLost, InstallStatusAbandoned:
		return true
	}
	return false
}

// InstallRecord tracks one placement of an equipment unit at a site. A
// record mutates exactly once, from installed into a terminal status, and is
// never deleted; reinstalling the unit later creates a fresh record. The
// partial unique index on (equipment_id) WHERE status='installed' keeps at
// most one open placement per unit.
type InstallRecord struct {
	BaseModel

	EquipmentID string `gorm:"type:uuid;not null;index" json:"equipment_id"`
	ProjectID   string `gorm:"type:uuid;not null;index" json:"project_id"`

	SiteName  string  `json:"site_name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	Status string `gorm:"type:varchar(16);not null;default:'installed';index" json:"status"`

	InstalledAt    time.Time `gorm:"not null" json:"installed_at"`
	InstallActorID string    `gorm:"type:uuid;not null" json:"install_actor_id"`

	UninstalledAt    *time.Time `json:"uninstalled_at"`
	UninstallActorID *string    `gorm:"type:uuid" json:"uninstall_actor_id"`

	BatteryDueAt    *time.Time `gorm:"index" json:"battery_due_at"`
	PermitExpiresAt *time.Time `gorm:"index" json:"permit_expires_at"`

	Readings  []CheckReading `gorm:"foreignKey:InstallRecordID" json:"readings,omitempty"`
	Equipment *Equipment     `gorm:"foreignKey:EquipmentID" json:"-"`
}

// TableName overrides the default table name for GORM.
func (InstallRecord) TableName() string {
	return "install_records"
}

// Validate re-encodes the database CHECK constraints as a typed pre-commit
// check, executed inside the same transaction as the write:
//
//  1. uninstalled_at and uninstall_actor_id are both null while installed,
//     and both non-null in any terminal status;
//  2. uninstalled_at never precedes installed_at.
func (r *InstallRecord) Validate() error {
	switch {
	case r.Status == InstallStatusInstalled:
		if r.UninstalledAt != nil || r.UninstallActorID != nil {
			return fmt.Errorf("installed record must not carry uninstall date or actor")
		}
	case TerminalInstallStatus(r.Status):
		if r.UninstalledAt == nil || r.UninstallActorID == nil {
			return fmt.Errorf("status %s requires both uninstall date and actor", r.Status)
		}
	default:
		return fmt.Errorf("unknown install status %q", r.Status)
	}

	if r.UninstalledAt != nil && r.UninstalledAt.Before(r.InstalledAt) {
		return fmt.Errorf("uninstall date %s precedes install date %s",
			r.UninstalledAt.Format(time.DateOnly), r.InstalledAt.Format(time.DateOnly))
	}

	return nil
}
