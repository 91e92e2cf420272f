package database

import (
	"gorm.io/gorm"

	"github.com/fieldbase/fieldbase/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Team{},
		&models.TeamMembership{},
		&models.Project{},
		&models.Grant{},
		&models.ResourceLock{},
		&models.Equipment{},
		&models.InstallRecord{},
		&models.CheckReading{},
		&models.AuditLog{},
	)
}

// EnsureConstraints creates the partial unique indexes that act as the
// mutual-exclusion primitive for locks and installs: a constraint violation,
// not an application pre-check, is the authoritative concurrency signal.
// MySQL has no partial indexes; the services' transactional existence checks
// carry the guarantee there on their own.
func EnsureConstraints(db *gorm.DB) error {
	if db.Dialector.Name() == "mysql" {
		return nil
	}

	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_open_lock_per_project
			ON resource_locks (project_id) WHERE released_at IS NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_open_install_per_equipment
			ON install_records (equipment_id) WHERE status = 'installed'`,
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
