package models

import "time"

// ResourceLock is the exclusive write lock on a project. At most one open
// row (released_at IS NULL) exists per project; the partial unique index
// created during migration is the actual mutual-exclusion primitive. Closed
// rows are kept only as audit history. There is no expiry: a lock persists
// until an explicit release.
type ResourceLock struct {
	BaseModel

	ProjectID string `gorm:"type:uuid;not null;index" json:"project_id"`
	HolderID  string `gorm:"type:uuid;not null" json:"holder_id"`

	AcquiredAt      time.Time `gorm:"not null" json:"acquired_at"`
	LastHeartbeatAt time.Time `gorm:"not null" json:"last_heartbeat_at"`

	ReleasedAt     *time.Time `gorm:"index" json:"released_at"`
	ReleasedByID   *string    `gorm:"type:uuid" json:"released_by_id"`
	ReleaseComment string     `json:"release_comment"`
}

// TableName overrides the default table name for GORM.
func (ResourceLock) TableName() string {
	return "resource_locks"
}

// Open reports whether the lock is still held.
func (l *ResourceLock) Open() bool {
	return l != nil && l.ReleasedAt == nil
}
