package models

// Grant principal types.
const (
	PrincipalTypeUser = "user"
	PrincipalTypeTeam = "team"
)

// Grant stores one (principal, project) permission row. Revocation never
// deletes the row: is_active flips false and deactivated_by records who
// revoked it, so reactivation restores history instead of inserting a
// duplicate. Uniqueness per (project, principal) is enforced by the index,
// which is also the concurrency guard for racing grant calls.
type Grant struct {
	BaseModel

	ProjectID     string `gorm:"type:uuid;not null;uniqueIndex:idx_project_principal,priority:1" json:"project_id"`
	PrincipalType string `gorm:"type:varchar(16);not null;uniqueIndex:idx_project_principal,priority:2" json:"principal_type"`
	PrincipalID   string `gorm:"type:uuid;not null;uniqueIndex:idx_project_principal,priority:3" json:"principal_id"`

	Level string `gorm:"type:varchar(16);not null" json:"level"`

	IsActive        bool    `gorm:"default:true;index" json:"is_active"`
	GrantedByID     *string `gorm:"type:uuid" json:"granted_by_id"`
	DeactivatedByID *string `gorm:"type:uuid" json:"deactivated_by_id"`

	Project *Project `gorm:"foreignKey:ProjectID" json:"-"`
}
