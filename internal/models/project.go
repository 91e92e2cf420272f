package models

// Project kinds. A fleet is a project-like container for equipment units;
// both kinds share the same grant and lock machinery.
const (
	ProjectKindSurvey = "survey"
	ProjectKindFleet  = "fleet"
)

// Project is an access-controlled container: a survey project or an
// equipment fleet. Content edits are gated by the project's exclusive lock.
type Project struct {
	BaseModel

	Name        string `gorm:"not null;index" json:"name"`
	Kind        string `gorm:"type:varchar(16);not null;default:'survey';index" json:"kind"`
	Description string `json:"description"`
	Content     string `gorm:"type:text" json:"content"`

	OwnerUserID string `gorm:"type:uuid;index" json:"owner_user_id"`

	Grants []Grant `gorm:"foreignKey:ProjectID" json:"grants,omitempty"`
}
