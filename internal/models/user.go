package models

// User is an already-identified principal. Authentication happens upstream;
// this table only carries what authorization and display need.
type User struct {
	BaseModel

	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	Email       string `gorm:"uniqueIndex;not null" json:"email"`
	DisplayName string `json:"display_name"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	Memberships []TeamMembership `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
}
