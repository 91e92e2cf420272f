package models

// Membership roles within a team.
const (
	TeamRoleMember = "member"
	TeamRoleLeader = "leader"
)

// TeamMembership links a user to a team. The row is kept when a member is
// removed; is_active flips instead so past membership remains auditable.
// A user's effective teams are the rows with is_active=true.
type TeamMembership struct {
	BaseModel

	TeamID string `gorm:"type:uuid;not null;uniqueIndex:idx_team_user,priority:1" json:"team_id"`
	UserID string `gorm:"type:uuid;not null;uniqueIndex:idx_team_user,priority:2" json:"user_id"`
	Role   string `gorm:"type:varchar(16);not null;default:'member'" json:"role"`

	IsActive bool `gorm:"default:true;index" json:"is_active"`

	Team *Team `gorm:"foreignKey:TeamID" json:"team,omitempty"`
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName overrides the default table name for GORM.
func (TeamMembership) TableName() string {
	return "team_memberships"
}
