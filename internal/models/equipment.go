package models

// Equipment is one physical unit belonging to a fleet.
type Equipment struct {
	BaseModel

	FleetID      string `gorm:"type:uuid;not null;index" json:"fleet_id"`
	SerialNumber string `gorm:"uniqueIndex;not null" json:"serial_number"`
	Model        string `json:"model"`
	Notes        string `json:"notes"`

	Fleet *Project `gorm:"foreignKey:FleetID" json:"-"`
}

// TableName overrides the default table name for GORM.
func (Equipment) TableName() string {
	return "equipment"
}
