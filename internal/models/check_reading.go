package models

import "time"

// Measurement unit systems for check readings.
const (
	UnitSystemMetric   = "metric"
	UnitSystemImperial = "imperial"
)

// CheckReading is one periodic measurement taken against an open install.
// Readings are strictly append-only; they never change the record's status.
type CheckReading struct {
	BaseModel

	InstallRecordID string `gorm:"type:uuid;not null;index" json:"install_record_id"`

	MeasuredAt time.Time `gorm:"not null;index" json:"measured_at"`
	Value      float64   `gorm:"not null" json:"value"`
	UnitSystem string    `gorm:"type:varchar(16);not null;default:'metric'" json:"unit_system"`
	ActorID    string    `gorm:"type:uuid" json:"actor_id"`
	Note       string    `json:"note"`
}

// TableName overrides the default table name for GORM.
func (CheckReading) TableName() string {
	return "check_readings"
}
