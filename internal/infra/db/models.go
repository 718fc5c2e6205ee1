package db

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

type alertModel struct {
	ID             uint        `gorm:"primaryKey"`
	OwnerID        uint        `gorm:"index:idx_alerts_owner_state,priority:1;not null"`
	TargetPrice    targetPrice `gorm:"index:idx_alerts_target_price;not null"`
	Condition      string      `gorm:"column:trigger_condition;size:16;not null"`
	ContactAddress string      `gorm:"column:email;size:320;not null"`
	State          string      `gorm:"size:16;not null;default:created;index:idx_alerts_state;index:idx_alerts_owner_state,priority:2"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (alertModel) TableName() string {
	return "alerts"
}

// targetPrice keeps the exact decimal text. SQLite gives numeric columns
// REAL affinity, so the column is text there.
type targetPrice struct {
	decimal.Decimal
}

func (targetPrice) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "sqlite" {
		return "text"
	}
	return "numeric(20,8)"
}
