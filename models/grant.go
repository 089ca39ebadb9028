package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GrantStatus string

const (
	GrantActive GrantStatus = "Active"
	GrantClosed GrantStatus = "Closed"
)

// Grant is a funding opportunity. FundingAmount is in currency minor units.
type Grant struct {
	ID            string      `gorm:"primaryKey;column:grant_id;type:varchar(36)" json:"id"`
	Title         string      `gorm:"column:title" json:"title"`
	Description   string      `gorm:"column:description;type:text" json:"description"`
	Category      string      `gorm:"column:category;index" json:"category"`
	FundingAmount int64       `gorm:"column:funding_amount" json:"funding_amount"`
	Deadline      time.Time   `gorm:"column:deadline" json:"deadline"`
	Status        GrantStatus `gorm:"column:status;type:varchar(16)" json:"status"`
	CreatedBy     string      `gorm:"column:created_by;type:varchar(36)" json:"created_by"`
	CreatedAt     time.Time   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"column:updated_at" json:"updated_at"`
}

func (Grant) TableName() string {
	return "grants"
}

func (g *Grant) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Status == "" {
		g.Status = GrantActive
	}
	return nil
}

// Expired reports whether an Active grant has passed its deadline and should
// be flipped to Closed.
func (g *Grant) Expired(now time.Time) bool {
	return g.Status == GrantActive && now.After(g.Deadline)
}

// AcceptsSubmissions reports whether proposals may still be submitted.
func (g *Grant) AcceptsSubmissions(now time.Time) bool {
	return g.Status == GrantActive && !now.After(g.Deadline)
}
