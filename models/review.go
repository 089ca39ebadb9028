package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReviewStatus string

const (
	ReviewAssigned  ReviewStatus = "Assigned"
	ReviewCompleted ReviewStatus = "Completed"
)

type ReviewDecision string

const (
	DecisionApproved           ReviewDecision = "Approved"
	DecisionRejected           ReviewDecision = "Rejected"
	DecisionRevisionsRequested ReviewDecision = "RevisionsRequested"
)

func (d ReviewDecision) Valid() bool {
	switch d {
	case DecisionApproved, DecisionRejected, DecisionRevisionsRequested:
		return true
	}
	return false
}

// Final reports whether d may be recorded as an administrative decision.
func (d ReviewDecision) Final() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// Review is one reviewer's evaluation of a proposal. Completed reviews are
// never edited; a revision is a new row with SupersedesID set.
type Review struct {
	ID           string          `gorm:"primaryKey;column:review_id;type:varchar(36)" json:"id"`
	ProposalID   string          `gorm:"column:proposal_id;type:varchar(36);index" json:"proposal_id"`
	ReviewerID   string          `gorm:"column:reviewer_id;type:varchar(36);index" json:"reviewer_id"`
	Score        *float64        `gorm:"column:score" json:"score,omitempty"`
	Decision     *ReviewDecision `gorm:"column:decision;type:varchar(24)" json:"decision,omitempty"`
	Comments     string          `gorm:"column:comments;type:text" json:"comments"`
	Status       ReviewStatus    `gorm:"column:status;type:varchar(16);index" json:"status"`
	ReviewDate   *time.Time      `gorm:"column:review_date" json:"review_date,omitempty"`
	SupersedesID *string         `gorm:"column:supersedes_id;type:varchar(36)" json:"supersedes_id,omitempty"`
	CreatedAt    time.Time       `gorm:"column:created_at" json:"created_at"`

	Proposal *Proposal `gorm:"foreignKey:ProposalID;references:ID" json:"proposal,omitempty"`
}

func (Review) TableName() string {
	return "reviews"
}

func (r *Review) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = ReviewAssigned
	}
	return nil
}
