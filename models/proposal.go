package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProposalStatus string

const (
	ProposalDraft       ProposalStatus = "Draft"
	ProposalSubmitted   ProposalStatus = "Submitted"
	ProposalUnderReview ProposalStatus = "UnderReview"
	ProposalApproved    ProposalStatus = "Approved"
	ProposalRejected    ProposalStatus = "Rejected"
)

// ProposalStatuses lists every status in lifecycle order.
var ProposalStatuses = []ProposalStatus{
	ProposalDraft,
	ProposalSubmitted,
	ProposalUnderReview,
	ProposalApproved,
	ProposalRejected,
}

// ProposalAction is an operation that may act on a proposal in a given status.
type ProposalAction string

const (
	ActionEditDraft      ProposalAction = "edit_draft"
	ActionSubmit         ProposalAction = "submit"
	ActionAssignReviewer ProposalAction = "assign_reviewer"
	ActionCompleteReview ProposalAction = "complete_review"
	ActionApprove        ProposalAction = "approve"
	ActionReject         ProposalAction = "reject"
)

// proposalTransitions is the complete table of permitted (status, action)
// pairs. Anything missing is an invalid transition.
var proposalTransitions = map[ProposalStatus]map[ProposalAction]ProposalStatus{
	ProposalDraft: {
		ActionEditDraft: ProposalDraft,
		ActionSubmit:    ProposalSubmitted,
	},
	ProposalSubmitted: {
		ActionAssignReviewer: ProposalUnderReview,
	},
	ProposalUnderReview: {
		ActionCompleteReview: ProposalUnderReview,
		ActionApprove:        ProposalApproved,
		ActionReject:         ProposalRejected,
	},
	ProposalApproved: {},
	ProposalRejected: {},
}

// Next returns the status reached by applying action, and false when the
// action is not permitted from s.
func (s ProposalStatus) Next(action ProposalAction) (ProposalStatus, bool) {
	next, ok := proposalTransitions[s][action]
	return next, ok
}

// Rank orders statuses along the lifecycle. Approved and Rejected share the
// terminal rank.
func (s ProposalStatus) Rank() int {
	switch s {
	case ProposalDraft:
		return 0
	case ProposalSubmitted:
		return 1
	case ProposalUnderReview:
		return 2
	case ProposalApproved, ProposalRejected:
		return 3
	}
	return -1
}

func (s ProposalStatus) Valid() bool { return s.Rank() >= 0 }

func (s ProposalStatus) Terminal() bool {
	return s == ProposalApproved || s == ProposalRejected
}

// Proposal is a researcher's application against a Grant.
type Proposal struct {
	ID               string         `gorm:"primaryKey;column:proposal_id;type:varchar(36)" json:"id"`
	GrantID          string         `gorm:"column:grant_id;type:varchar(36);index" json:"grant_id"`
	ResearcherID     string         `gorm:"column:researcher_id;type:varchar(36);index" json:"researcher_id"`
	Title            string         `gorm:"column:title" json:"title"`
	Abstract         string         `gorm:"column:abstract;type:text" json:"abstract"`
	RequestedFunding int64          `gorm:"column:requested_funding" json:"requested_funding"`
	Category         string         `gorm:"column:category;index" json:"category"`
	Status           ProposalStatus `gorm:"column:status;type:varchar(16);index" json:"status"`
	DateSubmitted    *time.Time     `gorm:"column:date_submitted" json:"date_submitted,omitempty"`
	ReviewerID       *string        `gorm:"column:reviewer_id;type:varchar(36);index" json:"reviewer_id,omitempty"`
	DecidedAt        *time.Time     `gorm:"column:decided_at" json:"decided_at,omitempty"`
	CreatedAt        time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"column:updated_at" json:"updated_at"`

	Grant *Grant `gorm:"foreignKey:GrantID;references:ID" json:"grant,omitempty"`
}

func (Proposal) TableName() string {
	return "proposals"
}

func (p *Proposal) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = ProposalDraft
	}
	return nil
}

// ProposalStatusHistory records every status change of a proposal.
type ProposalStatusHistory struct {
	HistoryID  uint            `gorm:"primaryKey;autoIncrement;column:history_id" json:"history_id"`
	ProposalID string          `gorm:"column:proposal_id;type:varchar(36);index" json:"proposal_id"`
	OldStatus  *ProposalStatus `gorm:"column:old_status;type:varchar(16)" json:"old_status"`
	NewStatus  ProposalStatus  `gorm:"column:new_status;type:varchar(16)" json:"new_status"`
	ChangedBy  string          `gorm:"column:changed_by;type:varchar(36)" json:"changed_by"`
	CreatedAt  time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (ProposalStatusHistory) TableName() string {
	return "proposal_status_history"
}
