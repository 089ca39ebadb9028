package models

import "time"

type EventType string

const (
	EventProposalSubmitted    EventType = "PROPOSAL_SUBMITTED"
	EventReviewAssigned       EventType = "REVIEW_ASSIGNED"
	EventReviewCompleted      EventType = "REVIEW_COMPLETED"
	EventProposalStatusUpdate EventType = "PROPOSAL_STATUS_UPDATE"
	EventNewGrant             EventType = "NEW_GRANT"
)

// Event is emitted by a successful workflow transition. Fields not relevant
// to Type are left empty.
type Event struct {
	Type          EventType
	ActorID       string
	GrantID       string
	GrantTitle    string
	ProposalID    string
	ProposalTitle string
	ResearcherID  string
	ReviewerID    string
	ReviewID      string
	Status        ProposalStatus
	Score         *float64
	Decision      ReviewDecision
	GrantDeadline time.Time
	OccurredAt    time.Time
}
