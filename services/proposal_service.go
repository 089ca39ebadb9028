package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"grant-review-api/models"
)

// ProposalService covers the researcher-owned Draft stage and single
// proposal reads. Status changes after Draft belong to WorkflowEngine.
type ProposalService struct {
	db  *gorm.DB
	now Clock
}

func NewProposalService(db *gorm.DB, clock Clock) *ProposalService {
	return &ProposalService{db: db, now: defaultClock(clock)}
}

type ProposalInput struct {
	GrantID          string
	Title            string
	Abstract         string
	RequestedFunding int64
	Category         string
}

func (in ProposalInput) validate(grant *models.Grant) (ProposalInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Abstract = strings.TrimSpace(in.Abstract)
	in.Category = strings.TrimSpace(in.Category)
	if in.Category == "" {
		in.Category = grant.Category
	}
	switch {
	case in.Title == "":
		return in, newError(KindInvalidInput, "title is required")
	case in.RequestedFunding <= 0:
		return in, newError(KindInvalidInput, "requested funding must be positive")
	case in.RequestedFunding > grant.FundingAmount:
		return in, newError(KindInvalidInput, "requested funding exceeds the grant's %d", grant.FundingAmount)
	}
	return in, nil
}

// CreateProposal starts a Draft owned by the acting researcher.
func (s *ProposalService) CreateProposal(ctx context.Context, actor models.Actor, in ProposalInput) (*models.Proposal, error) {
	if actor.Role != models.RoleResearcher {
		return nil, newError(KindForbidden, "only researchers can create proposals")
	}
	tx := withContext(ctx, s.db)
	grant, err := loadGrant(tx, strings.TrimSpace(in.GrantID))
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !grant.AcceptsSubmissions(now) {
		return nil, newError(KindDeadlinePassed, "grant %q no longer accepts proposals", grant.Title)
	}
	in, err = in.validate(grant)
	if err != nil {
		return nil, err
	}

	p := models.Proposal{
		GrantID:          grant.ID,
		ResearcherID:     actor.UserID,
		Title:            in.Title,
		Abstract:         in.Abstract,
		RequestedFunding: in.RequestedFunding,
		Category:         in.Category,
		Status:           models.ProposalDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := tx.Create(&p).Error; err != nil {
		return nil, storageError(err, "create proposal")
	}
	return &p, nil
}

// UpdateDraft edits a Draft. Once submitted the content is frozen.
func (s *ProposalService) UpdateDraft(ctx context.Context, actor models.Actor, id string, in ProposalInput) (*models.Proposal, error) {
	var out *models.Proposal
	err := withContext(ctx, s.db).Transaction(func(tx *gorm.DB) error {
		p, err := loadProposal(tx, id, true)
		if err != nil {
			return err
		}
		if p.ResearcherID != actor.UserID {
			return newError(KindNotOwner, "only the owning researcher can edit this proposal")
		}
		if _, ok := p.Status.Next(models.ActionEditDraft); !ok {
			return newError(KindInvalidTransition, "proposal is %s and can no longer be edited", p.Status)
		}
		grant, err := loadGrant(tx, p.GrantID)
		if err != nil {
			return err
		}
		in, err = in.validate(grant)
		if err != nil {
			return err
		}

		fields := map[string]any{
			"title":             in.Title,
			"abstract":          in.Abstract,
			"requested_funding": in.RequestedFunding,
			"category":          in.Category,
		}
		if err := setProposalStatus(tx, p, models.ActionEditDraft, actor.UserID, s.now(), fields); err != nil {
			return err
		}
		p.Title, p.Abstract, p.RequestedFunding, p.Category = in.Title, in.Abstract, in.RequestedFunding, in.Category
		out = p
		return nil
	})
	if err != nil {
		return nil, storageError(err, "update proposal")
	}
	return out, nil
}

// GetProposal returns a proposal visible to actor: its researcher, its
// assigned reviewer, or any admin.
func (s *ProposalService) GetProposal(ctx context.Context, actor models.Actor, id string) (*models.Proposal, error) {
	p, err := loadProposal(withContext(ctx, s.db), id, false)
	if err != nil {
		return nil, err
	}
	if !canView(actor, p) {
		return nil, newError(KindNotOwner, "proposal is not visible to this user")
	}
	return p, nil
}

func canView(actor models.Actor, p *models.Proposal) bool {
	switch {
	case actor.IsAdmin():
		return true
	case p.ResearcherID == actor.UserID:
		return true
	case p.ReviewerID != nil && *p.ReviewerID == actor.UserID:
		return true
	}
	return false
}
