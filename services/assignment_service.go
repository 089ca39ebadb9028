package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"grant-review-api/models"
)

// AssignmentService picks reviewers for submitted proposals.
//
// Policy: among active reviewers other than the proposal's researcher, prefer
// those whose specialization matches the proposal category (falling back to
// everyone when none match), then the fewest open Assigned reviews, then the
// earliest account creation.
type AssignmentService struct {
	db *gorm.DB
}

func NewAssignmentService(db *gorm.DB) *AssignmentService {
	return &AssignmentService{db: db}
}

// SuggestReviewer returns the reviewer the policy would pick for proposalID.
func (s *AssignmentService) SuggestReviewer(ctx context.Context, proposalID string) (string, error) {
	tx := withContext(ctx, s.db)
	p, err := loadProposal(tx, proposalID, false)
	if err != nil {
		return "", err
	}
	if _, ok := p.Status.Next(models.ActionAssignReviewer); !ok {
		return "", newError(KindInvalidTransition, "proposal is %s, reviewers are only suggested for %s proposals", p.Status, models.ProposalSubmitted)
	}
	return s.suggest(tx, p)
}

type reviewerLoad struct {
	ReviewerID string
	OpenCount  int64
}

func (s *AssignmentService) suggest(tx *gorm.DB, p *models.Proposal) (string, error) {
	var candidates []models.User
	if err := tx.Where("role = ? AND deleted_at IS NULL AND user_id <> ?", models.RoleReviewer, p.ResearcherID).
		Order("created_at ASC, user_id ASC").
		Find(&candidates).Error; err != nil {
		return "", storageError(err, "reviewers")
	}
	if len(candidates) == 0 {
		return "", newError(KindNoEligibleReviewer, "no reviewer is eligible for proposal %s", p.ID)
	}

	var loads []reviewerLoad
	if err := tx.Model(&models.Review{}).
		Select("reviewer_id, COUNT(*) AS open_count").
		Where("status = ?", models.ReviewAssigned).
		Group("reviewer_id").
		Scan(&loads).Error; err != nil {
		return "", storageError(err, "reviewer workload")
	}
	open := make(map[string]int64, len(loads))
	for _, l := range loads {
		open[l.ReviewerID] = l.OpenCount
	}

	pool := candidates
	if category := strings.TrimSpace(p.Category); category != "" {
		matching := make([]models.User, 0, len(candidates))
		for _, c := range candidates {
			if strings.EqualFold(strings.TrimSpace(c.Specialization), category) {
				matching = append(matching, c)
			}
		}
		if len(matching) > 0 {
			pool = matching
		}
	}

	// pool is ordered by creation, so the first minimum wins ties.
	best := pool[0]
	for _, c := range pool[1:] {
		if open[c.ID] < open[best.ID] {
			best = c
		}
	}
	return best.ID, nil
}

// checkEligible re-validates an explicit admin choice.
func (s *AssignmentService) checkEligible(tx *gorm.DB, p *models.Proposal, reviewerID string) (*models.User, error) {
	if reviewerID == p.ResearcherID {
		return nil, newError(KindNoEligibleReviewer, "a researcher cannot review their own proposal")
	}
	reviewer, err := loadUser(tx, reviewerID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, newError(KindNoEligibleReviewer, "reviewer %s does not exist", reviewerID)
		}
		return nil, err
	}
	if reviewer.Role != models.RoleReviewer {
		return nil, newError(KindNoEligibleReviewer, "user %s is not a reviewer", reviewerID)
	}
	return reviewer, nil
}
