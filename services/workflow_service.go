package services

import (
	"context"
	"log"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"

	"grant-review-api/models"
)

// WorkflowEngine is the only mutator of Proposal.Status and
// Proposal.ReviewerID once a proposal leaves Draft. Every operation runs as
// one transaction under a per-proposal lock: guard check, mutation, event
// publication and notification writes commit together.
type WorkflowEngine struct {
	db          *gorm.DB
	bus         *EventBus
	assignments *AssignmentService
	locks       *keyedMutex
	now         Clock
}

func NewWorkflowEngine(db *gorm.DB, bus *EventBus, assignments *AssignmentService, clock Clock) *WorkflowEngine {
	if assignments == nil {
		assignments = NewAssignmentService(db)
	}
	return &WorkflowEngine{
		db:          db,
		bus:         bus,
		assignments: assignments,
		locks:       newKeyedMutex(),
		now:         defaultClock(clock),
	}
}

// Submit moves a Draft proposal to Submitted. Only the owning researcher may
// submit, and only while the grant is Active and its deadline has not passed.
func (e *WorkflowEngine) Submit(ctx context.Context, actor models.Actor, proposalID string) (*models.Proposal, error) {
	unlock := e.locks.Lock(proposalID)
	defer unlock()

	var (
		out     *models.Proposal
		expired *models.Grant
	)
	err := runInTx(ctx, e.db, e.bus, func(tx *gorm.DB) ([]models.Event, error) {
		p, err := loadProposal(tx, proposalID, true)
		if err != nil {
			return nil, err
		}
		if p.ResearcherID != actor.UserID {
			return nil, newError(KindNotOwner, "only the owning researcher can submit this proposal")
		}
		if _, ok := p.Status.Next(models.ActionSubmit); !ok {
			return nil, newError(KindInvalidTransition, "proposal is already %s", p.Status)
		}

		grant, err := loadGrant(tx, p.GrantID)
		if err != nil {
			return nil, err
		}
		now := e.now()
		if !grant.AcceptsSubmissions(now) {
			if grant.Expired(now) {
				expired = grant
			}
			return nil, newError(KindDeadlinePassed, "grant %q closed for submissions on %s", grant.Title, grant.Deadline.Format("2006-01-02 15:04"))
		}

		if err := setProposalStatus(tx, p, models.ActionSubmit, actor.UserID, now, map[string]any{"date_submitted": now}); err != nil {
			return nil, err
		}
		p.DateSubmitted = &now
		out = p

		ev := proposalEvent(models.EventProposalSubmitted, p, actor.UserID, now)
		ev.GrantTitle = grant.Title
		return []models.Event{ev}, nil
	})
	if expired != nil {
		// The rejected submit rolled back, so the lazy close is written separately.
		if cerr := closeGrantIfActive(withContext(ctx, e.db), expired.ID, e.now()); cerr != nil {
			log.Printf("close expired grant %s: %v", expired.ID, cerr)
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AssignReviewer binds a reviewer to a Submitted proposal and opens a Review.
// An empty reviewerID asks the AssignmentService for a suggestion. Any other
// status, including UnderReview, is rejected rather than reassigned.
func (e *WorkflowEngine) AssignReviewer(ctx context.Context, actor models.Actor, proposalID, reviewerID string) (*models.Proposal, *models.Review, error) {
	if !actor.IsAdmin() {
		return nil, nil, newError(KindForbidden, "only admins can assign reviewers")
	}

	unlock := e.locks.Lock(proposalID)
	defer unlock()

	var (
		outProposal *models.Proposal
		outReview   *models.Review
	)
	err := runInTx(ctx, e.db, e.bus, func(tx *gorm.DB) ([]models.Event, error) {
		p, err := loadProposal(tx, proposalID, true)
		if err != nil {
			return nil, err
		}
		if _, ok := p.Status.Next(models.ActionAssignReviewer); !ok {
			return nil, newError(KindInvalidTransition, "cannot assign a reviewer to a %s proposal", p.Status)
		}

		reviewerID = strings.TrimSpace(reviewerID)
		if reviewerID == "" {
			reviewerID, err = e.assignments.suggest(tx, p)
			if err != nil {
				return nil, err
			}
		} else if _, err := e.assignments.checkEligible(tx, p, reviewerID); err != nil {
			return nil, err
		}

		now := e.now()
		review := models.Review{
			ProposalID: p.ID,
			ReviewerID: reviewerID,
			Status:     models.ReviewAssigned,
			CreatedAt:  now,
		}
		if err := tx.Create(&review).Error; err != nil {
			return nil, storageError(err, "create review")
		}

		if err := setProposalStatus(tx, p, models.ActionAssignReviewer, actor.UserID, now, map[string]any{"reviewer_id": reviewerID}); err != nil {
			return nil, err
		}
		p.ReviewerID = &reviewerID
		outProposal, outReview = p, &review

		ev := proposalEvent(models.EventReviewAssigned, p, actor.UserID, now)
		ev.ReviewerID = reviewerID
		ev.ReviewID = review.ID
		return []models.Event{ev}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outProposal, outReview, nil
}

// ReviewInput is the reviewer's recommendation.
type ReviewInput struct {
	Score    float64
	Decision models.ReviewDecision
	Comments string
}

func (in ReviewInput) validate() (ReviewInput, error) {
	score, err := normalizeScore(in.Score)
	if err != nil {
		return in, err
	}
	if !in.Decision.Valid() {
		return in, newError(KindInvalidInput, "decision must be one of %s, %s, %s",
			models.DecisionApproved, models.DecisionRejected, models.DecisionRevisionsRequested)
	}
	in.Score = score
	in.Comments = strings.TrimSpace(in.Comments)
	return in, nil
}

// normalizeScore accepts 0..10 with at most one decimal place.
func normalizeScore(score float64) (float64, error) {
	if math.IsNaN(score) || score < 0 || score > 10 {
		return 0, newError(KindScoreOutOfRange, "score must be between 0 and 10")
	}
	scaled := score * 10
	if math.Abs(scaled-math.Round(scaled)) > 1e-6 {
		return 0, newError(KindScoreOutOfRange, "score allows one decimal place")
	}
	return math.Round(scaled) / 10, nil
}

// CompleteReview records the assigned reviewer's recommendation. It does not
// change the proposal's status; that is Decide's job.
func (e *WorkflowEngine) CompleteReview(ctx context.Context, actor models.Actor, reviewID string, in ReviewInput) (*models.Review, error) {
	in, err := in.validate()
	if err != nil {
		return nil, err
	}

	proposalID, err := e.proposalOfReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	unlock := e.locks.Lock(proposalID)
	defer unlock()

	var out *models.Review
	err = runInTx(ctx, e.db, e.bus, func(tx *gorm.DB) ([]models.Event, error) {
		review, err := loadReview(tx, reviewID)
		if err != nil {
			return nil, err
		}
		if review.ReviewerID != actor.UserID {
			return nil, newError(KindNotOwner, "review is assigned to another reviewer")
		}
		if review.Status != models.ReviewAssigned {
			return nil, newError(KindInvalidTransition, "review is already %s", review.Status)
		}

		p, err := loadProposal(tx, review.ProposalID, true)
		if err != nil {
			return nil, err
		}
		if _, ok := p.Status.Next(models.ActionCompleteReview); !ok {
			return nil, newError(KindInvalidTransition, "proposal is %s, not %s", p.Status, models.ProposalUnderReview)
		}

		now := e.now()
		res := tx.Model(&models.Review{}).
			Where("review_id = ? AND status = ?", review.ID, models.ReviewAssigned).
			Updates(map[string]any{
				"score":       in.Score,
				"decision":    in.Decision,
				"comments":    in.Comments,
				"status":      models.ReviewCompleted,
				"review_date": now,
			})
		if res.Error != nil {
			return nil, storageError(res.Error, "complete review")
		}
		if res.RowsAffected == 0 {
			return nil, newError(KindInvalidTransition, "review %s changed concurrently", review.ID)
		}

		score, decision := in.Score, in.Decision
		review.Score = &score
		review.Decision = &decision
		review.Comments = in.Comments
		review.Status = models.ReviewCompleted
		review.ReviewDate = &now
		out = review

		return []models.Event{reviewEvent(p, review, actor.UserID, now)}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReviseReview corrects a Completed review by writing a new Completed review
// that supersedes it. The original row is left untouched.
func (e *WorkflowEngine) ReviseReview(ctx context.Context, actor models.Actor, reviewID string, in ReviewInput) (*models.Review, error) {
	in, err := in.validate()
	if err != nil {
		return nil, err
	}

	proposalID, err := e.proposalOfReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	unlock := e.locks.Lock(proposalID)
	defer unlock()

	var out *models.Review
	err = runInTx(ctx, e.db, e.bus, func(tx *gorm.DB) ([]models.Event, error) {
		prev, err := loadReview(tx, reviewID)
		if err != nil {
			return nil, err
		}
		if prev.ReviewerID != actor.UserID {
			return nil, newError(KindNotOwner, "only the original reviewer can revise this review")
		}
		if prev.Status != models.ReviewCompleted {
			return nil, newError(KindInvalidTransition, "only completed reviews can be revised")
		}

		var newer int64
		if err := tx.Model(&models.Review{}).Where("supersedes_id = ?", prev.ID).Count(&newer).Error; err != nil {
			return nil, storageError(err, "review revisions")
		}
		if newer > 0 {
			return nil, newError(KindInvalidTransition, "review %s has already been revised", prev.ID)
		}

		p, err := loadProposal(tx, prev.ProposalID, true)
		if err != nil {
			return nil, err
		}
		if _, ok := p.Status.Next(models.ActionCompleteReview); !ok {
			return nil, newError(KindInvalidTransition, "proposal is %s, reviews can no longer change", p.Status)
		}

		now := e.now()
		score, decision, prevID := in.Score, in.Decision, prev.ID
		revision := models.Review{
			ProposalID:   prev.ProposalID,
			ReviewerID:   prev.ReviewerID,
			Score:        &score,
			Decision:     &decision,
			Comments:     in.Comments,
			Status:       models.ReviewCompleted,
			ReviewDate:   &now,
			SupersedesID: &prevID,
			CreatedAt:    now,
		}
		if err := tx.Create(&revision).Error; err != nil {
			return nil, storageError(err, "create review revision")
		}
		out = &revision

		return []models.Event{reviewEvent(p, &revision, actor.UserID, now)}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Decide records the administrative outcome. Scores are never aggregated
// here; the admin supplies the decision explicitly.
func (e *WorkflowEngine) Decide(ctx context.Context, actor models.Actor, proposalID string, decision models.ReviewDecision) (*models.Proposal, error) {
	if !actor.IsAdmin() {
		return nil, newError(KindForbidden, "only admins can decide proposals")
	}
	if !decision.Final() {
		return nil, newError(KindInvalidInput, "decision must be %s or %s", models.DecisionApproved, models.DecisionRejected)
	}
	action := models.ActionApprove
	if decision == models.DecisionRejected {
		action = models.ActionReject
	}

	unlock := e.locks.Lock(proposalID)
	defer unlock()

	var out *models.Proposal
	err := runInTx(ctx, e.db, e.bus, func(tx *gorm.DB) ([]models.Event, error) {
		p, err := loadProposal(tx, proposalID, true)
		if err != nil {
			return nil, err
		}
		if p.Status.Terminal() {
			return nil, newError(KindInvalidTransition, "proposal was already %s", p.Status)
		}
		if _, ok := p.Status.Next(action); !ok {
			return nil, newError(KindInvalidTransition, "cannot decide a %s proposal", p.Status)
		}

		var completed int64
		if err := tx.Model(&models.Review{}).
			Where("proposal_id = ? AND status = ?", p.ID, models.ReviewCompleted).
			Count(&completed).Error; err != nil {
			return nil, storageError(err, "count completed reviews")
		}
		if completed == 0 {
			return nil, newError(KindNoCompletedReview, "proposal %s has no completed review", p.ID)
		}

		now := e.now()
		if err := setProposalStatus(tx, p, action, actor.UserID, now, map[string]any{"decided_at": now}); err != nil {
			return nil, err
		}
		p.DecidedAt = &now
		out = p

		return []models.Event{proposalEvent(models.EventProposalStatusUpdate, p, actor.UserID, now)}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *WorkflowEngine) proposalOfReview(ctx context.Context, reviewID string) (string, error) {
	review, err := loadReview(withContext(ctx, e.db), reviewID)
	if err != nil {
		return "", err
	}
	return review.ProposalID, nil
}

func proposalEvent(typ models.EventType, p *models.Proposal, actorID string, now time.Time) models.Event {
	ev := models.Event{
		Type:          typ,
		ActorID:       actorID,
		GrantID:       p.GrantID,
		ProposalID:    p.ID,
		ProposalTitle: p.Title,
		ResearcherID:  p.ResearcherID,
		Status:        p.Status,
		OccurredAt:    now,
	}
	if p.ReviewerID != nil {
		ev.ReviewerID = *p.ReviewerID
	}
	return ev
}

func reviewEvent(p *models.Proposal, r *models.Review, actorID string, now time.Time) models.Event {
	ev := proposalEvent(models.EventReviewCompleted, p, actorID, now)
	ev.ReviewerID = r.ReviewerID
	ev.ReviewID = r.ID
	ev.Score = r.Score
	if r.Decision != nil {
		ev.Decision = *r.Decision
	}
	return ev
}
