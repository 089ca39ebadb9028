package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"grant-review-api/models"
)

func TestWorkflowHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.draft(t)
	if p.Status != models.ProposalDraft {
		t.Fatalf("new proposal status = %s, want Draft", p.Status)
	}

	p, err := f.engine.Submit(ctx, actorOf(f.researcher), p.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if p.Status != models.ProposalSubmitted || p.DateSubmitted == nil || !p.DateSubmitted.Equal(baseTime) {
		t.Fatalf("after submit: status=%s date=%v", p.Status, p.DateSubmitted)
	}

	p, review, err := f.engine.AssignReviewer(ctx, actorOf(f.admin), p.ID, f.reviewer.ID)
	if err != nil {
		t.Fatalf("AssignReviewer: %v", err)
	}
	if p.Status != models.ProposalUnderReview || p.ReviewerID == nil || *p.ReviewerID != f.reviewer.ID {
		t.Fatalf("after assign: status=%s reviewer=%v", p.Status, p.ReviewerID)
	}
	if review.Status != models.ReviewAssigned {
		t.Fatalf("review status = %s, want Assigned", review.Status)
	}

	review, err = f.engine.CompleteReview(ctx, actorOf(f.reviewer), review.ID, ReviewInput{
		Score:    8.5,
		Decision: models.DecisionApproved,
		Comments: "  Strong proposal.  ",
	})
	if err != nil {
		t.Fatalf("CompleteReview: %v", err)
	}
	if review.Status != models.ReviewCompleted || review.Score == nil || *review.Score != 8.5 || review.Comments != "Strong proposal." {
		t.Fatalf("completed review = %+v", review)
	}
	if got := f.proposalStatus(t, p.ID); got != models.ProposalUnderReview {
		t.Fatalf("CompleteReview changed proposal status to %s", got)
	}

	p, err = f.engine.Decide(ctx, actorOf(f.admin), p.ID, models.DecisionApproved)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if p.Status != models.ProposalApproved || p.DecidedAt == nil {
		t.Fatalf("after decide: status=%s decided=%v", p.Status, p.DecidedAt)
	}

	if n := f.countNotifications(t, f.admin.ID, models.EventProposalSubmitted); n != 1 {
		t.Fatalf("admin PROPOSAL_SUBMITTED notifications = %d, want 1", n)
	}
	if n := f.countNotifications(t, f.reviewer.ID, models.EventReviewAssigned); n != 1 {
		t.Fatalf("reviewer REVIEW_ASSIGNED notifications = %d, want 1", n)
	}
	if n := f.countNotifications(t, f.researcher.ID, models.EventReviewCompleted); n != 1 {
		t.Fatalf("researcher REVIEW_COMPLETED notifications = %d, want 1", n)
	}
	if n := f.countNotifications(t, f.admin.ID, models.EventReviewCompleted); n != 1 {
		t.Fatalf("admin REVIEW_COMPLETED notifications = %d, want 1", n)
	}

	updates := 0
	for _, n := range f.notificationsFor(t, f.researcher.ID) {
		if n.Type != models.EventProposalStatusUpdate {
			continue
		}
		updates++
		if n.Priority != models.PriorityMedium {
			t.Fatalf("approval priority = %s, want medium", n.Priority)
		}
	}
	if updates != 1 {
		t.Fatalf("researcher PROPOSAL_STATUS_UPDATE notifications = %d, want 1", updates)
	}

	if got := f.mail.count(); got != 5 {
		t.Fatalf("emails sent = %d, want 5", got)
	}

	var history []models.ProposalStatusHistory
	if err := f.db.Where("proposal_id = ?", p.ID).Order("history_id ASC").Find(&history).Error; err != nil {
		t.Fatalf("load history: %v", err)
	}
	want := []models.ProposalStatus{models.ProposalSubmitted, models.ProposalUnderReview, models.ProposalApproved}
	if len(history) != len(want) {
		t.Fatalf("history rows = %d, want %d", len(history), len(want))
	}
	for i, h := range history {
		if h.NewStatus != want[i] {
			t.Fatalf("history[%d] = %s, want %s", i, h.NewStatus, want[i])
		}
	}
}

func TestEveryActiveAdminNotifiedOnce(t *testing.T) {
	f := newFixture(t)
	second := f.addUser(t, "Alan Admin", models.RoleAdmin, "")
	gone := f.addUser(t, "Gus Gone", models.RoleAdmin, "")
	if err := f.db.Model(&models.User{}).Where("user_id = ?", gone.ID).Update("deleted_at", baseTime).Error; err != nil {
		t.Fatalf("soft delete admin: %v", err)
	}

	f.reviewed(t, models.DecisionApproved)

	for _, admin := range []models.User{f.admin, second} {
		if n := f.countNotifications(t, admin.ID, models.EventProposalSubmitted); n != 1 {
			t.Fatalf("%s PROPOSAL_SUBMITTED = %d, want 1", admin.Name, n)
		}
		if n := f.countNotifications(t, admin.ID, models.EventReviewCompleted); n != 1 {
			t.Fatalf("%s REVIEW_COMPLETED = %d, want 1", admin.Name, n)
		}
	}
	if rows := f.notificationsFor(t, gone.ID); len(rows) != 0 {
		t.Fatalf("deleted admin got %d notifications", len(rows))
	}
}

func TestSubmitChecks(t *testing.T) {
	t.Run("not owner", func(t *testing.T) {
		f := newFixture(t)
		other := f.addUser(t, "Oscar Other", models.RoleResearcher, "")
		p := f.draft(t)
		_, err := f.engine.Submit(context.Background(), actorOf(other), p.ID)
		expectKind(t, err, KindNotOwner)
		if got := f.proposalStatus(t, p.ID); got != models.ProposalDraft {
			t.Fatalf("status = %s, want Draft", got)
		}
	})

	t.Run("double submit", func(t *testing.T) {
		f := newFixture(t)
		p := f.submitted(t)
		_, err := f.engine.Submit(context.Background(), actorOf(f.researcher), p.ID)
		expectKind(t, err, KindInvalidTransition)
		if n := f.countNotifications(t, f.admin.ID, models.EventProposalSubmitted); n != 1 {
			t.Fatalf("PROPOSAL_SUBMITTED notifications = %d, want 1", n)
		}
	})

	t.Run("deadline passed", func(t *testing.T) {
		f := newFixture(t)
		p := f.draft(t)
		f.clock.Advance(30*24*time.Hour + time.Second)
		_, err := f.engine.Submit(context.Background(), actorOf(f.researcher), p.ID)
		expectKind(t, err, KindDeadlinePassed)
		if got := f.proposalStatus(t, p.ID); got != models.ProposalDraft {
			t.Fatalf("status = %s, want Draft", got)
		}
		if rows := f.notificationsFor(t, f.admin.ID); len(rows) != 0 {
			t.Fatalf("admin got %d notifications for a rejected submit", len(rows))
		}
		var g models.Grant
		if err := f.db.Where("grant_id = ?", f.grant.ID).First(&g).Error; err != nil {
			t.Fatalf("load grant: %v", err)
		}
		if g.Status != models.GrantClosed {
			t.Fatalf("grant status = %s, want Closed", g.Status)
		}
	})

	t.Run("deadline is inclusive", func(t *testing.T) {
		f := newFixture(t)
		p := f.draft(t)
		f.clock.Advance(30 * 24 * time.Hour)
		if _, err := f.engine.Submit(context.Background(), actorOf(f.researcher), p.ID); err != nil {
			t.Fatalf("Submit at deadline: %v", err)
		}
	})

	t.Run("grant closed early", func(t *testing.T) {
		f := newFixture(t)
		p := f.draft(t)
		if _, err := f.grants.CloseGrant(context.Background(), actorOf(f.admin), f.grant.ID); err != nil {
			t.Fatalf("CloseGrant: %v", err)
		}
		_, err := f.engine.Submit(context.Background(), actorOf(f.researcher), p.ID)
		expectKind(t, err, KindDeadlinePassed)
	})

	t.Run("unknown proposal", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Submit(context.Background(), actorOf(f.researcher), "missing")
		expectKind(t, err, KindNotFound)
	})
}

func TestAssignReviewerChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("admin only", func(t *testing.T) {
		f := newFixture(t)
		p := f.submitted(t)
		_, _, err := f.engine.AssignReviewer(ctx, actorOf(f.reviewer), p.ID, f.reviewer.ID)
		expectKind(t, err, KindForbidden)
	})

	t.Run("draft", func(t *testing.T) {
		f := newFixture(t)
		p := f.draft(t)
		_, _, err := f.engine.AssignReviewer(ctx, actorOf(f.admin), p.ID, f.reviewer.ID)
		expectKind(t, err, KindInvalidTransition)
	})

	t.Run("already under review", func(t *testing.T) {
		f := newFixture(t)
		second := f.addUser(t, "Sam Second", models.RoleReviewer, "")
		p, _ := f.underReview(t)
		_, _, err := f.engine.AssignReviewer(ctx, actorOf(f.admin), p.ID, second.ID)
		expectKind(t, err, KindInvalidTransition)

		var reviews int64
		f.db.Model(&models.Review{}).Where("proposal_id = ?", p.ID).Count(&reviews)
		if reviews != 1 {
			t.Fatalf("reviews = %d, want 1", reviews)
		}
	})

	t.Run("terminal", func(t *testing.T) {
		f := newFixture(t)
		p, _ := f.reviewed(t, models.DecisionRejected)
		if _, err := f.engine.Decide(ctx, actorOf(f.admin), p.ID, models.DecisionRejected); err != nil {
			t.Fatalf("Decide: %v", err)
		}
		_, _, err := f.engine.AssignReviewer(ctx, actorOf(f.admin), p.ID, f.reviewer.ID)
		expectKind(t, err, KindInvalidTransition)
	})

	t.Run("researcher cannot review own proposal", func(t *testing.T) {
		f := newFixture(t)
		p := f.submitted(t)
		_, _, err := f.engine.AssignReviewer(ctx, actorOf(f.admin), p.ID, f.researcher.ID)
		expectKind(t, err, KindNoEligibleReviewer)
		if got := f.proposalStatus(t, p.ID); got != models.ProposalSubmitted {
			t.Fatalf("status = %s, want Submitted", got)
		}
	})

	t.Run("not a reviewer", func(t *testing.T) {
		f := newFixture(t)
		p := f.submitted(t)
		_, _, err := f.engine.AssignReviewer(ctx, actorOf(f.admin), p.ID, f.admin.ID)
		expectKind(t, err, KindNoEligibleReviewer)
		_, _, err = f.engine.AssignReviewer(ctx, actorOf(f.admin), p.ID, "ghost")
		expectKind(t, err, KindNoEligibleReviewer)
	})

	t.Run("suggested when omitted", func(t *testing.T) {
		f := newFixture(t)
		p := f.submitted(t)
		p, review, err := f.engine.AssignReviewer(ctx, actorOf(f.admin), p.ID, "")
		if err != nil {
			t.Fatalf("AssignReviewer: %v", err)
		}
		if review.ReviewerID != f.reviewer.ID || *p.ReviewerID != f.reviewer.ID {
			t.Fatalf("assigned %s, want %s", review.ReviewerID, f.reviewer.ID)
		}
	})
}

func TestCompleteReviewChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("score range", func(t *testing.T) {
		f := newFixture(t)
		_, review := f.underReview(t)
		for _, score := range []float64{-0.1, 10.1, 7.25, math.NaN()} {
			_, err := f.engine.CompleteReview(ctx, actorOf(f.reviewer), review.ID, ReviewInput{Score: score, Decision: models.DecisionApproved})
			expectKind(t, err, KindScoreOutOfRange)
		}
		for _, ok := range []float64{0, 10, 6.5} {
			if _, err := normalizeScore(ok); err != nil {
				t.Fatalf("normalizeScore(%v): %v", ok, err)
			}
		}
	})

	t.Run("decision required", func(t *testing.T) {
		f := newFixture(t)
		_, review := f.underReview(t)
		_, err := f.engine.CompleteReview(ctx, actorOf(f.reviewer), review.ID, ReviewInput{Score: 5, Decision: "Maybe"})
		expectKind(t, err, KindInvalidInput)
	})

	t.Run("wrong reviewer", func(t *testing.T) {
		f := newFixture(t)
		other := f.addUser(t, "Olga Other", models.RoleReviewer, "")
		_, review := f.underReview(t)
		_, err := f.engine.CompleteReview(ctx, actorOf(other), review.ID, ReviewInput{Score: 5, Decision: models.DecisionApproved})
		expectKind(t, err, KindNotOwner)
	})

	t.Run("twice", func(t *testing.T) {
		f := newFixture(t)
		_, review := f.reviewed(t, models.DecisionApproved)
		_, err := f.engine.CompleteReview(ctx, actorOf(f.reviewer), review.ID, ReviewInput{Score: 5, Decision: models.DecisionApproved})
		expectKind(t, err, KindInvalidTransition)
	})
}

func TestDecideChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("submitted proposal", func(t *testing.T) {
		f := newFixture(t)
		p := f.submitted(t)
		_, err := f.engine.Decide(ctx, actorOf(f.admin), p.ID, models.DecisionApproved)
		expectKind(t, err, KindInvalidTransition)
	})

	t.Run("no completed review", func(t *testing.T) {
		f := newFixture(t)
		p, _ := f.underReview(t)
		_, err := f.engine.Decide(ctx, actorOf(f.admin), p.ID, models.DecisionApproved)
		expectKind(t, err, KindNoCompletedReview)
	})

	t.Run("revisions requested is not a decision", func(t *testing.T) {
		f := newFixture(t)
		p, _ := f.reviewed(t, models.DecisionRevisionsRequested)
		_, err := f.engine.Decide(ctx, actorOf(f.admin), p.ID, models.DecisionRevisionsRequested)
		expectKind(t, err, KindInvalidInput)
	})

	t.Run("admin only", func(t *testing.T) {
		f := newFixture(t)
		p, _ := f.reviewed(t, models.DecisionApproved)
		_, err := f.engine.Decide(ctx, actorOf(f.reviewer), p.ID, models.DecisionApproved)
		expectKind(t, err, KindForbidden)
	})

	t.Run("admin may overrule the recommendation", func(t *testing.T) {
		f := newFixture(t)
		p, _ := f.reviewed(t, models.DecisionApproved)
		p, err := f.engine.Decide(ctx, actorOf(f.admin), p.ID, models.DecisionRejected)
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if p.Status != models.ProposalRejected {
			t.Fatalf("status = %s, want Rejected", p.Status)
		}
		updates := 0
		for _, n := range f.notificationsFor(t, f.researcher.ID) {
			if n.Type != models.EventProposalStatusUpdate {
				continue
			}
			updates++
			if n.Priority != models.PriorityHigh {
				t.Fatalf("rejection priority = %s, want high", n.Priority)
			}
		}
		if updates != 1 {
			t.Fatalf("PROPOSAL_STATUS_UPDATE notifications = %d, want 1", updates)
		}
	})

	t.Run("terminal is final", func(t *testing.T) {
		f := newFixture(t)
		p, _ := f.reviewed(t, models.DecisionApproved)
		if _, err := f.engine.Decide(ctx, actorOf(f.admin), p.ID, models.DecisionApproved); err != nil {
			t.Fatalf("Decide: %v", err)
		}
		_, err := f.engine.Decide(ctx, actorOf(f.admin), p.ID, models.DecisionRejected)
		expectKind(t, err, KindInvalidTransition)
		if got := f.proposalStatus(t, p.ID); got != models.ProposalApproved {
			t.Fatalf("status = %s, want Approved", got)
		}
	})
}

func TestReviseReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p, original := f.reviewed(t, models.DecisionRevisionsRequested)

	other := f.addUser(t, "Otto Other", models.RoleReviewer, "")
	_, err := f.engine.ReviseReview(ctx, actorOf(other), original.ID, ReviewInput{Score: 9, Decision: models.DecisionApproved})
	expectKind(t, err, KindNotOwner)

	revision, err := f.engine.ReviseReview(ctx, actorOf(f.reviewer), original.ID, ReviewInput{Score: 9, Decision: models.DecisionApproved})
	if err != nil {
		t.Fatalf("ReviseReview: %v", err)
	}
	if revision.SupersedesID == nil || *revision.SupersedesID != original.ID || revision.Status != models.ReviewCompleted {
		t.Fatalf("revision = %+v", revision)
	}

	var stored models.Review
	f.db.Where("review_id = ?", original.ID).First(&stored)
	if stored.Score == nil || *stored.Score != 8.5 {
		t.Fatalf("original review was modified: %+v", stored)
	}

	_, err = f.engine.ReviseReview(ctx, actorOf(f.reviewer), original.ID, ReviewInput{Score: 7, Decision: models.DecisionApproved})
	expectKind(t, err, KindInvalidTransition)

	if n := f.countNotifications(t, f.researcher.ID, models.EventReviewCompleted); n != 2 {
		t.Fatalf("REVIEW_COMPLETED notifications = %d, want 2", n)
	}

	if _, err := f.engine.Decide(ctx, actorOf(f.admin), p.ID, models.DecisionApproved); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	_, err = f.engine.ReviseReview(ctx, actorOf(f.reviewer), revision.ID, ReviewInput{Score: 3, Decision: models.DecisionRejected})
	expectKind(t, err, KindInvalidTransition)
}

func TestConcurrentAssignOneWins(t *testing.T) {
	f := newFixture(t)
	p := f.submitted(t)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.engine.AssignReviewer(context.Background(), actorOf(f.admin), p.ID, f.reviewer.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrInvalidTransition):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || conflicts != workers-1 {
		t.Fatalf("successes=%d conflicts=%d", successes, conflicts)
	}
	var reviews int64
	f.db.Model(&models.Review{}).Where("proposal_id = ?", p.ID).Count(&reviews)
	if reviews != 1 {
		t.Fatalf("reviews = %d, want 1", reviews)
	}
	if n := f.countNotifications(t, f.reviewer.ID, models.EventReviewAssigned); n != 1 {
		t.Fatalf("REVIEW_ASSIGNED notifications = %d, want 1", n)
	}
}

func TestConcurrentDecideOneWins(t *testing.T) {
	f := newFixture(t)
	p, _ := f.reviewed(t, models.DecisionApproved)

	decisions := []models.ReviewDecision{models.DecisionApproved, models.DecisionRejected}
	errs := make([]error, len(decisions))
	var wg sync.WaitGroup
	for i, d := range decisions {
		wg.Add(1)
		go func(i int, d models.ReviewDecision) {
			defer wg.Done()
			_, errs[i] = f.engine.Decide(context.Background(), actorOf(f.admin), p.ID, d)
		}(i, d)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			expectKind(t, err, KindInvalidTransition)
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("failed decisions = %d, want 1", failed)
	}
	if n := f.countNotifications(t, f.researcher.ID, models.EventProposalStatusUpdate); n != 1 {
		t.Fatalf("status notifications = %d, want 1", n)
	}
}

type failingHandler struct{ recipient string }

func (h failingHandler) HandleEvent(ctx context.Context, tx *gorm.DB, ev models.Event) (func(context.Context), error) {
	orphan := models.Notification{UserID: h.recipient, Type: ev.Type, Title: "orphan", Priority: models.PriorityLow}
	if err := tx.Create(&orphan).Error; err != nil {
		return nil, err
	}
	return nil, errors.New("handler exploded")
}

func TestHandlerFailureKeepsTransition(t *testing.T) {
	f := newFixture(t)
	f.bus.Subscribe(failingHandler{recipient: f.admin.ID})

	p := f.submitted(t)
	if got := f.proposalStatus(t, p.ID); got != models.ProposalSubmitted {
		t.Fatalf("status = %s, want Submitted", got)
	}
	for _, n := range f.notificationsFor(t, f.admin.ID) {
		if n.Title == "orphan" {
			t.Fatalf("failed handler's write was not rolled back")
		}
	}
	if n := f.countNotifications(t, f.admin.ID, models.EventProposalSubmitted); n != 1 {
		t.Fatalf("PROPOSAL_SUBMITTED notifications = %d, want 1", n)
	}
}

func TestMailFailureKeepsTransition(t *testing.T) {
	f := newFixture(t)
	f.mail.err = errors.New("smtp down")

	p := f.submitted(t)
	if got := f.proposalStatus(t, p.ID); got != models.ProposalSubmitted {
		t.Fatalf("status = %s, want Submitted", got)
	}
	if f.mail.count() != 1 {
		t.Fatalf("mail attempts = %d, want 1", f.mail.count())
	}
}
