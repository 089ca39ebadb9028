package services

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"grant-review-api/models"
)

// forUpdate takes a row lock on dialects that support it. SQLite serialises
// writers at the database level instead.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func loadProposal(tx *gorm.DB, id string, lock bool) (*models.Proposal, error) {
	q := tx
	if lock {
		q = forUpdate(tx)
	}
	var p models.Proposal
	if err := q.Where("proposal_id = ?", id).First(&p).Error; err != nil {
		return nil, storageError(err, "proposal")
	}
	return &p, nil
}

func loadReview(tx *gorm.DB, id string) (*models.Review, error) {
	var r models.Review
	if err := tx.Where("review_id = ?", id).First(&r).Error; err != nil {
		return nil, storageError(err, "review")
	}
	return &r, nil
}

func loadGrant(tx *gorm.DB, id string) (*models.Grant, error) {
	var g models.Grant
	if err := tx.Where("grant_id = ?", id).First(&g).Error; err != nil {
		return nil, storageError(err, "grant")
	}
	return &g, nil
}

func loadUser(tx *gorm.DB, id string) (*models.User, error) {
	var u models.User
	if err := tx.Where("user_id = ? AND deleted_at IS NULL", id).First(&u).Error; err != nil {
		return nil, storageError(err, "user")
	}
	return &u, nil
}

func userIDsByRole(tx *gorm.DB, role models.Role) ([]string, error) {
	var ids []string
	if err := tx.Model(&models.User{}).
		Where("role = ? AND deleted_at IS NULL", role).
		Order("created_at ASC").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, storageError(err, "users")
	}
	return ids, nil
}

// setProposalStatus moves p along the transition table and records history.
// Extra columns are written in the same UPDATE.
func setProposalStatus(tx *gorm.DB, p *models.Proposal, action models.ProposalAction, actorID string, now time.Time, extra map[string]any) error {
	next, ok := p.Status.Next(action)
	if !ok {
		return newError(KindInvalidTransition, "cannot %s a proposal in status %s", action, p.Status)
	}

	updates := map[string]any{"status": next, "updated_at": now}
	for k, v := range extra {
		updates[k] = v
	}

	res := tx.Model(&models.Proposal{}).
		Where("proposal_id = ? AND status = ?", p.ID, p.Status).
		Updates(updates)
	if res.Error != nil {
		return storageError(res.Error, "update proposal")
	}
	if res.RowsAffected == 0 {
		return newError(KindInvalidTransition, "proposal %s changed concurrently", p.ID)
	}

	if next != p.Status {
		old := p.Status
		history := models.ProposalStatusHistory{
			ProposalID: p.ID,
			OldStatus:  &old,
			NewStatus:  next,
			ChangedBy:  actorID,
			CreatedAt:  now,
		}
		if err := tx.Create(&history).Error; err != nil {
			return storageError(err, "record status history")
		}
	}

	p.Status = next
	p.UpdatedAt = now
	return nil
}

// closeGrantIfActive flips an Active grant to Closed. It is a no-op when the
// grant was already closed.
func closeGrantIfActive(tx *gorm.DB, id string, now time.Time) error {
	return tx.Model(&models.Grant{}).
		Where("grant_id = ? AND status = ?", id, models.GrantActive).
		Updates(map[string]any{"status": models.GrantClosed, "updated_at": now}).Error
}

func withContext(ctx context.Context, db *gorm.DB) *gorm.DB {
	if ctx == nil {
		ctx = context.Background()
	}
	return db.WithContext(ctx)
}
