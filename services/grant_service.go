package services

import (
	"context"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"grant-review-api/models"
)

// GrantService manages funding opportunities. Deadline-based closing is
// applied lazily whenever a grant is read.
type GrantService struct {
	db  *gorm.DB
	bus *EventBus
	now Clock
}

func NewGrantService(db *gorm.DB, bus *EventBus, clock Clock) *GrantService {
	return &GrantService{db: db, bus: bus, now: defaultClock(clock)}
}

type GrantInput struct {
	Title         string
	Description   string
	Category      string
	FundingAmount int64
	Deadline      time.Time
}

func (in GrantInput) validate(now time.Time) (GrantInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	in.Description = strings.TrimSpace(in.Description)
	switch {
	case in.Title == "":
		return in, newError(KindInvalidInput, "title is required")
	case in.FundingAmount <= 0:
		return in, newError(KindInvalidInput, "funding amount must be positive")
	case in.Deadline.IsZero() || !in.Deadline.After(now):
		return in, newError(KindInvalidInput, "deadline must be in the future")
	}
	return in, nil
}

// CreateGrant opens a new grant and announces it to researchers who opted in.
func (s *GrantService) CreateGrant(ctx context.Context, actor models.Actor, in GrantInput) (*models.Grant, error) {
	if !actor.IsAdmin() {
		return nil, newError(KindForbidden, "only admins can create grants")
	}
	now := s.now()
	in, err := in.validate(now)
	if err != nil {
		return nil, err
	}

	grant := models.Grant{
		Title:         in.Title,
		Description:   in.Description,
		Category:      in.Category,
		FundingAmount: in.FundingAmount,
		Deadline:      in.Deadline,
		Status:        models.GrantActive,
		CreatedBy:     actor.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = runInTx(ctx, s.db, s.bus, func(tx *gorm.DB) ([]models.Event, error) {
		if err := tx.Create(&grant).Error; err != nil {
			return nil, storageError(err, "create grant")
		}
		return []models.Event{{
			Type:          models.EventNewGrant,
			ActorID:       actor.UserID,
			GrantID:       grant.ID,
			GrantTitle:    grant.Title,
			GrantDeadline: grant.Deadline,
			OccurredAt:    now,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

// CloseGrant closes a grant before its deadline.
func (s *GrantService) CloseGrant(ctx context.Context, actor models.Actor, id string) (*models.Grant, error) {
	if !actor.IsAdmin() {
		return nil, newError(KindForbidden, "only admins can close grants")
	}
	tx := withContext(ctx, s.db)
	grant, err := loadGrant(tx, id)
	if err != nil {
		return nil, err
	}
	if grant.Status == models.GrantClosed {
		return nil, newError(KindInvalidTransition, "grant is already closed")
	}
	now := s.now()
	if err := tx.Model(&models.Grant{}).Where("grant_id = ?", id).
		Updates(map[string]any{"status": models.GrantClosed, "updated_at": now}).Error; err != nil {
		return nil, storageError(err, "close grant")
	}
	grant.Status = models.GrantClosed
	grant.UpdatedAt = now
	return grant, nil
}

func (s *GrantService) GetGrant(ctx context.Context, id string) (*models.Grant, error) {
	tx := withContext(ctx, s.db)
	grant, err := loadGrant(tx, id)
	if err != nil {
		return nil, err
	}
	s.closeExpired(tx, []*models.Grant{grant})
	return grant, nil
}

type GrantFilter struct {
	Status   models.GrantStatus
	Category string
}

func (s *GrantService) ListGrants(ctx context.Context, f GrantFilter) ([]models.Grant, error) {
	tx := withContext(ctx, s.db)

	var grants []models.Grant
	if err := tx.Order("deadline ASC").Find(&grants).Error; err != nil {
		return nil, storageError(err, "list grants")
	}
	ptrs := make([]*models.Grant, len(grants))
	for i := range grants {
		ptrs[i] = &grants[i]
	}
	s.closeExpired(tx, ptrs)

	// Filter after closing so a just-expired grant is reported as Closed.
	out := make([]models.Grant, 0, len(grants))
	for _, g := range grants {
		if f.Status != "" && g.Status != f.Status {
			continue
		}
		if f.Category != "" && !strings.EqualFold(g.Category, f.Category) {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

// closeExpired flips Active grants past their deadline to Closed. Failures
// are logged; the in-memory copy is still reported as Closed.
func (s *GrantService) closeExpired(tx *gorm.DB, grants []*models.Grant) {
	now := s.now()
	for _, g := range grants {
		if !g.Expired(now) {
			continue
		}
		if err := closeGrantIfActive(tx, g.ID, now); err != nil {
			log.Printf("close expired grant %s: %v", g.ID, err)
		}
		g.Status = models.GrantClosed
	}
}
