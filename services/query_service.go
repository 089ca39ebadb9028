package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"grant-review-api/models"
)

// QueryService serves dashboard reads. It never takes proposal locks, and
// dashboard aggregates may be served from cache for up to the configured TTL.
type QueryService struct {
	db       *gorm.DB
	cache    StatsCache
	statsTTL time.Duration
	now      Clock
}

func NewQueryService(db *gorm.DB, cache StatsCache, statsTTL time.Duration, clock Clock) *QueryService {
	if cache == nil {
		cache = NewMemoryStatsCache()
	}
	return &QueryService{db: db, cache: cache, statsTTL: statsTTL, now: defaultClock(clock)}
}

type ProposalFilter struct {
	Status       models.ProposalStatus
	GrantID      string
	ResearcherID string
	ReviewerID   string
	Category     string
	Limit        int
	Offset       int
}

type ProposalPage struct {
	Items  []models.Proposal `json:"items"`
	Total  int64             `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// scopeProposals narrows q to what actor may see: researchers their own,
// reviewers their assignments, admins everything.
func scopeProposals(q *gorm.DB, actor models.Actor) *gorm.DB {
	switch actor.Role {
	case models.RoleAdmin:
		return q
	case models.RoleReviewer:
		return q.Where("reviewer_id = ?", actor.UserID)
	default:
		return q.Where("researcher_id = ?", actor.UserID)
	}
}

func (s *QueryService) filteredProposals(ctx context.Context, actor models.Actor, f ProposalFilter) (*gorm.DB, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, newError(KindInvalidInput, "unknown status %q", f.Status)
	}
	q := scopeProposals(withContext(ctx, s.db).Model(&models.Proposal{}), actor)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if v := strings.TrimSpace(f.GrantID); v != "" {
		q = q.Where("grant_id = ?", v)
	}
	if v := strings.TrimSpace(f.ResearcherID); v != "" {
		q = q.Where("researcher_id = ?", v)
	}
	if v := strings.TrimSpace(f.ReviewerID); v != "" {
		q = q.Where("reviewer_id = ?", v)
	}
	if v := strings.TrimSpace(f.Category); v != "" {
		q = q.Where("category = ?", v)
	}
	return q, nil
}

func (s *QueryService) ListProposals(ctx context.Context, actor models.Actor, f ProposalFilter) (*ProposalPage, error) {
	q, err := s.filteredProposals(ctx, actor, f)
	if err != nil {
		return nil, err
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, storageError(err, "count proposals")
	}

	limit, offset := clampPage(f.Limit, f.Offset)
	items := make([]models.Proposal, 0, limit)
	if err := q.Order("updated_at DESC").Order("proposal_id ASC").
		Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, storageError(err, "list proposals")
	}
	return &ProposalPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// ListReviewsForReviewer returns a reviewer's reviews, newest first, with the
// proposal attached.
func (s *QueryService) ListReviewsForReviewer(ctx context.Context, actor models.Actor, reviewerID string) ([]models.Review, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		reviewerID = actor.UserID
	}
	if reviewerID != actor.UserID && !actor.IsAdmin() {
		return nil, newError(KindNotOwner, "cannot list another reviewer's reviews")
	}

	var reviews []models.Review
	if err := withContext(ctx, s.db).Preload("Proposal").
		Where("reviewer_id = ?", reviewerID).
		Order("created_at DESC").
		Find(&reviews).Error; err != nil {
		return nil, storageError(err, "list reviews")
	}
	return reviews, nil
}

const (
	ScopeAll = "all"
	ScopeOwn = "own"
)

type MonthlyCount struct {
	Month     string `json:"month"`
	Submitted int64  `json:"submitted"`
	Approved  int64  `json:"approved"`
}

type DashboardStats struct {
	Scope                string                          `json:"scope"`
	TotalProposals       int64                           `json:"total_proposals"`
	CountsByStatus       map[models.ProposalStatus]int64 `json:"counts_by_status"`
	ApprovedFundingTotal int64                           `json:"approved_funding_total"`
	ProposalsPerCategory map[string]int64                `json:"proposals_per_category"`
	Monthly              []MonthlyCount                  `json:"monthly"`
	GeneratedAt          time.Time                       `json:"generated_at"`
}

// DashboardStats aggregates proposals within scope. ScopeAll is admin-only;
// ScopeOwn applies the same visibility as ListProposals.
func (s *QueryService) DashboardStats(ctx context.Context, actor models.Actor, scope string) (*DashboardStats, error) {
	scope = strings.ToLower(strings.TrimSpace(scope))
	if scope == "" {
		scope = ScopeOwn
		if actor.IsAdmin() {
			scope = ScopeAll
		}
	}
	switch scope {
	case ScopeAll:
		if !actor.IsAdmin() {
			return nil, newError(KindForbidden, "only admins can view global statistics")
		}
	case ScopeOwn:
	default:
		return nil, newError(KindInvalidInput, "unknown scope %q", scope)
	}

	key := "dashboard:" + scope
	if scope == ScopeOwn {
		key += ":" + string(actor.Role) + ":" + actor.UserID
	}
	if cached, ok := s.cache.Get(ctx, key); ok {
		return cached, nil
	}

	base := func() *gorm.DB {
		q := withContext(ctx, s.db).Model(&models.Proposal{})
		if scope == ScopeOwn {
			q = scopeProposals(q, actor)
		}
		return q
	}

	stats := &DashboardStats{
		Scope:                scope,
		CountsByStatus:       make(map[models.ProposalStatus]int64, len(models.ProposalStatuses)),
		ProposalsPerCategory: map[string]int64{},
		Monthly:              []MonthlyCount{},
		GeneratedAt:          s.now(),
	}
	for _, st := range models.ProposalStatuses {
		stats.CountsByStatus[st] = 0
	}

	var byStatus []struct {
		Status models.ProposalStatus
		Total  int64
	}
	if err := base().Select("status, COUNT(*) AS total").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, storageError(err, "proposal counts")
	}
	for _, row := range byStatus {
		stats.CountsByStatus[row.Status] = row.Total
		stats.TotalProposals += row.Total
	}

	var funding struct{ Total int64 }
	if err := base().Select("COALESCE(SUM(requested_funding), 0) AS total").
		Where("status = ?", models.ProposalApproved).
		Scan(&funding).Error; err != nil {
		return nil, storageError(err, "approved funding")
	}
	stats.ApprovedFundingTotal = funding.Total

	var byCategory []struct {
		Category string
		Total    int64
	}
	if err := base().Select("category, COUNT(*) AS total").Group("category").Scan(&byCategory).Error; err != nil {
		return nil, storageError(err, "category histogram")
	}
	for _, row := range byCategory {
		name := row.Category
		if strings.TrimSpace(name) == "" {
			name = "uncategorized"
		}
		stats.ProposalsPerCategory[name] += row.Total
	}

	// Month bucketing is done here rather than in SQL to stay dialect neutral.
	var dates []struct {
		DateSubmitted *time.Time
		DecidedAt     *time.Time
		Status        models.ProposalStatus
	}
	if err := base().Select("date_submitted, decided_at, status").
		Where("date_submitted IS NOT NULL").
		Scan(&dates).Error; err != nil {
		return nil, storageError(err, "monthly counts")
	}
	months := map[string]*MonthlyCount{}
	bucket := func(t time.Time) *MonthlyCount {
		key := t.Format("2006-01")
		m, ok := months[key]
		if !ok {
			m = &MonthlyCount{Month: key}
			months[key] = m
		}
		return m
	}
	for _, d := range dates {
		bucket(*d.DateSubmitted).Submitted++
		if d.Status == models.ProposalApproved && d.DecidedAt != nil {
			bucket(*d.DecidedAt).Approved++
		}
	}
	for _, m := range months {
		stats.Monthly = append(stats.Monthly, *m)
	}
	sort.Slice(stats.Monthly, func(i, j int) bool { return stats.Monthly[i].Month < stats.Monthly[j].Month })

	s.cache.Set(ctx, key, stats, s.statsTTL)
	return stats, nil
}
