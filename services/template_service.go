package services

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"grant-review-api/models"
)

// TemplateService lets admins override the built-in notification wording.
type TemplateService struct {
	db  *gorm.DB
	now Clock
}

func NewTemplateService(db *gorm.DB, clock Clock) *TemplateService {
	return &TemplateService{db: db, now: defaultClock(clock)}
}

func (s *TemplateService) ListTemplates(ctx context.Context, actor models.Actor) ([]models.NotificationTemplate, error) {
	if !actor.IsAdmin() {
		return nil, newError(KindForbidden, "only admins can manage notification templates")
	}
	var rows []models.NotificationTemplate
	if err := withContext(ctx, s.db).Order("event_key ASC, send_to ASC").Find(&rows).Error; err != nil {
		return nil, storageError(err, "list notification templates")
	}
	return rows, nil
}

type TemplateInput struct {
	EventKey      models.EventType
	SendTo        models.Role
	TitleTemplate string
	BodyTemplate  string
	IsActive      bool
}

// UpsertTemplate stores the template for one (event, recipient role) pair.
// Only pairs the dispatcher actually notifies are accepted.
func (s *TemplateService) UpsertTemplate(ctx context.Context, actor models.Actor, in TemplateInput) (*models.NotificationTemplate, error) {
	if !actor.IsAdmin() {
		return nil, newError(KindForbidden, "only admins can manage notification templates")
	}
	if _, ok := defaultTemplates[in.EventKey][in.SendTo]; !ok {
		return nil, newError(KindInvalidInput, "event %s is not sent to %s", in.EventKey, in.SendTo)
	}
	in.TitleTemplate = strings.TrimSpace(in.TitleTemplate)
	in.BodyTemplate = strings.TrimSpace(in.BodyTemplate)
	if in.TitleTemplate == "" || in.BodyTemplate == "" {
		return nil, newError(KindInvalidInput, "title and body templates are required")
	}

	now := s.now()
	row := models.NotificationTemplate{
		EventKey:      in.EventKey,
		SendTo:        in.SendTo,
		TitleTemplate: in.TitleTemplate,
		BodyTemplate:  in.BodyTemplate,
		IsActive:      in.IsActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	tx := withContext(ctx, s.db)
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_key"}, {Name: "send_to"}},
		DoUpdates: clause.AssignmentColumns([]string{"title_template", "body_template", "is_active", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return nil, storageError(err, "save notification template")
	}

	var saved models.NotificationTemplate
	if err := tx.Where("event_key = ? AND send_to = ?", in.EventKey, in.SendTo).First(&saved).Error; err != nil {
		return nil, storageError(err, "reload notification template")
	}
	return &saved, nil
}

// SeedDefaultTemplates stores the built-in wording as editable rows. Existing
// rows are left untouched. It returns the number of rows inserted.
func SeedDefaultTemplates(ctx context.Context, db *gorm.DB) (int64, error) {
	var rows []models.NotificationTemplate
	for event, byRole := range defaultTemplates {
		for role, msg := range byRole {
			rows = append(rows, models.NotificationTemplate{
				EventKey:      event,
				SendTo:        role,
				TitleTemplate: msg.Title,
				BodyTemplate:  msg.Body,
				IsActive:      true,
			})
		}
	}
	res := withContext(ctx, db).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if res.Error != nil {
		return 0, storageError(res.Error, "seed notification templates")
	}
	return res.RowsAffected, nil
}
