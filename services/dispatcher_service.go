package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"sort"
	"strings"

	"gorm.io/gorm"

	"grant-review-api/models"
)

// Mailer delivers the e-mail copy of a notification.
type Mailer interface {
	SendMail(to []string, subject, html string) error
}

type DispatcherOptions struct {
	Mailer  Mailer
	BaseURL string
	Clock   Clock
	// SyncDelivery sends e-mail on the caller's goroutine after commit.
	SyncDelivery bool
}

// NotificationDispatcher turns domain events into one Notification row per
// recipient. Rows are written in the emitting transaction; e-mail goes out
// after commit and is best-effort.
//
// Delivery is at-least-once. The dispatcher does not deduplicate across
// events.
type NotificationDispatcher struct {
	db   *gorm.DB
	opts DispatcherOptions
	now  Clock
}

func NewNotificationDispatcher(db *gorm.DB, opts DispatcherOptions) *NotificationDispatcher {
	return &NotificationDispatcher{db: db, opts: opts, now: defaultClock(opts.Clock)}
}

type recipient struct {
	UserID string
	Role   models.Role
}

type templatedMessage struct {
	Title string
	Body  string
}

// defaultTemplates apply when no active NotificationTemplate row overrides
// the (event, role) pair.
var defaultTemplates = map[models.EventType]map[models.Role]templatedMessage{
	models.EventProposalSubmitted: {
		models.RoleAdmin: {
			Title: "New proposal submitted",
			Body:  `Proposal "{{proposal_title}}" was submitted to "{{grant_title}}" and is waiting for a reviewer.`,
		},
	},
	models.EventReviewAssigned: {
		models.RoleReviewer: {
			Title: "New review assignment",
			Body:  `You have been assigned to review "{{proposal_title}}".`,
		},
	},
	models.EventReviewCompleted: {
		models.RoleResearcher: {
			Title: "Review completed",
			Body:  `A review of your proposal "{{proposal_title}}" has been completed.`,
		},
		models.RoleAdmin: {
			Title: "Review completed",
			Body:  `The review of "{{proposal_title}}" is complete: score {{score}}, recommendation {{decision}}.`,
		},
	},
	models.EventProposalStatusUpdate: {
		models.RoleResearcher: {
			Title: "Proposal {{status}}",
			Body:  `Your proposal "{{proposal_title}}" has been {{outcome}}.`,
		},
	},
	models.EventNewGrant: {
		models.RoleResearcher: {
			Title: "New grant: {{grant_title}}",
			Body:  `"{{grant_title}}" is open for proposals until {{deadline}}.`,
		},
	},
}

// PriorityFor classifies an event. Rejections are the only high-priority
// outcome.
func PriorityFor(ev models.Event) models.Priority {
	switch ev.Type {
	case models.EventNewGrant:
		return models.PriorityLow
	case models.EventProposalStatusUpdate:
		if ev.Status == models.ProposalRejected {
			return models.PriorityHigh
		}
		return models.PriorityMedium
	default:
		return models.PriorityMedium
	}
}

func (d *NotificationDispatcher) HandleEvent(ctx context.Context, tx *gorm.DB, ev models.Event) (func(context.Context), error) {
	recipients, err := d.recipients(tx, ev)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, nil
	}

	data, err := eventPayload(ev)
	if err != nil {
		return nil, err
	}
	vars := d.templateVars(tx, ev)
	priority := PriorityFor(ev)
	now := d.now()

	rendered := make(map[models.Role]templatedMessage, 2)
	notifications := make([]models.Notification, 0, len(recipients))
	for _, r := range recipients {
		msg, ok := rendered[r.Role]
		if !ok {
			msg, err = d.render(tx, ev.Type, r.Role, vars)
			if err != nil {
				return nil, err
			}
			rendered[r.Role] = msg
		}
		notifications = append(notifications, models.Notification{
			UserID:    r.UserID,
			Type:      ev.Type,
			Title:     msg.Title,
			Message:   msg.Body,
			Priority:  priority,
			Data:      data,
			CreatedAt: now,
		})
	}

	if err := tx.Create(&notifications).Error; err != nil {
		return nil, storageError(err, "create notifications")
	}

	if d.opts.Mailer == nil {
		return nil, nil
	}
	return func(ctx context.Context) { d.deliver(ctx, notifications) }, nil
}

// recipients resolves who hears about ev. Duplicates are dropped so a user
// gets one notification per event.
func (d *NotificationDispatcher) recipients(tx *gorm.DB, ev models.Event) ([]recipient, error) {
	var out []recipient
	seen := map[string]bool{}
	add := func(id string, role models.Role) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, recipient{UserID: id, Role: role})
	}
	addAdmins := func() error {
		ids, err := userIDsByRole(tx, models.RoleAdmin)
		if err != nil {
			return err
		}
		for _, id := range ids {
			add(id, models.RoleAdmin)
		}
		return nil
	}

	switch ev.Type {
	case models.EventProposalSubmitted:
		if err := addAdmins(); err != nil {
			return nil, err
		}
	case models.EventReviewAssigned:
		add(ev.ReviewerID, models.RoleReviewer)
	case models.EventReviewCompleted:
		add(ev.ResearcherID, models.RoleResearcher)
		if err := addAdmins(); err != nil {
			return nil, err
		}
	case models.EventProposalStatusUpdate:
		add(ev.ResearcherID, models.RoleResearcher)
	case models.EventNewGrant:
		var ids []string
		if err := tx.Model(&models.User{}).
			Where("role = ? AND notify_new_grants = ? AND deleted_at IS NULL", models.RoleResearcher, true).
			Order("created_at ASC").
			Pluck("user_id", &ids).Error; err != nil {
			return nil, storageError(err, "grant subscribers")
		}
		for _, id := range ids {
			add(id, models.RoleResearcher)
		}
	default:
		return nil, fmt.Errorf("no recipients defined for event %s", ev.Type)
	}
	return out, nil
}

func (d *NotificationDispatcher) templateVars(tx *gorm.DB, ev models.Event) map[string]string {
	grantTitle := ev.GrantTitle
	if grantTitle == "" && ev.GrantID != "" {
		if g, err := loadGrant(tx, ev.GrantID); err == nil {
			grantTitle = g.Title
		}
	}

	score := "-"
	if ev.Score != nil {
		score = fmt.Sprintf("%.1f", *ev.Score)
	}
	deadline := "-"
	if !ev.GrantDeadline.IsZero() {
		deadline = ev.GrantDeadline.Format("02 Jan 2006 15:04")
	}
	webURL := strings.TrimSpace(d.opts.BaseURL)
	if webURL == "" {
		webURL = "-"
	}

	return map[string]string{
		"proposal_title": dashIfEmpty(ev.ProposalTitle),
		"grant_title":    dashIfEmpty(grantTitle),
		"status":         dashIfEmpty(string(ev.Status)),
		"outcome":        strings.ToLower(dashIfEmpty(string(ev.Status))),
		"decision":       dashIfEmpty(string(ev.Decision)),
		"score":          score,
		"deadline":       deadline,
		"web_url":        webURL,
	}
}

func (d *NotificationDispatcher) render(tx *gorm.DB, event models.EventType, role models.Role, vars map[string]string) (templatedMessage, error) {
	var tmpl models.NotificationTemplate
	err := tx.Where("event_key = ? AND send_to = ? AND is_active = ?", event, role, true).First(&tmpl).Error
	switch {
	case err == nil:
		return templatedMessage{
			Title: applyTemplatePlaceholders(tmpl.TitleTemplate, vars),
			Body:  applyTemplatePlaceholders(tmpl.BodyTemplate, vars),
		}, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return templatedMessage{}, storageError(err, "notification template")
	}

	def, ok := defaultTemplates[event][role]
	if !ok {
		return templatedMessage{}, fmt.Errorf("notification template missing for event %s -> %s", event, role)
	}
	return templatedMessage{
		Title: applyTemplatePlaceholders(def.Title, vars),
		Body:  applyTemplatePlaceholders(def.Body, vars),
	}, nil
}

// applyTemplatePlaceholders substitutes {{key}} tokens in a single pass, so
// placeholder text inside a substituted value is left as typed.
func applyTemplatePlaceholders(text string, data map[string]string) string {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, key := range keys {
		pairs = append(pairs, "{{"+key+"}}", data[key])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

func eventPayload(ev models.Event) (json.RawMessage, error) {
	payload := struct {
		ProposalID string `json:"proposalId,omitempty"`
		ReviewID   string `json:"reviewId,omitempty"`
		GrantID    string `json:"grantId,omitempty"`
	}{ev.ProposalID, ev.ReviewID, ev.GrantID}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode notification payload: %w", err)
	}
	return raw, nil
}

func dashIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// deliver e-mails each notification to its recipient. Failures are logged.
func (d *NotificationDispatcher) deliver(ctx context.Context, notifications []models.Notification) {
	send := func(ctx context.Context) {
		ids := make([]string, 0, len(notifications))
		for _, n := range notifications {
			ids = append(ids, n.UserID)
		}

		var users []models.User
		if err := withContext(ctx, d.db).Where("user_id IN ?", ids).Find(&users).Error; err != nil {
			log.Printf("notification email: load recipients: %v", err)
			return
		}
		byID := make(map[string]models.User, len(users))
		for _, u := range users {
			byID[u.ID] = u
		}

		for _, n := range notifications {
			u, ok := byID[n.UserID]
			if !ok || strings.TrimSpace(u.Email) == "" {
				continue
			}
			html := buildEmailHTML(n.Title, u.Name, n.Message)
			if err := d.opts.Mailer.SendMail([]string{u.Email}, n.Title, html); err != nil {
				log.Printf("notification email send failed (subject=%q to=%v): %v", n.Title, u.Email, err)
			}
		}
	}

	if d.opts.SyncDelivery {
		send(ctx)
		return
	}
	go send(persistentContext(ctx))
}

func buildEmailHTML(subject, recipientName, message string) string {
	name := strings.TrimSpace(recipientName)
	if name == "" {
		name = "colleague"
	}

	escapedSubject := template.HTMLEscapeString(subject)
	escapedGreeting := template.HTMLEscapeString(fmt.Sprintf("Dear %s,", name))
	escapedMessage := template.HTMLEscapeString(strings.TrimSpace(message))
	escapedMessage = strings.ReplaceAll(strings.ReplaceAll(escapedMessage, "\r\n", "\n"), "\r", "\n")
	escapedMessage = strings.ReplaceAll(escapedMessage, "\n", "<br />")

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
</head>
<body style="margin:0;padding:0;background-color:#f9fafb;font-family:'Segoe UI',Tahoma,Arial,sans-serif;">
<div style="max-width:640px;margin:0 auto;padding:24px 20px;">
  <div style="background-color:#ffffff;border:1px solid #e5e7eb;border-radius:12px;padding:24px 24px 28px 24px;">
    <p style="margin:0 0 16px 0;font-size:16px;line-height:1.7;color:#111827;">%s</p>
    <p style="margin:0 0 0 0;font-size:16px;line-height:1.7;color:#111827;word-break:break-word;">%s</p>
  </div>
</div>
</body>
</html>`, escapedSubject, escapedGreeting, escapedMessage)
}
