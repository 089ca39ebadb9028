package services

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"grant-review-api/config"
	"grant-review-api/models"
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMail struct {
	To      []string
	Subject string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) SendMail(to []string, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject})
	return m.err
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fixture struct {
	db    *gorm.DB
	clock *testClock
	mail  *recordingMailer
	bus   *EventBus

	engine        *WorkflowEngine
	assignments   *AssignmentService
	grants        *GrantService
	proposals     *ProposalService
	notifications *NotificationService
	templates     *TemplateService
	queries       *QueryService

	admin      models.User
	researcher models.User
	reviewer   models.User
	grant      models.Grant
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "grants.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := config.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:    newTestDB(t),
		clock: &testClock{now: baseTime},
		mail:  &recordingMailer{},
	}

	dispatcher := NewNotificationDispatcher(f.db, DispatcherOptions{
		Mailer:       f.mail,
		BaseURL:      "https://grants.example.org",
		Clock:        f.clock.Now,
		SyncDelivery: true,
	})
	f.bus = NewEventBus(dispatcher)
	f.assignments = NewAssignmentService(f.db)
	f.engine = NewWorkflowEngine(f.db, f.bus, f.assignments, f.clock.Now)
	f.grants = NewGrantService(f.db, f.bus, f.clock.Now)
	f.proposals = NewProposalService(f.db, f.clock.Now)
	f.notifications = NewNotificationService(f.db)
	f.templates = NewTemplateService(f.db, f.clock.Now)
	f.queries = NewQueryService(f.db, nil, 0, f.clock.Now)

	f.admin = f.addUser(t, "Ada Admin", models.RoleAdmin, "")
	f.researcher = f.addUser(t, "Rita Researcher", models.RoleResearcher, "")
	f.reviewer = f.addUser(t, "Rob Reviewer", models.RoleReviewer, "")
	f.grant = f.addGrant(t, "Climate Resilience Fund", "Environment", baseTime.Add(30*24*time.Hour))
	return f
}

var userSeq int

// addUser inserts a user whose CreatedAt increases with each call so that
// creation order is deterministic.
func (f *fixture) addUser(t *testing.T, name string, role models.Role, specialization string) models.User {
	t.Helper()
	userSeq++
	u := models.User{
		Name:           name,
		Email:          uniqueEmail(name, userSeq),
		Password:       "x",
		Role:           role,
		Specialization: specialization,
		CreatedAt:      baseTime.Add(time.Duration(userSeq) * time.Second),
	}
	if err := f.db.Create(&u).Error; err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func uniqueEmail(name string, seq int) string {
	b := []byte{}
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			b = append(b, byte(r-'A'+'a'))
		case r >= 'a' && r <= 'z':
			b = append(b, byte(r))
		}
	}
	return string(b) + "." + strconv.Itoa(seq) + "@example.org"
}

func (f *fixture) addGrant(t *testing.T, title, category string, deadline time.Time) models.Grant {
	t.Helper()
	g := models.Grant{
		Title:         title,
		Category:      category,
		FundingAmount: 500000,
		Deadline:      deadline,
		Status:        models.GrantActive,
		CreatedBy:     f.admin.ID,
	}
	if err := f.db.Create(&g).Error; err != nil {
		t.Fatalf("create grant: %v", err)
	}
	return g
}

func actorOf(u models.User) models.Actor {
	return models.Actor{UserID: u.ID, Role: u.Role}
}

func (f *fixture) draft(t *testing.T) *models.Proposal {
	t.Helper()
	p, err := f.proposals.CreateProposal(context.Background(), actorOf(f.researcher), ProposalInput{
		GrantID:          f.grant.ID,
		Title:            "Flood early warning sensors",
		Abstract:         "Low-cost river gauges.",
		RequestedFunding: 120000,
	})
	if err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}
	return p
}

func (f *fixture) submitted(t *testing.T) *models.Proposal {
	t.Helper()
	p := f.draft(t)
	p, err := f.engine.Submit(context.Background(), actorOf(f.researcher), p.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return p
}

func (f *fixture) underReview(t *testing.T) (*models.Proposal, *models.Review) {
	t.Helper()
	p := f.submitted(t)
	p, review, err := f.engine.AssignReviewer(context.Background(), actorOf(f.admin), p.ID, f.reviewer.ID)
	if err != nil {
		t.Fatalf("AssignReviewer: %v", err)
	}
	return p, review
}

func (f *fixture) reviewed(t *testing.T, decision models.ReviewDecision) (*models.Proposal, *models.Review) {
	t.Helper()
	p, review := f.underReview(t)
	review, err := f.engine.CompleteReview(context.Background(), actorOf(f.reviewer), review.ID, ReviewInput{
		Score:    8.5,
		Decision: decision,
		Comments: "Solid methodology.",
	})
	if err != nil {
		t.Fatalf("CompleteReview: %v", err)
	}
	return p, review
}

func (f *fixture) proposalStatus(t *testing.T, id string) models.ProposalStatus {
	t.Helper()
	var p models.Proposal
	if err := f.db.Where("proposal_id = ?", id).First(&p).Error; err != nil {
		t.Fatalf("load proposal: %v", err)
	}
	return p.Status
}

func (f *fixture) notificationsFor(t *testing.T, userID string) []models.Notification {
	t.Helper()
	var rows []models.Notification
	if err := f.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load notifications: %v", err)
	}
	return rows
}

func (f *fixture) countNotifications(t *testing.T, userID string, typ models.EventType) int {
	t.Helper()
	n := 0
	for _, row := range f.notificationsFor(t, userID) {
		if row.Type == typ {
			n++
		}
	}
	return n
}

func expectKind(t *testing.T, err error, want ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if !errors.Is(err, &Error{Kind: want}) {
		t.Fatalf("expected %s error, got %v", want, err)
	}
}
