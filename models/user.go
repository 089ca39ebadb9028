package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleResearcher Role = "researcher"
	RoleReviewer   Role = "reviewer"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleResearcher, RoleReviewer, RoleAdmin:
		return true
	}
	return false
}

// User is a researcher, reviewer or admin. Role is fixed at creation.
type User struct {
	ID       string `gorm:"primaryKey;column:user_id;type:varchar(36)" json:"id"`
	Name     string `gorm:"column:name" json:"name"`
	Email    string `gorm:"column:email;uniqueIndex;type:varchar(191)" json:"email"`
	Password string `gorm:"column:password" json:"-"`
	Role     Role   `gorm:"column:role;type:varchar(16);index" json:"role"`
	// Specialization is matched against Proposal.Category when suggesting reviewers.
	Specialization  string     `gorm:"column:specialization" json:"specialization,omitempty"`
	NotifyNewGrants bool       `gorm:"column:notify_new_grants" json:"notify_new_grants"`
	CreatedAt       time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt       *time.Time `gorm:"column:deleted_at" json:"deleted_at,omitempty"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Actor identifies who performs a workflow call. It is passed explicitly into
// every service method instead of being read from request-global state.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
