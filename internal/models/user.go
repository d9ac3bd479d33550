package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var Roles = []string{RoleAdmin, RoleUser}

type User struct {
	ID            uuid.UUID  `json:"id"`
	FirstName     string     `json:"first_name"`
	MiddleName    string     `json:"middle_name,omitempty"`
	LastName      string     `json:"last_name"`
	Email         string     `json:"email"`
	MobileNumber  string     `json:"mobile_number"`
	Role          string     `json:"role"`
	PasswordHash  string     `json:"-"`
	Verified      bool       `json:"verified"`
	AccountLocked bool       `json:"account_locked"`
	CreatedBy     string     `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
}

// DisplayName joins first and last name, falling back to the email.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	return u.Email
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// AccountStatus is the part of a user record re-checked on every request.
type AccountStatus struct {
	Role   string `json:"role"`
	Locked bool   `json:"locked"`
}

// UserProfile is the subset of a user record needed to label log entries.
type UserProfile struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}
