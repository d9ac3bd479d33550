package models

import "time"

// AdminSession asserts that an identity on a device holds elevated privileges.
type AdminSession struct {
	IsAdmin   bool      `json:"is_admin"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// Identity is the currently authenticated principal.
type Identity struct {
	UserID string
	Email  string
	Role   string
}
