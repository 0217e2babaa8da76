package domain

import (
	"errors"
	"time"
)

// User is the principal a session belongs to. Credentials live with the identity provider.
type User struct {
	ID           string
	Username     string
	Email        string
	DepartmentID string
	IsActive     bool
	CreatedAt    time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Username == "" {
		return errors.New("username is required")
	}
	return nil
}
