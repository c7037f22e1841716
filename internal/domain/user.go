package domain

import (
	"fmt"
	"time"
)

// AccessLevel is the level of access a share grant conveys
type AccessLevel string

const (
	AccessLevelRead  AccessLevel = "read"
	AccessLevelWrite AccessLevel = "write"
)

// User is identified by email. A user owns the knowledge sources they
// created and may hold share grants for sources owned by others.
type User struct {
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShareGrant permits a non-owner user access to a knowledge source.
// Grants never expire; they are removed only by explicit unshare.
type ShareGrant struct {
	KnowledgeSourceID string
	UserEmail         string // grantee
	SharedBy          string // owner who granted access
	AccessLevel       AccessLevel
	SharedAt          time.Time
}

// NewUser creates a new User instance
func NewUser(email, name string, now time.Time) *User {
	return &User{
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ValidateUser validates a User instance
func ValidateUser(u *User) error {
	if u == nil {
		return fmt.Errorf("user cannot be nil")
	}

	if u.Email == "" {
		return fmt.Errorf("user Email: %w", ErrMissingRequiredField)
	}

	return nil
}

// ValidateShareGrant validates a ShareGrant instance
func ValidateShareGrant(g *ShareGrant) error {
	if g == nil {
		return fmt.Errorf("share grant cannot be nil")
	}

	if g.KnowledgeSourceID == "" {
		return fmt.Errorf("share grant KnowledgeSourceID: %w", ErrMissingRequiredField)
	}

	if g.UserEmail == "" {
		return fmt.Errorf("share grant UserEmail: %w", ErrMissingRequiredField)
	}

	if g.SharedBy == "" {
		return fmt.Errorf("share grant SharedBy: %w", ErrMissingRequiredField)
	}

	if !isValidAccessLevel(g.AccessLevel) {
		return fmt.Errorf("share grant AccessLevel %q: %w", g.AccessLevel, ErrInvalidAccessLevel)
	}

	return nil
}

// isValidAccessLevel checks if an AccessLevel is valid
func isValidAccessLevel(l AccessLevel) bool {
	switch l {
	case AccessLevelRead, AccessLevelWrite:
		return true
	}
	return false
}

// GrantSatisfies reports whether a grant of level have satisfies a check
// for level want. Write implies read.
func GrantSatisfies(have, want AccessLevel) bool {
	if have == AccessLevelWrite {
		return true
	}
	return have == want
}
