package model

import (
	"fmt"
	"strings"
)

// AccessLevel is the coarse role attached to a profile.
type AccessLevel string

const (
	AccessLevelUser  AccessLevel = "user"
	AccessLevelAdmin AccessLevel = "admin"
)

// ParseAccessLevel maps a stored value to an AccessLevel. Empty means user.
func ParseAccessLevel(s string) (AccessLevel, error) {
	switch AccessLevel(strings.ToLower(strings.TrimSpace(s))) {
	case "", AccessLevelUser:
		return AccessLevelUser, nil
	case AccessLevelAdmin:
		return AccessLevelAdmin, nil
	default:
		return "", fmt.Errorf("unknown access level %q", s)
	}
}

// Profile is the authenticated user as seen by the client core.
type Profile struct {
	Identity    string      `json:"uid" bson:"uid"`
	DisplayName string      `json:"name" bson:"name"`
	Email       string      `json:"email" bson:"email"`
	AccessLevel AccessLevel `json:"accessLevel" bson:"accessLevel"`
}

// Validate checks the fields the core relies on.
func (p Profile) Validate() error {
	if p.Identity == "" {
		return fmt.Errorf("profile identity is required")
	}
	if p.AccessLevel != AccessLevelUser && p.AccessLevel != AccessLevelAdmin {
		return fmt.Errorf("unknown access level %q", p.AccessLevel)
	}
	return nil
}

// IsAdmin reports whether the profile carries the admin level.
func (p Profile) IsAdmin() bool {
	return p.AccessLevel == AccessLevelAdmin
}
