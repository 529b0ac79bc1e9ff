package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxSlugLength is the maximum length for a workspace slug
	MaxSlugLength = 63

	// MaxNameLength is the maximum length for workspace and resource names
	MaxNameLength = 120
)

// slugRegex matches lowercase DNS-label style slugs: letters, digits, hyphens,
// no leading or trailing hyphen.
var slugRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// ValidateSlug checks workspace slug format.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("slug is required")
	}
	if len(slug) > MaxSlugLength {
		return fmt.Errorf("slug exceeds %d characters", MaxSlugLength)
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("slug must contain only lowercase letters, digits and hyphens: %s", slug)
	}
	return nil
}

// ValidateName checks a display name for workspaces, KPIs and objectives.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("name is required")
	}
	if len(trimmed) > MaxNameLength {
		return fmt.Errorf("name exceeds %d characters", MaxNameLength)
	}
	return nil
}

// ValidateID checks that an identifier path or body parameter is a UUID.
// All primary keys in the system are UUIDs generated by the database.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid id: %s", id)
	}
	return nil
}
