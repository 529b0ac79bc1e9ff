package validation

import (
	"strings"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	valid := []string{
		"user@example.com",
		"first.last@sub.example.co",
		"user+tag@example.io",
	}
	for _, email := range valid {
		if err := ValidateEmail(email); err != nil {
			t.Errorf("expected %q to be valid, got %v", email, err)
		}
	}

	invalid := []string{
		"",
		"not-an-email",
		"user@",
		"@example.com",
		"user@localhost",
		"User Name <user@example.com>",
		"a@" + strings.Repeat("x", 260) + ".com",
	}
	for _, email := range invalid {
		if err := ValidateEmail(email); err == nil {
			t.Errorf("expected %q to be rejected", email)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  User@Example.COM "); got != "user@example.com" {
		t.Errorf("unexpected normalization: %s", got)
	}
}

func TestValidateSlug(t *testing.T) {
	valid := []string{"acme", "acme-corp", "team-42"}
	for _, slug := range valid {
		if err := ValidateSlug(slug); err != nil {
			t.Errorf("expected %q to be valid, got %v", slug, err)
		}
	}

	invalid := []string{"", "-acme", "acme-", "Acme", "acme_corp", strings.Repeat("a", 64)}
	for _, slug := range invalid {
		if err := ValidateSlug(slug); err == nil {
			t.Errorf("expected %q to be rejected", slug)
		}
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName("Quarterly Revenue"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateName("   "); err == nil {
		t.Error("expected whitespace-only name to be rejected")
	}
	if err := ValidateName(strings.Repeat("x", 121)); err == nil {
		t.Error("expected overlong name to be rejected")
	}
}

func TestValidateID(t *testing.T) {
	if err := ValidateID("6b1f6e44-9266-4f6e-8f7a-0f30ad4c9e63"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateID("123"); err == nil {
		t.Error("expected non-uuid id to be rejected")
	}
	if err := ValidateID(""); err == nil {
		t.Error("expected empty id to be rejected")
	}
}
