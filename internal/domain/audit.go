package domain

import (
	"strings"
	"time"
)

// AuditMetadata is embedded in every persisted entity.
type AuditMetadata struct {
	CreatedAt time.Time  `json:"createdAt"`
	CreatedBy string     `json:"createdBy,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	UpdatedBy string     `json:"updatedBy,omitempty"`
	IsDeleted bool       `json:"isDeleted,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// Touch stamps the update fields.
func (a *AuditMetadata) Touch(userID string, now time.Time) {
	t := now
	a.UpdatedAt = &t
	a.UpdatedBy = userID
}

// Stamp sets the creation fields.
func (a *AuditMetadata) Stamp(userID string, now time.Time) {
	a.CreatedAt = now
	a.CreatedBy = userID
}

// LocalizedString holds the English and Arabic forms of a user-facing text.
type LocalizedString struct {
	En string `json:"en" yaml:"en"`
	Ar string `json:"ar" yaml:"ar"`
}

// Get returns the text for locale, falling back to English.
func (l LocalizedString) Get(locale string) string {
	if strings.HasPrefix(strings.ToLower(locale), "ar") && l.Ar != "" {
		return l.Ar
	}
	return l.En
}

// Validate requires both languages.
func (l LocalizedString) Validate(field string) error {
	if strings.TrimSpace(l.En) == "" {
		return NewValidationError(field+".en", "is required")
	}
	if strings.TrimSpace(l.Ar) == "" {
		return NewValidationError(field+".ar", "is required")
	}
	return nil
}
