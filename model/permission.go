package model

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// AccessType says which operations a permission grants.
type AccessType string

const (
	// AccessPublisher grants publish only.
	AccessPublisher AccessType = "publisher"

	// AccessSubscriber grants subscribe only.
	AccessSubscriber AccessType = "subscriber"

	// AccessPublisherSubscriber grants both operations under one pattern.
	AccessPublisherSubscriber AccessType = "publisher-subscriber"
)

// MaxPatternLength is the upper bound on a permission pattern.
const MaxPatternLength = 200

// reservedNames are substrings that client patterns may never contain,
// in any case combination. They are the prefixes of internally generated
// message IDs and subscription keys; a pattern containing them could be
// used to impersonate internal namespaces.
var reservedNames = []string{"zato", "zpsk"}

// Permission grants a security principal access to topics matching a
// pattern. A pattern may carry a "pub=" or "sub=" prefix narrowing it to one
// operation regardless of AccessType.
//
// Patterns are dotted globs: "*" matches exactly one (possibly empty)
// segment, "**" matches any run of segments.
type Permission struct {
	SecBaseID  int64      `json:"secBaseID"`  // Owning security definition ID
	Pattern    string     `json:"pattern"`    // Topic-name glob, optionally "pub="/"sub=" prefixed
	AccessType AccessType `json:"accessType"` // Operations granted
	IsActive   bool       `json:"isActive"`   // Inactive permissions are ignored
}

// NewPermission creates an active permission.
func NewPermission(secBaseID int64, pattern string, accessType AccessType) Permission {
	return Permission{
		SecBaseID:  secBaseID,
		Pattern:    pattern,
		AccessType: accessType,
		IsActive:   true,
	}
}

// Validate checks the permission's shape. The pattern rules are byte-level,
// not visual, so homograph and zero-width-space lookalikes are rejected by
// the ASCII check.
func (p Permission) Validate() error {
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.Pattern, validation.Required, validation.Length(1, MaxPatternLength)),
		validation.Field(&p.AccessType, validation.Required, validation.In(
			AccessPublisher, AccessSubscriber, AccessPublisherSubscriber)),
	); err != nil {
		return err
	}
	return ValidatePattern(p.Pattern)
}

// ValidatePattern checks a raw pattern string: non-empty, at most
// MaxPatternLength characters, ASCII-only and free of reserved names.
// The operation prefix, when present, is not part of the validated glob.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("pattern must not be empty")
	}
	if len(pattern) > MaxPatternLength {
		return fmt.Errorf("pattern exceeds %d characters", MaxPatternLength)
	}
	for _, r := range pattern {
		if r > 127 {
			return fmt.Errorf("pattern contains non-ASCII character %q", r)
		}
	}
	glob := StripOperationPrefix(pattern)
	lower := strings.ToLower(glob)
	for _, name := range reservedNames {
		if strings.Contains(lower, name) {
			return fmt.Errorf("pattern contains reserved name %q", name)
		}
	}
	return nil
}

// StripOperationPrefix removes a leading "pub=" or "sub=" from a pattern,
// returning the bare topic glob.
func StripOperationPrefix(pattern string) string {
	if strings.HasPrefix(pattern, "pub=") || strings.HasPrefix(pattern, "sub=") {
		return pattern[len("pub="):]
	}
	return pattern
}
