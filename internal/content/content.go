package content

import (
	"bytes"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

const (
	MaxMessageLength   = 2000
	MaxGroupNameLength = 100
)

var (
	policy   = bluemonday.UGCPolicy()
	markdown = goldmark.New()
)

// Sanitize removes unsafe HTML from rendered markup.
// User text is stored verbatim and only HTML produced from it goes through here.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// RenderMarkdown converts markdown to sanitized HTML.
func RenderMarkdown(input string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(input), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return Sanitize(buf.String()), nil
}

// ValidateEmail checks that email is a bare address like "user@example.com".
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email cannot be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return errors.New("invalid email format")
	}
	return nil
}

// MessageText trims a message body and enforces the length limit on what the
// user typed. An empty result is valid; callers decide whether text is required.
func MessageText(input string) (string, error) {
	text := strings.TrimSpace(input)
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return "", fmt.Errorf("message is longer than %d characters", MaxMessageLength)
	}
	return text, nil
}

// GroupName trims and validates a group name.
func GroupName(input string) (string, error) {
	name := strings.TrimSpace(input)
	if name == "" {
		return "", errors.New("group name is required")
	}
	if utf8.RuneCountInString(name) > MaxGroupNameLength {
		return "", fmt.Errorf("group name is longer than %d characters", MaxGroupNameLength)
	}
	return name, nil
}
