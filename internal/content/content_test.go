package content

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain text", "Hello World", "Hello World"},
		{"HTML tags", "Hello <b>World</b>", "Hello <b>World</b>"},
		{"Script tag", "<script>alert('xss')</script>Hello", "Hello"},
		{"Complex HTML", "<a href='javascript:alert(1)'>Click me</a>", "Click me"},
		{"Emoji", "I am 🤖", "I am 🤖"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.expected {
				t.Errorf("Sanitize() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Valid", "user@example.com", false},
		{"Valid subdomain", "first.last@mail.example.org", false},
		{"Reserved account", "luna@chatify.ai", false},
		{"Empty", "", true},
		{"No at", "userexample.com", true},
		{"No domain dot", "user@localhost", true},
		{"Display name", "User <user@example.com>", true},
		{"Spaces", "user name@example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateEmail(tt.input); (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestMessageText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{"Trimmed", "  hi  ", "hi", false},
		{"Markup kept verbatim", "<script>x</script>", "<script>x</script>", false},
		{"Metacharacters", " if a < b && b > c ", "if a < b && b > c", false},
		{"At limit", strings.Repeat("a", MaxMessageLength), strings.Repeat("a", MaxMessageLength), false},
		{"Over limit", strings.Repeat("a", MaxMessageLength+1), "", true},
		{"Ampersands at limit", strings.Repeat("&", MaxMessageLength), strings.Repeat("&", MaxMessageLength), false},
		{"Ampersands over limit", strings.Repeat("&", MaxMessageLength+1), "", true},
		{"Multibyte at limit", strings.Repeat("й", MaxMessageLength), strings.Repeat("й", MaxMessageLength), false},
		{"Multibyte over limit", strings.Repeat("й", MaxMessageLength+1), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MessageText(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("MessageText() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("MessageText() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGroupName(t *testing.T) {
	if _, err := GroupName("   "); err == nil {
		t.Error("expected error for blank name")
	}
	if _, err := GroupName(strings.Repeat("x", MaxGroupNameLength+1)); err == nil {
		t.Error("expected error for long name")
	}
	name, err := GroupName(" Friends ")
	if err != nil || name != "Friends" {
		t.Errorf("GroupName() = %q, %v", name, err)
	}
	name, err = GroupName("R&D <team>")
	if err != nil || name != "R&D <team>" {
		t.Errorf("GroupName() = %q, %v", name, err)
	}
	if _, err := GroupName(strings.Repeat("&", MaxGroupNameLength)); err != nil {
		t.Errorf("GroupName() rejected a name at the limit: %v", err)
	}
}

func TestRenderMarkdown(t *testing.T) {
	html, err := RenderMarkdown("- one\n- two\n\n<script>alert(1)</script>")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "<li>one</li>") || !strings.Contains(html, "<li>two</li>") {
		t.Errorf("expected list items, got %s", html)
	}
	if strings.Contains(html, "<script>") {
		t.Errorf("script survived rendering: %s", html)
	}
}
