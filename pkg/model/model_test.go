package model

import (
	"strings"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "alice", nil},
		{"valid with numbers", "user123", nil},
		{"valid with underscore", "my_user", nil},
		{"valid with hyphen", "my-user", nil},
		{"valid mixed", "A-b_3", nil},
		{"valid max length", strings.Repeat("a", MaxUsernameLength), nil},
		{"empty", "", ErrUsernameEmpty},
		{"too long", strings.Repeat("a", MaxUsernameLength+1), ErrUsernameTooLong},
		{"contains space", "has space", ErrUsernameInvalidChars},
		{"contains dot", "user.name", ErrUsernameInvalidChars},
		{"contains @", "user@name", ErrUsernameInvalidChars},
		{"contains quote", "' OR '1'='1", ErrUsernameInvalidChars},
		{"unicode letter", "ñoño", ErrUsernameInvalidChars},
		{"newline", "user\nname", ErrUsernameInvalidChars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"plain text", "hello", nil},
		{"file placeholder", "FILE SENT: notes.txt", nil},
		{"max length", strings.Repeat("x", MessageMaxContentLength), nil},
		{"empty", "", ErrMessageContentEmpty},
		{"whitespace only", "  \t ", ErrMessageContentEmpty},
		{"too long", strings.Repeat("x", MessageMaxContentLength+1), ErrMessageContentTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Message{UserID: 1, Content: tt.content}
			if err := m.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
