package model

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSession_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"future", now.Add(time.Minute), false},
		{"exactly now", now, true},
		{"past", now.Add(-time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{ID: "s", Email: "a@x.com", ExpiresAt: tt.expiresAt}
			if got := s.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	err := NewEmailTakenError()
	want := "[EMAIL_TAKEN] There is a User registered with this email already"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestAPIError_AsFromWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("register: %w", NewValidationError("missing name"))

	var apiErr *APIError
	if !errors.As(wrapped, &apiErr) {
		t.Fatal("expected errors.As to find *APIError")
	}
	if apiErr.Code != ErrCodeValidation {
		t.Errorf("Code = %q, want %q", apiErr.Code, ErrCodeValidation)
	}
}

func TestInvalidCredentialsError_IsGeneric(t *testing.T) {
	err := NewInvalidCredentialsError()
	if err.Category != "auth" {
		t.Errorf("Category = %q, want %q", err.Category, "auth")
	}
	if err.Message != "Wrong credentials" {
		t.Errorf("Message = %q, want %q", err.Message, "Wrong credentials")
	}
}
