package utils

import (
	"strings"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"alice", false},
		{"abc", false},
		{"user42", false},
		{strings.Repeat("a", 25), false},
		{"ab", true},
		{strings.Repeat("a", 26), true},
		{"bad name", true},
		{"bad-name", true},
		{"üser", true},
		{"", true},
	}
	for _, tc := range cases {
		err := ValidateUsername(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ValidateUsername(%q) err=%v wantErr=%v", tc.in, err, tc.wantErr)
		}
	}
}

func TestValidatePasswordBounds(t *testing.T) {
	if err := ValidatePassword("12345"); err != ErrPasswordTooShort {
		t.Fatalf("expected too short, got %v", err)
	}
	if err := ValidatePassword("123456"); err != nil {
		t.Fatalf("expected ok at minimum, got %v", err)
	}
	if err := ValidatePassword(strings.Repeat("x", PasswordMaxLength)); err != nil {
		t.Fatalf("expected ok at maximum, got %v", err)
	}
	if err := ValidatePassword(strings.Repeat("x", PasswordMaxLength+1)); err != ErrPasswordTooLong {
		t.Fatalf("expected too long, got %v", err)
	}
}

func TestNormalizeUsername(t *testing.T) {
	if got := NormalizeUsername("  Alice "); got != "alice" {
		t.Fatalf("unexpected normalization %q", got)
	}
}

func TestRandStringLength(t *testing.T) {
	for _, n := range []int{1, 7, 16, 33} {
		s, err := RandString(n)
		if err != nil {
			t.Fatalf("rand: %v", err)
		}
		if len(s) != n {
			t.Fatalf("expected length %d, got %d", n, len(s))
		}
	}
}
