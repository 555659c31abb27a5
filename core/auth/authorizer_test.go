package auth

import "testing"

func TestAuthorizerMatrix(t *testing.T) {
	a, err := NewAuthorizer()
	if err != nil {
		t.Fatalf("authorizer: %v", err)
	}
	for _, have := range Roles {
		for _, required := range Roles {
			want := have == RoleAdmin || have == required
			if got := a.Allowed(have, required); got != want {
				t.Fatalf("Allowed(%s, %s)=%v want %v", have, required, got, want)
			}
		}
	}
	if a.Allowed("root", RoleUser) {
		t.Fatalf("unknown role must never be allowed")
	}
	if a.Allowed(RoleAdmin, "root") {
		t.Fatalf("unknown requirement must never be satisfied")
	}
}

func TestParseRole(t *testing.T) {
	for _, raw := range []string{"user", "Admin", " editor ", "ANALYST"} {
		if _, err := ParseRole(raw); err != nil {
			t.Fatalf("ParseRole(%q): %v", raw, err)
		}
	}
	for _, raw := range []string{"", "root", "administrator", "read_only"} {
		if _, err := ParseRole(raw); err != ErrInvalidRole {
			t.Fatalf("ParseRole(%q) expected ErrInvalidRole, got %v", raw, err)
		}
	}
}
