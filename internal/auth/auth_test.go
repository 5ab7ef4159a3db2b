package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"slices"
)

func withSecret(t *testing.T, value string) {
	t.Helper()
	t.Setenv(secretEnvVariable, value)
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidate(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken("alice", []string{"Admin", "member", "admin"}, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "alice" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Issuer != issuer {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
	if len(claims.Roles) != 2 || !slices.Contains(claims.Roles, "admin") || !slices.Contains(claims.Roles, "member") {
		t.Fatalf("roles were not normalised: %v", claims.Roles)
	}
}

func TestParseRejectsTamperedAndForeignTokens(t *testing.T) {
	withSecret(t, "test-secret")
	token, err := GenerateToken("alice", nil, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := ParseAndValidate(token + "x"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for tampered token, got %v", err)
	}
	if _, err := ParseAndValidate("   "); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for blank token, got %v", err)
	}

	withSecret(t, "other-secret")
	if _, err := ParseAndValidate(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for foreign secret, got %v", err)
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	withSecret(t, "test-secret")
	if _, err := GenerateToken(" ", nil, time.Minute); err == nil {
		t.Fatal("expected error for empty account")
	}
	if _, err := GenerateToken("alice", nil, 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestMissingSecret(t *testing.T) {
	withSecret(t, "")
	_, err := GenerateToken("alice", nil, time.Minute)
	if err == nil || !strings.Contains(err.Error(), "secret") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithUser(ctx, "user-7", []string{"Admin", "Admin", "viewer"})
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "user-7" {
		t.Fatalf("unexpected user id: %s, ok=%v", id, ok)
	}
	roles := RolesFromContext(ctx)
	if len(roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", roles)
	}
	if !HasRole(ctx, "viewer") || !HasRole(ctx, "admin") {
		t.Fatalf("HasRole missing expected roles: %v", roles)
	}
	if HasRole(ctx, "operator") {
		t.Fatalf("unexpected role found")
	}
}

func TestAuthorities(t *testing.T) {
	if got := Authorities(context.Background(), "ednadac"); got != nil {
		t.Fatalf("expected no authorities, got %v", got)
	}

	member := ContextWithUser(context.Background(), "alice", []string{"member"})
	if got := Authorities(member, "ednadac"); !slices.Equal(got, []string{"alice"}) {
		t.Fatalf("unexpected member authorities: %v", got)
	}

	admin := ContextWithUser(context.Background(), "ops", []string{RoleAdmin})
	if got := Authorities(admin, "ednadac"); !slices.Equal(got, []string{"ops", "ednadac"}) {
		t.Fatalf("unexpected admin authorities: %v", got)
	}

	self := ContextWithUser(context.Background(), "ednadac", []string{RoleAdmin})
	if got := Authorities(self, "ednadac"); !slices.Equal(got, []string{"ednadac"}) {
		t.Fatalf("unexpected contract authorities: %v", got)
	}
}
