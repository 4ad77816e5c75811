package auth

import (
	"slices"
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	t.Setenv("DESKBOT_AUTH_SECRET", "test-secret")
	ResetSecretCache()
	t.Cleanup(ResetSecretCache)

	token, err := GenerateToken("op-42", []string{"Admin", "viewer", "admin"}, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "op-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if !slices.Contains(claims.Roles, "admin") || !slices.Contains(claims.Roles, "viewer") {
		t.Fatalf("roles were not preserved: %v", claims.Roles)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("roles were not deduped: %v", claims.Roles)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Setenv("DESKBOT_AUTH_SECRET", "test-secret")
	ResetSecretCache()
	t.Cleanup(ResetSecretCache)

	for _, token := range []string{"", "not.a.jwt", "eyJhbGciOiJub25lIn0.e30."} {
		if _, err := ParseAndValidate(token); err == nil {
			t.Fatalf("expected failure for %q", token)
		}
	}
}

func TestMissingSecret(t *testing.T) {
	t.Setenv("DESKBOT_AUTH_SECRET", "")
	ResetSecretCache()
	t.Cleanup(ResetSecretCache)

	if _, err := GenerateToken("op-1", []string{"admin"}, time.Minute); err == nil {
		t.Fatal("expected error without configured secret")
	}
}

func TestPermissions(t *testing.T) {
	admin := Principal{UserID: "a", Roles: []string{"admin"}}
	viewer := Principal{UserID: "v", Roles: []string{"viewer"}}
	nobody := Principal{UserID: "n"}

	if !admin.Allowed(PermMembershipsRevoke) {
		t.Fatal("admin should revoke")
	}
	if viewer.Allowed(PermMembershipsRevoke) {
		t.Fatal("viewer must not revoke")
	}
	if !viewer.Allowed(PermTicketsRead) {
		t.Fatal("viewer should read tickets")
	}
	if nobody.Allowed(PermMembershipsRead) {
		t.Fatal("principal without roles should have no permissions")
	}
}
