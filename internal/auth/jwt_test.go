package auth

import "testing"

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret")

	token, err := svc.GenerateClientToken("window-1")
	if err != nil {
		t.Fatalf("GenerateClientToken() error = %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.ClientID != "window-1" {
		t.Errorf("client ID = %q, want window-1", claims.ClientID)
	}
	if claims.Role != "client" {
		t.Errorf("role = %q, want client", claims.Role)
	}
}

func TestTokenRejectedAcrossSecrets(t *testing.T) {
	issuer := NewTokenService("secret-a")
	verifier := NewTokenService("secret-b")

	token, err := issuer.GenerateClientToken("window-1")
	if err != nil {
		t.Fatalf("GenerateClientToken() error = %v", err)
	}

	if _, err := verifier.ValidateToken(token); err == nil {
		t.Error("token signed with a different secret validated")
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	svc := NewTokenService("test-secret")
	if _, err := svc.ValidateToken("not-a-token"); err == nil {
		t.Error("garbage token validated")
	}
}
