package utils

import "testing"

func TestJwtRoundTrip(t *testing.T) {
	token, err := JwtGenerate(42, "opsUser", "ADMIN")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	claims, err := JwtValidate(token)
	if err != nil {
		t.Fatalf("JwtValidate: %v", err)
	}
	if claims.ID != 42 {
		t.Errorf("claims.ID = %d, want 42", claims.ID)
	}
	if claims.Username != "opsUser" {
		t.Errorf("claims.Username = %q, want opsUser", claims.Username)
	}
	if claims.Role != "ADMIN" {
		t.Errorf("claims.Role = %q, want ADMIN", claims.Role)
	}
}

func TestJwtValidateRejectsTampered(t *testing.T) {
	token, err := JwtGenerate(1, "opsUser", "OPERATOR")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	if _, err := JwtValidate(token + "x"); err == nil {
		t.Fatal("expected tampered token to fail validation")
	}
}
