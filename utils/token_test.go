package utils

import (
	"testing"
)

func TestJwtRoundTrip(t *testing.T) {
	token, err := JwtGenerate(42, "mya", "Donor")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	claims, err := JwtValidate(token)
	if err != nil {
		t.Fatalf("JwtValidate: %v", err)
	}
	if claims.UserId != 42 || claims.Username != "mya" || claims.Role != "Donor" {
		t.Fatalf("claims round trip wrong: %+v", claims)
	}
	if claims.ExpiresAt <= claims.IssuedAt {
		t.Fatalf("token must expire after issuance: %+v", claims.StandardClaims)
	}
}

func TestJwtValidateRejectsTampering(t *testing.T) {
	token, err := JwtGenerate(7, "root", "Admin")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	if _, err := JwtValidate(token + "x"); err == nil {
		t.Fatal("tampered token must be rejected")
	}
	if _, err := JwtValidate("not-a-token"); err == nil {
		t.Fatal("garbage token must be rejected")
	}
	if _, err := JwtValidate(""); err == nil {
		t.Fatal("empty token must be rejected")
	}
}
