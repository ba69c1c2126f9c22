package utils

import (
	"strings"
	"testing"

	"databender/config"
	"databender/models"
)

func TestJWTRoundTrip(t *testing.T) {
	config.AppConfig.EncryptionKey = "test-signing-key"

	user := &models.User{TokenVersion: 3}
	user.ID = 42

	access, refresh, err := GenerateJWTToken(user)
	if err != nil {
		t.Fatalf("GenerateJWTToken error: %v", err)
	}
	if access == refresh {
		t.Error("access and refresh tokens are identical")
	}

	for _, token := range []string{access, refresh} {
		claims, err := ParseJWTToken(token)
		if err != nil {
			t.Fatalf("ParseJWTToken error: %v", err)
		}
		if claims.UserID != 42 {
			t.Errorf("user id = %d, want 42", claims.UserID)
		}
		if claims.TokenVersion != 3 {
			t.Errorf("token version = %d, want 3", claims.TokenVersion)
		}
	}
}

func TestParseJWTTokenTampered(t *testing.T) {
	config.AppConfig.EncryptionKey = "test-signing-key"

	user := &models.User{}
	user.ID = 7
	access, _, err := GenerateJWTToken(user)
	if err != nil {
		t.Fatalf("GenerateJWTToken error: %v", err)
	}

	// Flip the signature
	parts := strings.Split(access, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := ParseJWTToken(tampered); err == nil {
		t.Error("tampered token was accepted")
	}

	if _, err := ParseJWTToken("not.a.token"); err == nil {
		t.Error("garbage token was accepted")
	}
}
