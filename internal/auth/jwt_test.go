package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testIdentity = "0:abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"

func TestGenerateAndParseJWT(t *testing.T) {
	token, err := GenerateJWT("secret", testIdentity, "testnet", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	claims, err := ParseJWT("secret", token)
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.Identity != testIdentity {
		t.Errorf("Identity = %q, want %q", claims.Identity, testIdentity)
	}
	if claims.Subject != testIdentity {
		t.Errorf("Subject = %q, want %q", claims.Subject, testIdentity)
	}
	if claims.Network != "testnet" {
		t.Errorf("Network = %q, want testnet", claims.Network)
	}
	if claims.ID == "" {
		t.Error("expected token id to be set")
	}
}

func TestGenerateJWT_EmptyIdentity(t *testing.T) {
	if _, err := GenerateJWT("secret", "", "", time.Hour); err == nil {
		t.Fatal("expected error for empty identity")
	}
}

func TestParseJWT_Rejects(t *testing.T) {
	valid, err := GenerateJWT("secret", testIdentity, "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defaulted, err := GenerateJWT("secret", testIdentity, "", -time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Identity: testIdentity,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	foreignToken, err := foreign.SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	noIdentity := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	noIdentityToken, err := noIdentity.SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other", valid},
		{"garbage", "secret", "not-a-token"},
		{"foreign issuer", "secret", foreignToken},
		{"no identity", "secret", noIdentityToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJWT(tt.secret, tt.token); err == nil {
				t.Errorf("ParseJWT(%s) = nil error, want error", tt.name)
			}
		})
	}

	// expiration <= 0 falls back to the default lifetime
	if _, err := ParseJWT("secret", defaulted); err != nil {
		t.Errorf("ParseJWT(default expiration) = %v, want nil", err)
	}
}
