package security

import (
	"encoding/base64"
	"testing"
)

func TestGenerateRefreshToken(t *testing.T) {
	a, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	b, _ := GenerateRefreshToken()
	if a == b {
		t.Fatal("two refresh tokens are equal")
	}
	raw, err := base64.RawURLEncoding.DecodeString(a)
	if err != nil {
		t.Fatalf("token is not base64url: %v", err)
	}
	if len(raw) != refreshTokenBytes {
		t.Errorf("decoded length = %d, want %d", len(raw), refreshTokenBytes)
	}
}

func TestHashRefreshToken_Consistent(t *testing.T) {
	token := "test-refresh-token-123"
	hash1 := HashRefreshToken(token)
	hash2 := HashRefreshToken(token)

	if hash1 != hash2 {
		t.Errorf("HashRefreshToken not consistent: hash1 = %q, hash2 = %q", hash1, hash2)
	}
	if len(hash1) != 64 {
		t.Errorf("hash length = %d, want 64 (SHA-256 hex)", len(hash1))
	}
	if hash1 == token {
		t.Error("hash equals raw token")
	}
}

func TestHashRefreshToken_DifferentTokens(t *testing.T) {
	if HashRefreshToken("token-1") == HashRefreshToken("token-2") {
		t.Error("HashRefreshToken produced same hash for different tokens")
	}
}

func TestTokenHashEqual(t *testing.T) {
	stored := HashRefreshToken("test-refresh-token-456")

	if !TokenHashEqual(HashRefreshToken("test-refresh-token-456"), stored) {
		t.Error("TokenHashEqual should match the same token's hash")
	}
	if TokenHashEqual(HashRefreshToken("other-token"), stored) {
		t.Error("TokenHashEqual matched a different token")
	}
	if TokenHashEqual(stored, "") {
		t.Error("TokenHashEqual matched an empty stored hash")
	}
}
