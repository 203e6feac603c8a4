package security

import "time"

// NewTestTokenProvider returns a TokenProvider with a generated ES256 key,
// issuer "test-issuer", audience "test-audience" and a 15 minute access TTL.
// For tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	key, err := GenerateSigningKey()
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(key, key.Public(), "test-issuer", "test-audience", 15*time.Minute), nil
}
