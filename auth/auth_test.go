package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)
	password := "MonMotDePasseTr0pSûr!"

	hash, err := HashPassword(password)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))

	match, err := ComparePassword(password, hash)
	req.NoError(err)
	req.True(match)

	// Negative comparison (wrong password)
	match, err = ComparePassword("MauvaisMDP", hash)
	req.NoError(err)
	req.False(match)
}

func TestRegistrationValidation(t *testing.T) {
	req := require.New(t)
	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr bool
	}{
		{"Valid request", RegisterRequest{"alice", "secret123"}, false},
		{"Valid with underscore and hyphen", RegisterRequest{"al_ice-99", "secret123"}, false},
		{"Username too short", RegisterRequest{"al", "secret123"}, true},
		{"Username too long", RegisterRequest{strings.Repeat("a", 21), "secret123"}, true},
		{"Username with spaces", RegisterRequest{"al ice", "secret123"}, true},
		{"Username with colon", RegisterRequest{"alice:chat", "secret123"}, true},
		{"Password too short", RegisterRequest{"alice", "short"}, true},
		{"Password too long (edge case)", RegisterRequest{"alice", strings.Repeat("a", 73)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegister(tt.req)
			if tt.wantErr {
				req.Error(err)
			} else {
				req.NoError(err)
			}
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("a-test-only-signing-secret", time.Hour)

	token, err := issuer.Generate("uuid-123", "alice")
	req.NoError(err)
	req.NotEmpty(token)

	claims, err := issuer.Validate(token)
	req.NoError(err)
	req.Equal("uuid-123", claims.UserID)
	req.Equal("alice", claims.Username)

	// A token signed with another secret must be rejected
	other := NewTokenIssuer("a-different-secret", time.Hour)
	_, err = other.Validate(token)
	req.Error(err)
}

// BenchmarkHashPassword measures the CPU/RAM impact of Argon2id
func BenchmarkHashPassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = HashPassword("A-very-long-and-complex-password-for-bench-123!")
	}
}
