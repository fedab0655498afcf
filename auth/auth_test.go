package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestTokens(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		want    string
		wantErr error
	}{
		{
			name: "OK",
			token: func(t *testing.T) string {
				return mustSign(t, NewTokens("secret", 0), "alice", now)
			},
			want: "alice",
		},
		{
			name: "NotExpired",
			token: func(t *testing.T) string {
				return mustSign(t, NewTokens("secret", time.Hour), "alice", now)
			},
			want: "alice",
		},
		{
			name: "Expired",
			token: func(t *testing.T) string {
				return mustSign(t, NewTokens("secret", time.Minute), "alice", now.Add(-time.Hour))
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "WrongSecret",
			token: func(t *testing.T) string {
				return mustSign(t, NewTokens("other", 0), "alice", now)
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "WrongAlgorithm",
			token: func(t *testing.T) string {
				token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{Username: "alice"}).SignedString([]byte("secret"))
				if err != nil {
					t.Fatal(err)
				}
				return token
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "NoUsername",
			token: func(t *testing.T) string {
				return mustSign(t, NewTokens("secret", 0), "", now)
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "Garbage",
			token: func(t *testing.T) string {
				return "garbage"
			},
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewTokens("secret", 0).Verify(tt.token(t))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Got error %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Got username %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPassword(t *testing.T) {
	if _, err := HashPassword("short", bcrypt.MinCost); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("Got error %v, want %v", err, ErrPasswordTooShort)
	}

	hash, err := HashPassword("secret1", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if hash == "secret1" {
		t.Fatal("Password was stored in plain text")
	}
	if err := ComparePassword(hash, "secret1"); err != nil {
		t.Errorf("Correct password rejected: %v", err)
	}
	if err := ComparePassword(hash, "secret2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Got error %v, want %v", err, ErrInvalidCredentials)
	}
}

func mustSign(t *testing.T, tokens *Tokens, username string, now time.Time) string {
	t.Helper()
	token, err := tokens.Sign(username, now)
	if err != nil {
		t.Fatal(err)
	}
	return token
}
