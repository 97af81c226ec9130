package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWTResolver_ValidToken(t *testing.T) {
	r := NewJWTResolver("test-secret")
	token := signToken(t, "test-secret", Claims{
		AccountID: 7,
		Nickname:  "Fox",
		Team:      "Hawks",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	id, err := r.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if id == nil {
		t.Fatal("expected identity, got nil")
	}
	if id.AccountID != 7 || id.Nickname != "Fox" || id.Team != "Hawks" {
		t.Errorf("unexpected identity: %+v", id)
	}
	if id.Moderator {
		t.Error("moderator should default to false")
	}
}

func TestJWTResolver_ExpiredTokenIsAnonymous(t *testing.T) {
	r := NewJWTResolver("test-secret")
	token := signToken(t, "test-secret", Claims{
		AccountID: 7,
		Nickname:  "Fox",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	id, err := r.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if id != nil {
		t.Errorf("expired token should resolve to nil, got %+v", id)
	}
}

func TestJWTResolver_WrongSecretIsAnonymous(t *testing.T) {
	r := NewJWTResolver("right-secret")
	token := signToken(t, "wrong-secret", Claims{AccountID: 7, Nickname: "Fox"})

	id, err := r.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if id != nil {
		t.Error("token signed with wrong secret should resolve to nil")
	}
}

func TestJWTResolver_EmptyAndGarbage(t *testing.T) {
	r := NewJWTResolver("test-secret")

	for _, cred := range []string{"", "not-a-jwt", "a.b.c"} {
		id, err := r.Resolve(context.Background(), cred)
		if err != nil {
			t.Fatalf("Resolve(%q) error: %v", cred, err)
		}
		if id != nil {
			t.Errorf("Resolve(%q) should be nil", cred)
		}
	}
}

func TestStaticResolver(t *testing.T) {
	r := StaticResolver{"tok": {AccountID: 9, Nickname: "Bee"}}

	id, err := r.Resolve(context.Background(), "tok")
	if err != nil || id == nil || id.AccountID != 9 {
		t.Fatalf("expected account 9, got %+v err=%v", id, err)
	}

	id, err = r.Resolve(context.Background(), "other")
	if err != nil || id != nil {
		t.Fatalf("unknown token should be nil, got %+v err=%v", id, err)
	}
}
