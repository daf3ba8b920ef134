package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims chatClaims, subject string) string {
	t.Helper()
	claims.Subject = subject
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestNewTokenAuthenticatorBlankSecret(t *testing.T) {
	if auth := newTokenAuthenticator("  "); auth != nil {
		t.Fatalf("expected nil authenticator, got %+v", auth)
	}
}

func TestTokenAuthenticatorResolvesIdentity(t *testing.T) {
	auth := newTokenAuthenticator("secret")

	tests := []struct {
		name   string
		claims chatClaims
		want   identity
	}{
		{
			name:   "nickname",
			claims: chatClaims{Nickname: "Grace", Locale: "pt-BR"},
			want:   identity{ID: "user-1", Name: "Grace", Locale: "pt-BR"},
		},
		{
			name:   "subject fallback",
			claims: chatClaims{Nickname: "   "},
			want:   identity{ID: "user-1", Name: "user-1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := auth.Authenticate(signToken(t, "secret", tt.claims, "user-1"))
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("Authenticate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTokenAuthenticatorRejectsInvalidTokens(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	auth := newTokenAuthenticator("secret")
	auth.now = func() time.Time { return now }

	expired := chatClaims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))}}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, chatClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: signToken(t, "other", chatClaims{}, "user-1")},
		{name: "missing subject", token: signToken(t, "secret", chatClaims{Nickname: "Grace"}, "")},
		{name: "expired", token: signToken(t, "secret", expired, "user-1")},
		{name: "unsigned", token: none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Authenticate(tt.token)
			if !errors.Is(err, errTokenInvalid) {
				t.Fatalf("Authenticate() error = %v, want %v", err, errTokenInvalid)
			}
		})
	}
}

func TestTokenFromRequestPrefersCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	if got := tokenFromRequest(req); got != "from-query" {
		t.Fatalf("token = %q, want %q", got, "from-query")
	}

	req.AddCookie(&http.Cookie{Name: tokenCookieName, Value: "from-cookie"})
	if got := tokenFromRequest(req); got != "from-cookie" {
		t.Fatalf("token = %q, want %q", got, "from-cookie")
	}
}

func TestAnonymousIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if got := anonymousIdentity(req); got.Name != anonymousName {
		t.Fatalf("name = %q, want %q", got.Name, anonymousName)
	}

	long := strings.Repeat("x", maxNameRunes+10)
	req = httptest.NewRequest(http.MethodGet, "/ws?name="+long, nil)
	if got := anonymousIdentity(req); got.Name != long[:maxNameRunes] {
		t.Fatalf("name length = %d, want %d", len(got.Name), maxNameRunes)
	}
}

func TestRequestLocaleOrder(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?locale=pt-BR", nil)
	req.Header.Set("Accept-Language", "en-GB")

	if got := requestLocale(req, identity{Locale: "en-US"}); got != "en-US" {
		t.Fatalf("claim locale = %q, want %q", got, "en-US")
	}
	if got := requestLocale(req, identity{}); got != "pt-BR" {
		t.Fatalf("query locale = %q, want %q", got, "pt-BR")
	}
	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Accept-Language", "pt;q=0.9")
	if got := requestLocale(req, identity{}); got != "pt;q=0.9" {
		t.Fatalf("header locale = %q, want %q", got, "pt;q=0.9")
	}
}
