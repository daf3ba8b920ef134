package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenCookieName  = "dicebot_token"
	tokenQueryParam  = "token"
	nameQueryParam   = "name"
	localeQueryParam = "locale"

	anonymousName = "anonymous"
	maxNameRunes  = 64
)

var errTokenInvalid = errors.New("chat token is invalid")

// identity is who a websocket connection speaks as.
type identity struct {
	ID     string
	Name   string
	Locale string
}

// authenticator resolves a bearer token into an identity.
type authenticator interface {
	Authenticate(token string) (identity, error)
}

// tokenAuthenticator verifies HS256 tokens signed with a shared secret.
type tokenAuthenticator struct {
	secret []byte
	now    func() time.Time
}

type chatClaims struct {
	jwt.RegisteredClaims
	Nickname string `json:"nickname"`
	Locale   string `json:"locale"`
}

// newTokenAuthenticator returns nil when secret is blank, which leaves the
// socket anonymous.
func newTokenAuthenticator(secret string) *tokenAuthenticator {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &tokenAuthenticator{secret: []byte(secret), now: time.Now}
}

func (a *tokenAuthenticator) Authenticate(token string) (identity, error) {
	if a == nil || len(a.secret) == 0 {
		return identity{}, errors.New("token auth is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return identity{}, fmt.Errorf("%w: token is required", errTokenInvalid)
	}

	var claims chatClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return identity{}, fmt.Errorf("%w: %v", errTokenInvalid, err)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return identity{}, fmt.Errorf("%w: subject is required", errTokenInvalid)
	}
	name := sanitizeName(claims.Nickname)
	if name == "" {
		name = sanitizeName(subject)
	}
	return identity{
		ID:     subject,
		Name:   name,
		Locale: strings.TrimSpace(claims.Locale),
	}, nil
}

// tokenFromRequest reads the cookie first, then the query parameter used by
// clients that cannot set cookies on a websocket upgrade.
func tokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if cookie, err := r.Cookie(tokenCookieName); err == nil {
		if token := strings.TrimSpace(cookie.Value); token != "" {
			return token
		}
	}
	return strings.TrimSpace(r.URL.Query().Get(tokenQueryParam))
}

func anonymousIdentity(r *http.Request) identity {
	name := ""
	if r != nil {
		name = sanitizeName(r.URL.Query().Get(nameQueryParam))
	}
	if name == "" {
		name = anonymousName
	}
	return identity{ID: "anon:" + name, Name: name}
}

// requestLocale picks the connection locale: token claim, query parameter,
// then Accept-Language.
func requestLocale(r *http.Request, ident identity) string {
	if ident.Locale != "" {
		return ident.Locale
	}
	if r == nil {
		return ""
	}
	if locale := strings.TrimSpace(r.URL.Query().Get(localeQueryParam)); locale != "" {
		return locale
	}
	return strings.TrimSpace(r.Header.Get("Accept-Language"))
}

// sanitizeName drops control characters and caps the display name length.
func sanitizeName(name string) string {
	var b strings.Builder
	count := 0
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsControl(r) {
			continue
		}
		if count == maxNameRunes {
			break
		}
		b.WriteRune(r)
		count++
	}
	return strings.TrimSpace(b.String())
}
