package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

type AuthKind string

const (
	AuthNone   AuthKind = "none"
	AuthBearer AuthKind = "bearer"
	AuthCookie AuthKind = "cookie"
)

// TokenProvider returns a bearer token for one call. An empty token means
// "no token available"; the call then proceeds unauthenticated unless
// Config.StrictAuth is set.
type TokenProvider func(ctx context.Context) (string, error)

// Auth describes how credentials are attached to a request.
//
// Only the fields relevant to Kind are consulted: Token/TokenProvider for
// AuthBearer and Cookie for AuthCookie.
type Auth struct {
	Kind          AuthKind
	Token         string
	TokenProvider TokenProvider

	// Cookie is forwarded verbatim as the Cookie header. It exists for callers
	// that cannot rely on the cookie jar.
	Cookie string
}

// mergeAuth overlays override onto def field by field; set fields win.
func mergeAuth(def Auth, override *Auth) Auth {
	out := def
	if override == nil {
		return out
	}
	if override.Kind != "" {
		out.Kind = override.Kind
	}
	if override.Token != "" {
		out.Token = override.Token
	}
	if override.TokenProvider != nil {
		out.TokenProvider = override.TokenProvider
	}
	if override.Cookie != "" {
		out.Cookie = override.Cookie
	}
	return out
}

func (a Auth) kind() AuthKind {
	if a.Kind == "" {
		return AuthNone
	}
	return a.Kind
}

// credentials is the concrete material resolved for one call.
type credentials struct {
	kind   AuthKind
	token  string
	cookie string
}

func resolveAuth(ctx context.Context, a Auth) (credentials, error) {
	cr := credentials{kind: a.kind()}
	switch cr.kind {
	case AuthNone:
	case AuthBearer:
		cr.token = strings.TrimSpace(a.Token)
		if cr.token == "" && a.TokenProvider != nil {
			tok, err := a.TokenProvider(ctx)
			if err != nil {
				return cr, fmt.Errorf("httpx: token provider: %w", err)
			}
			cr.token = strings.TrimSpace(tok)
		}
	case AuthCookie:
		cr.cookie = strings.TrimSpace(a.Cookie)
	default:
		return cr, &ConfigError{Op: "resolve auth", Err: fmt.Errorf("unknown auth kind %q", a.Kind)}
	}
	return cr, nil
}

func (cr credentials) apply(h http.Header) {
	switch {
	case cr.kind == AuthBearer && cr.token != "":
		h.Set("Authorization", "Bearer "+cr.token)
	case cr.kind == AuthCookie && cr.cookie != "":
		h.Set("Cookie", cr.cookie)
	}
}

// StaticToken returns a TokenProvider that always yields token.
func StaticToken(token string) TokenProvider {
	return func(context.Context) (string, error) { return token, nil }
}

// OAuth2TokenProvider adapts an oauth2.TokenSource. Wrap the source with
// oauth2.ReuseTokenSource to avoid fetching a new token on every call.
func OAuth2TokenProvider(ts oauth2.TokenSource) TokenProvider {
	return func(ctx context.Context) (string, error) {
		if ts == nil {
			return "", errors.New("nil token source")
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		tok, err := ts.Token()
		if err != nil {
			return "", err
		}
		if !tok.Valid() {
			return "", nil
		}
		return tok.AccessToken, nil
	}
}
