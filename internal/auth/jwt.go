// AngelaMos | 2026
// jwt.go

package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/carterperez-dev/assignly/internal/config"
	"github.com/carterperez-dev/assignly/internal/core"
	"github.com/carterperez-dev/assignly/internal/middleware"
)

const jwksRefreshInterval = 5 * time.Minute

// Verifier checks access tokens minted by the hosted auth provider. It
// either shares the provider's HS256 secret or trusts its published JWKS.
type Verifier struct {
	config config.AuthConfig
	secret []byte

	mu        sync.RWMutex
	keySet    jwk.Set
	fetchedAt time.Time
	fetch     func(ctx context.Context, url string) (jwk.Set, error)
}

func NewVerifier(ctx context.Context, cfg config.AuthConfig) (*Verifier, error) {
	v := &Verifier{
		config: cfg,
		fetch: func(ctx context.Context, url string) (jwk.Set, error) {
			return jwk.Fetch(ctx, url)
		},
	}

	if cfg.JWTSecret != "" {
		v.secret = []byte(cfg.JWTSecret)
		return v, nil
	}

	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}

	return v, nil
}

// Mode names the verification strategy for startup logging.
func (v *Verifier) Mode() string {
	if v.secret != nil {
		return "HS256"
	}
	return "JWKS"
}

func (v *Verifier) VerifyAccessToken(
	ctx context.Context,
	tokenString string,
) (*middleware.AccessTokenClaims, error) {
	token, err := v.parse(tokenString)
	if err != nil && v.secret == nil && !isTokenExpiredError(err) &&
		v.keysStale() {
		if refreshErr := v.refreshKeys(ctx); refreshErr == nil {
			token, err = v.parse(tokenString)
		}
	}
	if err != nil {
		if isTokenExpiredError(err) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf(
			"verify token: missing subject: %w",
			core.ErrTokenInvalid,
		)
	}

	claims := &middleware.AccessTokenClaims{UserID: subject}

	//nolint:errcheck // email is optional for anonymous sessions
	_ = token.Get("email", &claims.Email)
	//nolint:errcheck // falls back to app_metadata below
	_ = token.Get("role", &claims.Role)

	var appMetadata map[string]any
	if err := token.Get("app_metadata", &appMetadata); err == nil {
		if role, ok := appMetadata["role"].(string); ok &&
			role == middleware.RoleAdmin {
			claims.Role = middleware.RoleAdmin
		}
	}

	return claims, nil
}

func (v *Verifier) parse(tokenString string) (jwt.Token, error) {
	opts := []jwt.ParseOption{
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(30 * time.Second),
	}

	if v.secret != nil {
		opts = append(opts, jwt.WithKey(jwa.HS256(), v.secret))
	} else {
		v.mu.RLock()
		keySet := v.keySet
		v.mu.RUnlock()
		opts = append(opts, jwt.WithKeySet(keySet))
	}

	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	return jwt.Parse([]byte(tokenString), opts...)
}

func (v *Verifier) keysStale() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return time.Since(v.fetchedAt) > jwksRefreshInterval
}

func (v *Verifier) refreshKeys(ctx context.Context) error {
	keySet, err := v.fetch(ctx, v.config.JWKSURL)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}

	v.mu.Lock()
	v.keySet = keySet
	v.fetchedAt = time.Now()
	v.mu.Unlock()

	return nil
}

func isTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "exp") &&
		strings.Contains(errStr, "not satisfied")
}
