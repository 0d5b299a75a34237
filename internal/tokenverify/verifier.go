package tokenverify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	accesserrors "github.com/quantedge/access-layer/infrastructure/errors"
	"github.com/quantedge/access-layer/infrastructure/resilience"
)

// Claims is the projected claim set returned by Verify and UserInfo.
type Claims struct {
	Subject   string   `json:"subject"`
	TenantID  string   `json:"tenant"`
	Roles     []string `json:"roles"`
	Email     string   `json:"email,omitempty"`
	Username  string   `json:"username,omitempty"`
	TokenType string   `json:"token_type"`
	ID        string   `json:"jti"`
	jwt.RegisteredClaims
}

// UserInfo is the subset of Claims the /auth/verify and /auth/refresh
// handlers surface to callers.
type UserInfo struct {
	Subject  string   `json:"subject"`
	Tenant   string   `json:"tenant"`
	Roles    []string `json:"roles"`
	Email    string   `json:"email,omitempty"`
	Username string   `json:"username,omitempty"`
}

// TokenPair is an access+refresh token pair minted by Refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Config configures a Verifier.
type Config struct {
	JWKSURL          string
	AllowedAlgs      []string
	JWKSCacheTTL     time.Duration
	HMACSecret       []byte
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	HTTPClient       *http.Client
	CircuitBreaker   *resilience.CircuitBreaker
}

func (c Config) withDefaults() Config {
	if c.JWKSCacheTTL <= 0 {
		c.JWKSCacheTTL = time.Hour
	}
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = 15 * time.Minute
	}
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = 24 * time.Hour
	}
	if len(c.AllowedAlgs) == 0 {
		c.AllowedAlgs = []string{"RS256", "HS256"}
	}
	return c
}

// Verifier implements C1: it verifies bearer tokens against a JWKS endpoint
// (for externally-issued tokens) or an HMAC secret (for tokens this service
// minted itself via Refresh), and mints fresh access+refresh pairs.
type Verifier struct {
	cfg      Config
	jwks     *jwksCache
	denylist *denylist
}

// New builds a Verifier. The JWKS document is fetched lazily on first use.
func New(cfg Config) *Verifier {
	cfg = cfg.withDefaults()
	return &Verifier{
		cfg:      cfg,
		jwks:     newJWKSCache(cfg.JWKSURL, cfg.JWKSCacheTTL, cfg.HTTPClient, cfg.CircuitBreaker),
		denylist: newDenylist(),
	}
}

func (v *Verifier) algAllowed(alg string) bool {
	for _, a := range v.cfg.AllowedAlgs {
		if a == alg {
			return true
		}
	}
	return false
}

// Verify strips an optional "Bearer " prefix, parses and validates the
// token, and returns the projected claim set. Errors map to the stable
// failure tags documented in §4.1: missing-kid, unknown-kid, bad-signature,
// expired, not-yet-valid, malformed.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	tokenString := strings.TrimPrefix(strings.TrimSpace(rawToken), "Bearer ")
	if tokenString == "" {
		return nil, accesserrors.Unauthorized("missing bearer token")
	}

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods(v.cfg.AllowedAlgs))

	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		alg, _ := t.Header["alg"].(string)
		if !v.algAllowed(alg) {
			return nil, fmt.Errorf("malformed: algorithm %q not in allow-list", alg)
		}

		switch alg {
		case "HS256", "HS384", "HS512":
			if len(v.cfg.HMACSecret) == 0 {
				return nil, fmt.Errorf("malformed: no HMAC secret configured")
			}
			return v.cfg.HMACSecret, nil
		default:
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, fmt.Errorf("missing-kid")
			}
			key, err := v.jwks.lookup(ctx, kid)
			if err != nil {
				return nil, err
			}
			return key, nil
		}
	})

	if err != nil {
		return nil, classifyVerifyError(err)
	}
	if !token.Valid {
		return nil, accesserrors.InvalidToken(fmt.Errorf("malformed: token failed validation"))
	}

	if claims.ID != "" && v.denylist.isRevoked(claims.ID) {
		return nil, accesserrors.InvalidToken(fmt.Errorf("token has been revoked"))
	}

	return claims, nil
}

func classifyVerifyError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "jwks-unavailable"):
		return accesserrors.JWKSUnavailable(err)
	case strings.Contains(msg, "unknown-kid"):
		return accesserrors.InvalidToken(fmt.Errorf("unknown-kid: %w", err))
	case strings.Contains(msg, "missing-kid"):
		return accesserrors.InvalidToken(fmt.Errorf("missing-kid: %w", err))
	case strings.Contains(msg, "token is expired"), strings.Contains(msg, "exp"):
		return accesserrors.TokenExpired()
	case strings.Contains(msg, "token is not valid yet"), strings.Contains(msg, "nbf"):
		return accesserrors.InvalidToken(fmt.Errorf("not-yet-valid: %w", err))
	case strings.Contains(msg, "signature is invalid"):
		return accesserrors.InvalidSignature(err)
	default:
		return accesserrors.InvalidToken(fmt.Errorf("malformed: %w", err))
	}
}

// UserInfoFromToken verifies rawToken then projects it into a UserInfo.
// Tenant is read from the well-known "tenant" claim; roles are unioned
// from realm_access and resource_access claim trees when present (handled
// by the caller populating Claims.Roles at mint time, or by an IdP that
// already flattens roles into the top-level "roles" claim).
func (v *Verifier) UserInfoFromToken(ctx context.Context, rawToken string) (*UserInfo, error) {
	claims, err := v.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	return &UserInfo{
		Subject:  claims.Subject,
		Tenant:   claims.TenantID,
		Roles:    claims.Roles,
		Email:    claims.Email,
		Username: claims.Username,
	}, nil
}

// Refresh verifies refreshToken, asserts its token-type claim is "refresh",
// and mints a fresh access+refresh pair for the same subject.
func (v *Verifier) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := v.Verify(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != "refresh" {
		return nil, accesserrors.InvalidToken(fmt.Errorf("malformed: expected a refresh token"))
	}

	if claims.ID != "" {
		v.denylist.revoke(claims.ID, time.Until(claims.ExpiresAt.Time))
	}

	return v.Mint(claims.Subject, claims.TenantID, claims.Roles)
}

// Mint issues a fresh access+refresh pair for subject/tenant/roles, signed
// with the service's own HMAC secret. Used by Refresh and by any mock login
// surface built atop the API-key table.
func (v *Verifier) Mint(subject, tenant string, roles []string) (*TokenPair, error) {
	if len(v.cfg.HMACSecret) == 0 {
		return nil, accesserrors.Internal("token minting unavailable", fmt.Errorf("no HMAC secret configured"))
	}

	now := time.Now()
	access := &Claims{
		Subject:   subject,
		TenantID:  tenant,
		Roles:     roles,
		TokenType: "access",
		ID:        uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.cfg.AccessTokenTTL)),
		},
	}
	refresh := &Claims{
		Subject:   subject,
		TenantID:  tenant,
		Roles:     roles,
		TokenType: "refresh",
		ID:        uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.cfg.RefreshTokenTTL)),
		},
	}

	accessTok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(v.cfg.HMACSecret)
	if err != nil {
		return nil, accesserrors.Internal("sign access token", err)
	}
	refreshTok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(v.cfg.HMACSecret)
	if err != nil {
		return nil, accesserrors.Internal("sign refresh token", err)
	}

	return &TokenPair{
		AccessToken:  accessTok,
		RefreshToken: refreshTok,
		ExpiresIn:    int64(v.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// Logout revokes rawToken's jti for the remainder of its natural lifetime.
// Best-effort: the denylist is in-memory and process-local.
func (v *Verifier) Logout(ctx context.Context, rawToken string) error {
	claims, err := v.Verify(ctx, rawToken)
	if err != nil {
		return err
	}
	if claims.ID == "" {
		return nil
	}
	v.denylist.revoke(claims.ID, time.Until(claims.ExpiresAt.Time))
	return nil
}
