package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"

	"scout/internal/config"
)

var (
	errBadSecret       = errors.New("access secret mismatch")
	errTokenMissing    = errors.New("identity token required")
	errTokenRejected   = errors.New("identity token rejected")
	errEmailNotAllowed = errors.New("email is not allowed")
)

// tokenVerifier validates an inbound identity token and returns the
// verified email claim.
type tokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (string, error)
}

// oidcVerifier verifies Google-issued ID tokens against the configured
// issuer and audience. The provider is resolved lazily on first use so
// startup does not depend on issuer reachability.
type oidcVerifier struct {
	issuer   string
	audience string

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

func newOIDCVerifier(cfg config.OIDCConfig) *oidcVerifier {
	return &oidcVerifier{issuer: cfg.Issuer, audience: cfg.Audience}
}

func (v *oidcVerifier) resolve(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.verifier != nil {
		return v.verifier, nil
	}
	provider, err := oidc.NewProvider(ctx, v.issuer)
	if err != nil {
		return nil, err
	}
	v.verifier = provider.Verifier(&oidc.Config{ClientID: v.audience})
	return v.verifier, nil
}

func (v *oidcVerifier) VerifyToken(ctx context.Context, raw string) (string, error) {
	verifier, err := v.resolve(ctx)
	if err != nil {
		return "", err
	}

	idToken, err := verifier.Verify(ctx, raw)
	if err != nil {
		return "", errTokenRejected
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", errTokenRejected
	}
	return strings.TrimSpace(strings.ToLower(claims.Email)), nil
}

// authorize runs the edge checks before the orchestrator ever sees the
// request: shared access secret, then optional identity verification.
func authorize(ctx context.Context, cfg *config.Config, verifier tokenVerifier, req *ResearchRequest) error {
	if secret := cfg.Auth.AccessSecret; secret != "" {
		if subtle.ConstantTimeCompare([]byte(req.AccessSecret), []byte(secret)) != 1 {
			return errBadSecret
		}
	}

	if cfg.Auth.OIDC.Issuer == "" || verifier == nil {
		return nil
	}
	if strings.TrimSpace(req.GoogleToken) == "" {
		return errTokenMissing
	}

	email, err := verifier.VerifyToken(ctx, req.GoogleToken)
	if err != nil {
		return errTokenRejected
	}
	if len(cfg.Auth.OIDC.AllowedEmails) > 0 {
		for _, allowed := range cfg.Auth.OIDC.AllowedEmails {
			if strings.EqualFold(strings.TrimSpace(allowed), email) {
				return nil
			}
		}
		return errEmailNotAllowed
	}
	return nil
}
