package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/stuvusIT/entman/internal/entman/types"
)

// OIDCVerifier accepts OIDC ID tokens issued for the configured client.
//
// A token the provider's keys reject, or one with the wrong issuer, audience
// or expiry, is a Failure. Not being able to fetch the keys, or the request
// context ending mid-verification, is an error wrapping ErrUnavailable.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the provider configuration from issuerURL.
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider: %w", err)
	}

	var meta struct {
		Issuer  string   `json:"issuer"`
		JWKSURL string   `json:"jwks_uri"`
		Algs    []string `json:"id_token_signing_alg_values_supported"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("failed to read provider metadata: %w", err)
	}

	keys := keySet{next: oidc.NewRemoteKeySet(ctx, meta.JWKSURL)}
	return &OIDCVerifier{
		verifier: oidc.NewVerifier(meta.Issuer, keys, &oidc.Config{
			ClientID:             clientID,
			SupportedSigningAlgs: meta.Algs,
		}),
	}, nil
}

// NewOIDCVerifierWithKeySet skips discovery and verifies signatures against
// keys directly.
func NewOIDCVerifierWithKeySet(issuerURL, clientID string, keys oidc.KeySet) *OIDCVerifier {
	return &OIDCVerifier{
		verifier: oidc.NewVerifier(issuerURL, keySet{next: keys}, &oidc.Config{ClientID: clientID}),
	}
}

func (v *OIDCVerifier) Access(ctx context.Context, token string) (types.AccessResponse, error) {
	if token == "" {
		return denied(ReasonMissingToken), nil
	}

	fail := &keyFailure{}
	idToken, err := v.verifier.Verify(context.WithValue(ctx, keyFailureKey{}, fail), token)
	if err != nil {
		if fail.err != nil {
			return types.AccessResponse{}, fmt.Errorf("%w: oidc keys: %w", ErrUnavailable, fail.err)
		}
		if ctx.Err() != nil {
			return types.AccessResponse{}, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		}
		return denied(ReasonInvalidIDToken), nil
	}

	var claims struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return denied(ReasonInvalidIDToken), nil
	}

	name := claims.Name
	if name == "" {
		name = claims.Email
	}
	if name == "" {
		name = idToken.Subject
	}
	return granted(name, ReasonTokenValid), nil
}

// go-oidc flattens key set errors into its own message, so the key set
// reports fetch failures to Access through the request context instead.
type keyFailure struct{ err error }

type keyFailureKey struct{}

type keySet struct {
	next oidc.KeySet
}

func (k keySet) VerifySignature(ctx context.Context, jwt string) ([]byte, error) {
	payload, err := k.next.VerifySignature(ctx, jwt)
	if err != nil && keysUnreachable(ctx, err) {
		if f, ok := ctx.Value(keyFailureKey{}).(*keyFailure); ok {
			f.err = err
		}
	}
	return payload, err
}

// keysUnreachable separates failures to obtain keys from signatures the keys
// reject.
func keysUnreachable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// RemoteKeySet prefixes every JWKS download failure, including non-200
	// responses, with "fetching keys".
	return strings.HasPrefix(err.Error(), "fetching keys")
}
