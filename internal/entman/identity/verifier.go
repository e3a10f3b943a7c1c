// Package identity holds the token verifiers the gate can be started with.
//
// A verifier turns a token into a types.AccessResponse. An unknown or
// invalid token is a Failure response, never an error; errors are reserved
// for the verification mechanism itself being broken (database down,
// misconfigured expression and so on) and wrap ErrUnavailable.
package identity

import (
	"context"
	"errors"

	"github.com/stuvusIT/entman/internal/entman/types"
)

var ErrUnavailable = errors.New("identity verifier unavailable")

type Verifier interface {
	Access(ctx context.Context, token string) (types.AccessResponse, error)
}

// Decision reasons attached to responses by the verifiers in this package.
const (
	ReasonAllowAll        = "allow_all"
	ReasonTokenAllowed    = "token_allowed"
	ReasonTokenNotAllowed = "token_not_allowed"
	ReasonMissingToken    = "missing_token"
	ReasonUnknownToken    = "unknown_token"
	ReasonBadToken        = "bad_token"
	ReasonRevoked         = "revoked"
	ReasonTokenValid      = "token_valid"
	ReasonInvalidIDToken  = "invalid_id_token"
	ReasonExprAllowed     = "expr_allowed"
	ReasonExprDenied      = "expr_denied"
)

func granted(name, reason string) types.AccessResponse {
	return types.AccessResponse{Outcome: types.Success, Name: name, Reason: reason}
}

func denied(reason string) types.AccessResponse {
	return types.AccessResponse{Outcome: types.Failure, Reason: reason}
}
