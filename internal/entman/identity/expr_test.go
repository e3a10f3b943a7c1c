package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuvusIT/entman/internal/entman/identity"
	"github.com/stuvusIT/entman/internal/entman/types"
)

func TestExprVerifier(t *testing.T) {
	v, err := identity.NewExprVerifier(`token.startsWith("staff-") && size(token) == 10`)
	require.NoError(t, err)

	resp, err := v.Access(context.Background(), "staff-0001")
	require.NoError(t, err)
	assert.Equal(t, types.Success, resp.Outcome)
	assert.Equal(t, identity.ReasonExprAllowed, resp.Reason)

	resp, err = v.Access(context.Background(), "guest-0001")
	require.NoError(t, err)
	assert.Equal(t, types.Failure, resp.Outcome)
	assert.Equal(t, identity.ReasonExprDenied, resp.Reason)
}

func TestExprVerifier_RuntimeError(t *testing.T) {
	v, err := identity.NewExprVerifier(`int(token) > 10`)
	require.NoError(t, err)

	_, err = v.Access(context.Background(), "not-a-number")
	assert.ErrorIs(t, err, identity.ErrUnavailable)
}

func TestExprVerifier_CompileErrors(t *testing.T) {
	for _, expr := range []string{`token +`, `size(token)`, `unknown == "x"`} {
		_, err := identity.NewExprVerifier(expr)
		assert.Error(t, err, expr)
	}
}
