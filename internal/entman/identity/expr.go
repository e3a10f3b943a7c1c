package identity

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/stuvusIT/entman/internal/entman/types"
)

// ExprVerifier grants access when a CEL expression over the string variable
// `token` evaluates to true, e.g. `token.startsWith("staff-") && size(token) == 14`.
type ExprVerifier struct {
	source  string
	program cel.Program
}

func NewExprVerifier(expr string) (*ExprVerifier, error) {
	env, err := cel.NewEnv(cel.Variable("token", cel.StringType))
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	return &ExprVerifier{source: expr, program: prg}, nil
}

func (v *ExprVerifier) Access(ctx context.Context, token string) (types.AccessResponse, error) {
	out, _, err := v.program.ContextEval(ctx, map[string]any{"token": token})
	if err != nil {
		return types.AccessResponse{}, fmt.Errorf("%w: evaluate %q: %w", ErrUnavailable, v.source, err)
	}

	ok, isBool := out.Value().(bool)
	if !isBool {
		return types.AccessResponse{}, fmt.Errorf("%w: %q returned %T", ErrUnavailable, v.source, out.Value())
	}
	if ok {
		return granted("", ReasonExprAllowed), nil
	}
	return denied(ReasonExprDenied), nil
}
