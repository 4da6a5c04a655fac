// Package expr evaluates the `${...}` expressions and flow conditions used
// throughout the element graph against a read-only merged variable map. It
// never mutates variables: evaluation is a pure function of (expression,
// variables) → value, so a sequence-flow condition can be evaluated
// speculatively (e.g. for deploy-time inclusive-gateway reachability
// sanity checks) without side effects.
package expr

import (
	"context"
	"strings"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"

	engerr "github.com/r3e-network/flowlayer/infrastructure/errors"
)

// Language is the gval language used for expressions: arithmetic,
// comparison and boolean operators plus jsonpath-style selectors for
// dotted/bracketed path references into the variable map.
var Language = gval.Full(jsonpath.Language())

// Evaluate evaluates a `${...}`-wrapped expression against vars and returns
// the resulting value. A bare expression (no `${}` wrapper) is evaluated
// as a literal string. Plain `${varName}` references are resolved via a
// direct map lookup before falling back to gval, so evaluation never
// incurs a parser call on the hot path of simple variable reads.
func Evaluate(ctx context.Context, expression string, vars map[string]interface{}) (interface{}, error) {
	body, isExpr := unwrap(expression)
	if !isExpr {
		return expression, nil
	}
	trimmed := strings.TrimSpace(body)
	if v, ok := vars[trimmed]; ok && isBareIdentifier(trimmed) {
		return v, nil
	}
	value, err := Language.Evaluate(trimmed, vars)
	if err != nil {
		return nil, engerr.ExpressionRuntime(expression, err)
	}
	return value, nil
}

// EvaluateBool evaluates expression and coerces the result to bool,
// returning an ExpressionRuntime error if the result isn't boolean-like.
func EvaluateBool(ctx context.Context, expression string, vars map[string]interface{}) (bool, error) {
	v, err := Evaluate(ctx, expression, vars)
	if err != nil {
		return false, err
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case nil:
		return false, nil
	default:
		return false, engerr.ExpressionRuntime(expression, errNotBoolean{value: v})
	}
}

// Validate parses expression without evaluating it, surfacing a syntax
// error at deploy time rather than at first evaluation.
func Validate(expression string) error {
	body, isExpr := unwrap(expression)
	if !isExpr {
		return nil
	}
	if _, err := Language.NewEvaluable(strings.TrimSpace(body)); err != nil {
		return engerr.ExpressionSyntax(expression, err)
	}
	return nil
}

func unwrap(expression string) (string, bool) {
	trimmed := strings.TrimSpace(expression)
	if strings.HasPrefix(trimmed, "${") && strings.HasSuffix(trimmed, "}") {
		return trimmed[2 : len(trimmed)-1], true
	}
	return expression, false
}

func isBareIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

type errNotBoolean struct{ value interface{} }

func (e errNotBoolean) Error() string {
	return "expression did not evaluate to a boolean"
}
