package expr_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/flowlayer/engine/expr"
)

func TestEvaluate_BareExpressionIsReturnedAsLiteral(t *testing.T) {
	v, err := expr.Evaluate(context.Background(), "approved", nil)
	require.NoError(t, err)
	require.Equal(t, "approved", v, "a condition without ${} is a literal, not evaluated")
}

func TestEvaluate_WrappedBareIdentifierIsResolvedFromVars(t *testing.T) {
	vars := map[string]interface{}{"amount": 42}
	v, err := expr.Evaluate(context.Background(), "${amount}", vars)
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestEvaluate_WrappedExpressionIsEvaluatedByGval(t *testing.T) {
	vars := map[string]interface{}{"amount": 150}
	v, err := expr.Evaluate(context.Background(), "${amount > 100}", vars)
	require.NoError(t, err)
	require.Equal(t, true, v)
}

func TestEvaluateBool_CoercesBooleanResult(t *testing.T) {
	ok, err := expr.EvaluateBool(context.Background(), "${approved == true}", map[string]interface{}{"approved": true})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateBool_RejectsNonBooleanResult(t *testing.T) {
	_, err := expr.EvaluateBool(context.Background(), "${amount}", map[string]interface{}{"amount": 42})
	require.Error(t, err)
}

func TestEvaluateBool_NilVariableValueIsFalse(t *testing.T) {
	ok, err := expr.EvaluateBool(context.Background(), "${flag}", map[string]interface{}{"flag": nil})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestValidate_AcceptsWellFormedExpression(t *testing.T) {
	require.NoError(t, expr.Validate("${amount > 100}"))
}

func TestValidate_RejectsMalformedExpression(t *testing.T) {
	require.Error(t, expr.Validate("${amount >}"))
}

func TestValidate_IgnoresNonExpressionStrings(t *testing.T) {
	require.NoError(t, expr.Validate("not an expression"))
}
