package coderunner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCode_EvaluatesFinalExpression(t *testing.T) {
	r := New()
	result, err := r.RunCode(context.Background(), "expr", "x + y", map[string]interface{}{
		"x": 2.0,
		"y": 3.0,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(5), result.Result["value"])
	assert.Equal(t, 0, result.WasmReturnCode)
}

func TestRunCode_AssignmentsFeedLaterStatements(t *testing.T) {
	r := New()
	result, err := r.RunCode(context.Background(), "expr", "total = x + y; total * 2", map[string]interface{}{
		"x": 1.0,
		"y": 4.0,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(10), result.Result["value"])
	bindings, ok := result.Result["bindings"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(5), bindings["total"])
}

func TestRunCode_RejectsMalformedStatement(t *testing.T) {
	r := New()
	_, err := r.RunCode(context.Background(), "expr", "x = = y", map[string]interface{}{"y": 1.0})
	assert.Error(t, err)
}

func TestSplitAssignment_DistinguishesEqualityFromAssignment(t *testing.T) {
	name, expr, ok := splitAssignment("x == y")
	assert.False(t, ok)
	assert.Empty(t, name)
	assert.Equal(t, "x == y", expr)

	name, expr, ok = splitAssignment("total = x + 1")
	assert.True(t, ok)
	assert.Equal(t, "total", name)
	assert.Equal(t, "x + 1", expr)
}
