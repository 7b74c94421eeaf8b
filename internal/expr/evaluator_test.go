package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator_AcceptedConstructs(t *testing.T) {
	vars := map[string]interface{}{
		"output": map[string]interface{}{
			"approved": true,
			"score":    float64(82),
			"label":    "gold",
		},
		"attempt": float64(2),
	}

	cases := []struct {
		name string
		expr string
		want bool
	}{
		{"bool field", "output.approved", true},
		{"negation", "not output.approved", false},
		{"comparison", "output.score >= 80", true},
		{"arithmetic then compare", "output.score - 2 >= 80", true},
		{"string equality", "output.label == 'gold'", true},
		{"and", "output.approved and output.score > 50", true},
		{"or short-circuit", "output.approved or undefined_var", true},
		{"parens", "(output.score > 90) or (attempt < 3)", true},
	}

	ev := NewEvaluator()
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ev.Evaluate(c.expr, vars)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestEvaluator_ForbiddenConstructs(t *testing.T) {
	cases := []string{
		"len(output.label)",
		"output.items[0]",
		"output.approved()",
	}

	ev := NewEvaluator()
	for _, expr := range cases {
		t.Run(expr, func(t *testing.T) {
			_, err := ev.Evaluate(expr, nil)
			require.Error(t, err)
			var invalid *InvalidExpressionError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestEvaluator_UnknownVariable(t *testing.T) {
	ev := NewEvaluator()
	_, err := ev.Evaluate("output.missing", map[string]interface{}{"output": map[string]interface{}{}})
	require.Error(t, err)
	var unknown *UnknownVariableError
	assert.ErrorAs(t, err, &unknown)
}

func TestEvaluator_NonBooleanResult(t *testing.T) {
	ev := NewEvaluator()
	_, err := ev.Evaluate("1 + 2", nil)
	require.Error(t, err)
}

func TestEvaluator_CacheReusesCompilation(t *testing.T) {
	ev := NewEvaluator()
	vars := map[string]interface{}{"x": true}

	_, err := ev.Evaluate("x", vars)
	require.NoError(t, err)
	assert.Equal(t, 1, ev.CacheSize())

	_, err = ev.Evaluate("x", vars)
	require.NoError(t, err)
	assert.Equal(t, 1, ev.CacheSize())

	ev.ClearCache()
	assert.Equal(t, 0, ev.CacheSize())
}

func TestEvaluator_MalformedExpression(t *testing.T) {
	ev := NewEvaluator()
	_, err := ev.Evaluate("output.score >", nil)
	require.Error(t, err)
}
