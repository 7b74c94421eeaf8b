package expr

import (
	"fmt"
	"strings"
)

func resolvePath(vars map[string]interface{}, path string) (interface{}, error) {
	segments := strings.Split(path, ".")
	var cur interface{} = vars

	for i, seg := range segments {
		m, ok := cur.(map[string]interface{})
		if !ok {
			if i == 0 {
				return nil, &UnknownVariableError{Name: path}
			}
			return nil, &InvalidExpressionError{Reason: fmt.Sprintf("cannot access %q on non-object value", seg)}
		}
		v, ok := m[seg]
		if !ok {
			return nil, &UnknownVariableError{Name: path}
		}
		cur = v
	}
	return cur, nil
}

func toBool(v interface{}) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	default:
		return false, &InvalidExpressionError{Reason: fmt.Sprintf("expected boolean, got %T", v)}
	}
}

func toFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	default:
		return 0, &InvalidExpressionError{Reason: fmt.Sprintf("expected number, got %T", v)}
	}
}

func looseEqual(a, b interface{}) bool {
	af, aerr := toFloat(a)
	bf, berr := toFloat(b)
	if aerr == nil && berr == nil {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compare(op tokenKind, a, b interface{}) (bool, error) {
	af, err := toFloat(a)
	if err != nil {
		return false, err
	}
	bf, err := toFloat(b)
	if err != nil {
		return false, err
	}
	switch op {
	case tokLt:
		return af < bf, nil
	case tokLte:
		return af <= bf, nil
	case tokGt:
		return af > bf, nil
	case tokGte:
		return af >= bf, nil
	}
	return false, &InvalidExpressionError{Reason: "unsupported comparison operator"}
}

func arithmetic(op tokenKind, a, b interface{}) (interface{}, error) {
	af, err := toFloat(a)
	if err != nil {
		return nil, err
	}
	bf, err := toFloat(b)
	if err != nil {
		return nil, err
	}
	switch op {
	case tokPlus:
		return af + bf, nil
	case tokMinus:
		return af - bf, nil
	case tokStar:
		return af * bf, nil
	case tokSlash:
		if bf == 0 {
			return nil, &InvalidExpressionError{Reason: "division by zero"}
		}
		return af / bf, nil
	case tokPercent:
		if bf == 0 {
			return nil, &InvalidExpressionError{Reason: "modulo by zero"}
		}
		return float64(int64(af) % int64(bf)), nil
	}
	return nil, &InvalidExpressionError{Reason: "unsupported arithmetic operator"}
}
