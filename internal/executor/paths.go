package executor

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// resolveNested extracts a dotted path out of a nested output map, used by
// the workflow executor's exposed_outputs mapping.
func resolveNested(output map[string]interface{}, path string) (interface{}, error) {
	raw, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("executor: marshal output: %w", err)
	}
	result := gjson.GetBytes(raw, path)
	if !result.Exists() {
		return nil, fmt.Errorf("executor: exposed_outputs path %q not found", path)
	}
	return result.Value(), nil
}
