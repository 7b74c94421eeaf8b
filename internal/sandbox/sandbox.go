// Package sandbox implements the Resource Sandbox (§4.6): a scoped
// asynchronous context with a hard wall-clock deadline and cooperative
// cancellation, plus the isolated-execution-environment contract code nodes
// run inside.
package sandbox

import (
	"context"
	"fmt"
	"time"
)

const defaultTimeout = 30 * time.Second

// Run executes fn inside a context bounded by timeout (defaulting to 30s,
// per the tool-executor contract), returning TimeoutError if fn does not
// finish before the deadline. fn must itself observe ctx cancellation at
// its own suspension points — Run cannot forcibly stop a goroutine that
// ignores ctx, only stop waiting on it.
func Run(parent context.Context, timeoutSeconds float64, fn func(ctx context.Context) (map[string]interface{}, error)) (map[string]interface{}, error) {
	timeout := defaultTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds * float64(time.Second))
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	type outcome struct {
		out map[string]interface{}
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		out, err := fn(ctx)
		done <- outcome{out, err}
	}()

	select {
	case o := <-done:
		return o.out, o.err
	case <-ctx.Done():
		return nil, &TimeoutError{TimeoutSeconds: timeout.Seconds()}
	}
}

// DefaultAllowedImports mirrors the stdlib text/math utility set the
// sandbox permits for code nodes out of the box.
var DefaultAllowedImports = map[string]bool{
	"math":   true,
	"re":     true,
	"json":   true,
	"string": true,
	"time":   true,
}

// CodeResult is what a code node's isolated execution environment reports.
type CodeResult struct {
	WasmReturnCode int                    `json:"wasm_return_code"`
	Result         map[string]interface{} `json:"result"`
}

// CheckImports rejects any import not on allowList before code ever runs —
// a pre-execution gate, not a runtime trap.
func CheckImports(imports []string, allowList map[string]bool) error {
	if allowList == nil {
		allowList = DefaultAllowedImports
	}
	for _, imp := range imports {
		if !allowList[imp] {
			return &ViolationError{Reason: fmt.Sprintf("import %q is not on the allow-list", imp)}
		}
	}
	return nil
}

// CodeRunner executes a code node's body inside an isolated environment
// (e.g. a WebAssembly guest). Swapped out in tests for a fake.
type CodeRunner interface {
	RunCode(ctx context.Context, language, code string, bindings map[string]interface{}) (CodeResult, error)
}
