// Package scripting executes BPMN script tasks in a sandboxed goja VM, one
// fresh VM per execution for isolation. Adapted from the teacher's
// system/tee gojaScriptEngine (itself the "simulation mode" fallback for
// environments without a V8/enclave runtime) — generalized from a secrets+
// input/output TEE invocation shape to a script task's variables-in,
// result-var-out shape, and given a wall-clock budget via goja's VM
// interrupt so a runaway script can't stall a scheduler worker forever.
package scripting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"

	engerr "github.com/r3e-network/flowlayer/infrastructure/errors"
)

// DefaultTimeout bounds a single script task execution.
const DefaultTimeout = 5 * time.Second

// Engine executes script-task source against a variable map.
type Engine struct {
	Timeout time.Duration
}

// New constructs an Engine with DefaultTimeout.
func New() *Engine {
	return &Engine{Timeout: DefaultTimeout}
}

// Result is the outcome of one script execution.
type Result struct {
	Value interface{}
	Logs  []string
}

// Execute compiles and runs script in a fresh VM, exposing `variables` (the
// merged scope map) as a global and calling the `execute` entry point with
// it, returning whatever that function returns.
func (e *Engine) Execute(ctx context.Context, script string, variables map[string]interface{}) (*Result, error) {
	vm := goja.New()
	logs := make([]string, 0)

	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.String()
		}
		if len(args) > 0 {
			logs = append(logs, fmt.Sprint(args))
		}
		return goja.Undefined()
	})
	_ = vm.Set("console", console)
	_ = vm.Set("variables", vm.ToValue(variables))

	if _, err := vm.RunString(builtinFunctions); err != nil {
		return nil, engerr.Internal("load script builtins", err)
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt("script execution timed out")
	})
	defer timer.Stop()

	if _, err := vm.RunString(script); err != nil {
		return nil, engerr.Wrap(engerr.KindExpressionRuntime, "script task failed to compile/run", err)
	}

	entryPoint, ok := goja.AssertFunction(vm.Get("execute"))
	if !ok {
		return nil, engerr.New(engerr.KindExpressionRuntime, "script task must define a top-level function named execute(variables)")
	}

	resultVal, err := entryPoint(goja.Undefined(), vm.Get("variables"))
	if err != nil {
		return nil, engerr.Wrap(engerr.KindExpressionRuntime, "script task execute() failed", err)
	}

	var value interface{}
	if resultVal != nil && !goja.IsUndefined(resultVal) && !goja.IsNull(resultVal) {
		value = normalize(resultVal.Export())
	}

	return &Result{Value: value, Logs: logs}, nil
}

// Validate compiles script without running it, surfacing syntax errors at
// deploy time.
func Validate(script string) error {
	if _, err := goja.Compile("scripttask.js", script, false); err != nil {
		return engerr.ExpressionSyntax(script, err)
	}
	return nil
}

// normalize round-trips goja's exported value through JSON so the caller
// gets plain map[string]interface{}/[]interface{}/scalars regardless of the
// concrete Go type goja chose to export (int64 vs float64, etc).
func normalize(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// builtinFunctions mirrors the teacher's utility prelude (crypto.randomUUID,
// base64), trimmed to what a script task realistically needs — no fetch
// shim, since script tasks are sandboxed and side-effect-free by design;
// a serviceTask, not a scriptTask, is the element for calling out.
const builtinFunctions = `
var crypto = {
	randomUUID: function() {
		return 'xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx'.replace(/[xy]/g, function(c) {
			var r = Math.random() * 16 | 0, v = c == 'x' ? r : (r & 0x3 | 0x8);
			return v.toString(16);
		});
	}
};
`
