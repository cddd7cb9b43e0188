package alarm

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// DefaultScriptTimeout bounds one condition/message script evaluation,
// the same per-call deadline /§6 place on formula execution —
// alarm scripts run in "the same sandbox as VirtualPoints".
const DefaultScriptTimeout = 5 * time.Second

// scriptRunner is a single-goroutine-at-a-time goja wrapper for
// condition_script and message_script. AlarmEngine keeps one per rule
// shard (here: one per rule id, since alarm scripts run far less often
// than formula evaluation and a rule's occurrence transitions are already
// serialized by its own mutex).
type scriptRunner struct {
	vm *goja.Runtime
	timeout time.Duration
}

func newScriptRunner(timeout time.Duration) *scriptRunner {
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}
	return &scriptRunner{vm: goja.New(), timeout: timeout}
}

// run executes script with bindings set as globals and returns its
// exported result. No I/O, timers, or filesystem access is exposed.
func (r *scriptRunner) run(script string, bindings map[string]any) (any, error) {
	for k, v := range bindings {
		if err := r.vm.Set(k, v); err != nil {
			return nil, fmt.Errorf("alarm: bind %q: %w", k, err)
		}
	}
	timer := time.AfterFunc(r.timeout, func() { r.vm.Interrupt("script timeout") })
	defer timer.Stop()

	v, err := r.vm.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("alarm: script execution failed: %w", err)
	}
	return v.Export(), nil
}

// truthy mirrors JavaScript truthiness for the subset of types a script
// can return.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}
