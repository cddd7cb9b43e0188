package vpe

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/pulseone-io/collector/pkg/model"
)

// DefaultCallTimeout bounds one formula evaluation.
const DefaultCallTimeout = 5 * time.Second

// errScriptTimeout is returned (wrapped) when a formula does not return
// within its per-call deadline.
type errScriptTimeout struct{}

func (errScriptTimeout) Error() string { return "script evaluation timed out" }

// ErrScriptTimeout is the sentinel for the ScriptTimeout error kind
//. Use errors.Is against it.
var ErrScriptTimeout error = errScriptTimeout{}

// PointResolver is the method form of the getPointValue(id) resolver. Eval
// takes the resolver as a plain function instead; the engine passes its
// resolvePointValue, which checks both raw data points and other virtual
// points' last results. The Engine type does not implement PointResolver.
type PointResolver interface {
	ResolvePointValue(id int64) (float64, bool)
}

// sandbox wraps one goja.Runtime, reentrant-safe only when callers
// serialize access to it.
type sandbox struct {
	mu sync.Mutex
	vm *goja.Runtime
	timeout time.Duration
}

func newSandbox(timeout time.Duration) *sandbox {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	return &sandbox{vm: vm, timeout: timeout}
}

// Eval runs formula with inputs bound as globals plus getPointValue(id)
// wired to resolve. The goja runtime has no I/O, timers or filesystem
// access; beyond the bound inputs and getPointValue, formulas see only
// goja's standard ECMAScript built-ins (Math, JSON, Date and the like).
func (s *sandbox) Eval(formula string, inputs map[string]any, resolve func(id int64) (float64, bool)) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range inputs {
		if err := s.vm.Set(k, v); err != nil {
			return nil, fmt.Errorf("vpe: bind input %q: %w", k, err)
		}
	}
	if err := s.vm.Set("getPointValue", func(id int64) any {
		v, ok := resolve(id)
		if !ok {
			return goja.Null()
		}
		return v
	}); err != nil {
		return nil, fmt.Errorf("vpe: bind getPointValue: %w", err)
	}

	timer := time.AfterFunc(s.timeout, func() {
		s.vm.Interrupt(errScriptTimeout{})
	})
	defer timer.Stop()

	value, err := s.vm.RunString(formula)
	if err != nil {
		if ie, ok := err.(*goja.InterruptedError); ok {
			if _, isTimeout := ie.Value().(errScriptTimeout); isTimeout {
				return nil, ErrScriptTimeout
			}
		}
		return nil, fmt.Errorf("vpe: formula execution failed: %w", err)
	}
	return value.Export(), nil
}

// coerce converts a raw formula result to the virtual point's declared
// data type. Coercion failure is reported via ok=false
// so the caller can emit quality=BAD / ExecutionStatus=RUNTIME_ERROR.
func coerce(raw any, dataType model.DataType) (any, bool) {
	switch dataType {
	case model.DataTypeBool:
		switch v := raw.(type) {
		case bool:
			return v, true
		case int64:
			return v != 0, true
		case float64:
			return v != 0, true
		default:
			return nil, false
		}
	case model.DataTypeString:
		if raw == nil {
			return nil, false
		}
		return fmt.Sprintf("%v", raw), true
	case model.DataTypeInt16, model.DataTypeUint16, model.DataTypeInt32, model.DataTypeUint32:
		f, ok := toFloat(raw)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return int64(f), true
	case model.DataTypeFloat32, model.DataTypeFloat64:
		f, ok := toFloat(raw)
		if !ok || math.IsNaN(f) {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
