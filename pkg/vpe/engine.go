package vpe

import (
	"fmt"
	"sync"
	"time"

	"github.com/pulseone-io/collector/pkg/model"
	"github.com/pulseone-io/collector/pkg/telemetry"
)

// DefaultShards is the number of independent script interpreters the
// engine shards virtual points across.
const DefaultShards = 4

// DataSource resolves the current value of a raw data point. CacheWriter's
// backing store or worker.CurrentValueStore satisfy this shape.
type DataSource interface {
	Get(pointID int64) (model.TimestampedValue, bool)
}

// Config bundles everything Initialize needs (: explicit
// initialize(deps…), no hidden global access beyond the configuration
// store handle).
type Config struct {
	VirtualPoints []model.VirtualPoint
	DataSource DataSource
	Shards int // <=0 uses DefaultShards
	CallTimeout time.Duration // <=0 uses DefaultCallTimeout
	Logger telemetry.Logger

	// OnResult is invoked with every successfully-coerced (or
	// error-handled) evaluation result. cmd/collector wires this to
	// CacheWriter.WriteVirtualPointResult and the shared value store and,
	// when the value changed, to direct alarm evaluation and OnPointChanged.
	OnResult func(vp model.VirtualPoint, value model.TimestampedValue)
}

// Engine is the process-wide VirtualPointEngine singleton.
type Engine struct {
	mu sync.RWMutex
	graph *graph
	data DataSource
	logger telemetry.Logger
	onResult func(model.VirtualPoint, model.TimestampedValue)

	results map[int64]model.TimestampedValue // last result per vp id, for RETURN_LAST

	sandboxes []*sandbox

	stopCh chan struct{}
	wg sync.WaitGroup

	rejected map[int64]error
}

// New constructs an uninitialized Engine. Call Initialize before use.
func New() *Engine {
	return &Engine{}
}

// Initialize builds the dependency graph, rejects cyclic or invalid
// virtual points (returned in Rejected), starts the periodic-trigger
// timers, and makes the engine ready to evaluate. Initialize is not
// safe to call concurrently with Evaluate/OnPointChanged.
func (e *Engine) Initialize(cfg Config) error {
	if cfg.DataSource == nil {
		return fmt.Errorf("vpe: DataSource must be injected")
	}
	shards := cfg.Shards
	if shards <= 0 {
		shards = DefaultShards
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}

	g, rejected := buildGraph(cfg.VirtualPoints)
	for id, err := range rejected {
		logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryVirtualPoint, VirtualPointID: id, Message: "virtual point rejected", Err: err})
	}

	e.mu.Lock()
	e.graph = g
	e.data = cfg.DataSource
	e.logger = logger
	e.onResult = cfg.OnResult
	e.results = make(map[int64]model.TimestampedValue)
	e.rejected = rejected
	e.sandboxes = make([]*sandbox, shards)
	for i := range e.sandboxes {
		e.sandboxes[i] = newSandbox(cfg.CallTimeout)
	}
	e.stopCh = make(chan struct{})
	e.mu.Unlock()

	e.startPeriodicTimers()
	return nil
}

// Rejected returns the per-virtual-point validation/cycle errors found at
// Initialize.
func (e *Engine) Rejected() map[int64]error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[int64]error, len(e.rejected))
	for k, v := range e.rejected {
		out[k] = v
	}
	return out
}

// Shutdown stops periodic timers and waits for periodic evaluations already
// running. Evaluations running on a caller's goroutine (OnPointChanged,
// EvaluateOnDemand) are not waited for.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	stopCh := e.stopCh
	e.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	e.wg.Wait()
}

func (e *Engine) startPeriodicTimers() {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for id, n := range e.graph.nodes {
		if n.vp.Trigger != model.TriggerPeriodic {
			continue
		}
		interval := time.Duration(n.vp.IntervalMs) * time.Millisecond
		e.wg.Add(1)
		go e.periodicLoop(id, interval)
	}
}

func (e *Engine) periodicLoop(vpID int64, interval time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.evaluateBatch([]int64{vpID})
		}
	}
}

// EvaluateOnDemand evaluates exactly one virtual point (ON_DEMAND trigger
// or operator request), regardless of its configured Trigger.
func (e *Engine) EvaluateOnDemand(vpID int64) (model.TimestampedValue, error) {
	e.mu.RLock()
	n, ok := e.graph.nodes[vpID]
	e.mu.RUnlock()
	if !ok {
		return model.TimestampedValue{}, fmt.Errorf("vpe: unknown virtual point %d", vpID)
	}
	return e.evaluateOne(n), nil
}

// OnPointChanged notifies the engine that a raw data point or another
// virtual point's value changed, triggering every ON_CHANGE (and, for
// virtual-point sources, EVENT_DRIVEN) virtual point that depends on it,
// plus their transitive dependents, each evaluated at most once
//.
func (e *Engine) OnPointChanged(sourceID int64, isVirtual bool) {
	e.mu.RLock()
	var roots []int64
	for id, n := range e.graph.nodes {
		for _, ed := range n.edges {
			if ed.sourceID != sourceID || ed.isVirtual != isVirtual {
				continue
			}
			switch n.vp.Trigger {
			case model.TriggerOnChangeVP:
				roots = append(roots, id)
			case model.TriggerEventDriven:
				if isVirtual {
					roots = append(roots, id)
				}
			}
		}
	}
	e.mu.RUnlock()

	if len(roots) == 0 {
		return
	}
	e.evaluateBatch(roots)
}

// evaluateBatch evaluates every node reachable from roots, in topological
// order, propagating each result to its dependents via OnPointChanged-style
// re-entry is unnecessary here: downstreamOf already expanded the full set.
func (e *Engine) evaluateBatch(roots []int64) {
	e.mu.RLock()
	ids := e.graph.downstreamOf(roots)
	nodes := make([]*node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, e.graph.nodes[id])
	}
	e.mu.RUnlock()

	for _, n := range nodes {
		e.evaluateOne(n)
	}
}

// evaluateOne runs one virtual point's formula and emits its result.
func (e *Engine) evaluateOne(n *node) model.TimestampedValue {
	vp := n.vp
	inputs := make(map[string]any, len(n.edges))
	missing := false
	for _, ed := range n.edges {
		v, ok := e.resolveInput(ed)
		if !ok {
			missing = true
			continue
		}
		inputs[ed.alias] = v
	}

	now := time.Now().UnixMilli()
	var result model.TimestampedValue

	if missing {
		result = e.errorResult(vp, now)
	} else {
		sb := e.sandboxFor(vp.ID)
		raw, err := sb.Eval(vp.Formula, inputs, e.resolvePointValue)
		if err != nil {
			e.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryVirtualPoint, VirtualPointID: vp.ID, Message: "evaluation failed", Err: err})
			result = e.errorResult(vp, now)
		} else if coerced, ok := coerce(raw, vp.DataType); ok {
			result = model.TimestampedValue{PointID: vp.ID, Value: coerced, Quality: model.QualityGood, TimestampMs: now, Source: "virtual_point_engine", ValueChanged: e.changed(vp.ID, coerced)}
		} else {
			result = e.errorResult(vp, now)
		}
	}

	e.mu.Lock()
	e.results[vp.ID] = result
	e.mu.Unlock()

	if e.onResult != nil {
		e.onResult(vp, result)
	}
	return result
}

// errorResult applies the virtual point's ErrorHandling policy
//.
func (e *Engine) errorResult(vp model.VirtualPoint, now int64) model.TimestampedValue {
	base := model.TimestampedValue{PointID: vp.ID, TimestampMs: now, Source: "virtual_point_engine"}
	switch vp.ErrorHandling {
	case model.ErrorReturnLast:
		e.mu.RLock()
		last, ok := e.results[vp.ID]
		e.mu.RUnlock()
		if ok {
			base.Value = last.Value
		} else {
			base.Value = vp.LastValue
		}
		base.Quality = model.QualityUncertain
	case model.ErrorReturnZero:
		base.Value = zeroFor(vp.DataType)
		base.Quality = model.QualityUncertain
	case model.ErrorReturnDefault:
		base.Value = vp.LastValue
		base.Quality = model.QualityUncertain
	default: // ErrorReturnNull
		base.Value = nil
		base.Quality = model.QualityBad
	}
	return base
}

func zeroFor(dt model.DataType) any {
	switch dt {
	case model.DataTypeBool:
		return false
	case model.DataTypeString:
		return ""
	default:
		return 0.0
	}
}

func (e *Engine) changed(vpID int64, newValue any) bool {
	e.mu.RLock()
	prev, ok := e.results[vpID]
	e.mu.RUnlock()
	if !ok {
		return true
	}
	return fmt.Sprintf("%v", prev.Value) != fmt.Sprintf("%v", newValue)
}

func (e *Engine) resolveInput(ed edge) (any, bool) {
	if ed.isVirtual {
		e.mu.RLock()
		v, ok := e.results[ed.sourceID]
		e.mu.RUnlock()
		if !ok || v.Quality == model.QualityBad {
			return nil, false
		}
		return v.Value, true
	}
	v, ok := e.data.Get(ed.sourceID)
	if !ok || v.Quality == model.QualityBad {
		return nil, false
	}
	return v.Value, true
}

// resolvePointValue backs the sandbox's getPointValue(id) helper: it
// checks raw data points first, then other virtual points' last results.
func (e *Engine) resolvePointValue(id int64) (float64, bool) {
	if v, ok := e.data.Get(id); ok {
		return v.AsFloat64()
	}
	e.mu.RLock()
	v, ok := e.results[id]
	e.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return v.AsFloat64()
}

func (e *Engine) sandboxFor(vpID int64) *sandbox {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := len(e.sandboxes)
	idx := int(vpID % int64(n))
	if idx < 0 {
		idx += n
	}
	return e.sandboxes[idx]
}

// Result returns the last computed result for a virtual point, if any.
func (e *Engine) Result(vpID int64) (model.TimestampedValue, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.results[vpID]
	return v, ok
}
