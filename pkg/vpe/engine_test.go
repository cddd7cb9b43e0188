package vpe

import (
	"sync"
	"testing"
	"time"

	"github.com/pulseone-io/collector/pkg/model"
)

type fakeDataSource struct {
	mu sync.Mutex
	values map[int64]model.TimestampedValue
}

func newFakeDataSource() *fakeDataSource {
	return &fakeDataSource{values: make(map[int64]model.TimestampedValue)}
}

func (f *fakeDataSource) Get(pointID int64) (model.TimestampedValue, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[pointID]
	return v, ok
}

func (f *fakeDataSource) set(pointID int64, value float64, quality model.Quality) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[pointID] = model.TimestampedValue{PointID: pointID, Value: value, Quality: quality, TimestampMs: time.Now().UnixMilli()}
}

// TestZoneAverageVirtualPoint covers the documented scenario: three raw zone
// temperatures averaged by formula.
func TestZoneAverageVirtualPoint(t *testing.T) {
	ds := newFakeDataSource()
	ds.set(1, 24, model.QualityGood)
	ds.set(2, 26, model.QualityGood)
	ds.set(3, 25, model.QualityGood)

	var results []model.TimestampedValue
	e := New()
	err := e.Initialize(Config{
		DataSource: ds,
		VirtualPoints: []model.VirtualPoint{{
			ID: 100, Formula: "(z1+z2+amb)/3", Trigger: model.TriggerOnDemand,
			ErrorHandling: model.ErrorReturnNull, DataType: model.DataTypeFloat64,
			Enabled: true,
			Inputs: []model.VirtualPointInput{
				{Alias: "z1", SourcePointID: 1}, {Alias: "z2", SourcePointID: 2}, {Alias: "amb", SourcePointID: 3},
			},
		}},
		OnResult: func(vp model.VirtualPoint, v model.TimestampedValue) { results = append(results, v) },
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer e.Shutdown()

	v, err := e.EvaluateOnDemand(100)
	if err != nil {
		t.Fatalf("EvaluateOnDemand: %v", err)
	}
	if v.Quality != model.QualityGood {
		t.Fatalf("expected GOOD quality, got %v", v.Quality)
	}
	f, _ := v.AsFloat64()
	if f != 25.0 {
		t.Fatalf("expected 25.0, got %v", f)
	}
	if len(results) != 1 {
		t.Fatalf("expected one OnResult callback, got %d", len(results))
	}
}

func TestMissingInputUsesReturnLast(t *testing.T) {
	ds := newFakeDataSource()
	ds.set(1, 24, model.QualityGood)
	ds.set(2, 26, model.QualityGood)
	// point 3 never set -> missing

	e := New()
	err := e.Initialize(Config{
		DataSource: ds,
		VirtualPoints: []model.VirtualPoint{{
			ID: 101, Formula: "(z1+z2+amb)/3", Trigger: model.TriggerOnDemand,
			ErrorHandling: model.ErrorReturnLast, DataType: model.DataTypeFloat64, Enabled: true,
			LastValue: 24.5,
			Inputs: []model.VirtualPointInput{
				{Alias: "z1", SourcePointID: 1}, {Alias: "z2", SourcePointID: 2}, {Alias: "amb", SourcePointID: 3},
			},
		}},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer e.Shutdown()

	v, err := e.EvaluateOnDemand(101)
	if err != nil {
		t.Fatalf("EvaluateOnDemand: %v", err)
	}
	if v.Quality != model.QualityUncertain {
		t.Fatalf("expected UNCERTAIN quality, got %v", v.Quality)
	}
	f, _ := v.AsFloat64()
	if f != 24.5 {
		t.Fatalf("expected last value 24.5, got %v", f)
	}
}

func TestCyclicVirtualPointsAreRejected(t *testing.T) {
	e := New()
	err := e.Initialize(Config{
		DataSource: newFakeDataSource(),
		VirtualPoints: []model.VirtualPoint{
			{ID: 1, Formula: "b+1", Trigger: model.TriggerOnDemand, ErrorHandling: model.ErrorReturnNull, DataType: model.DataTypeFloat64, Enabled: true,
				Inputs: []model.VirtualPointInput{{Alias: "b", SourcePointID: 2, IsVirtual: true}}},
			{ID: 2, Formula: "a+1", Trigger: model.TriggerOnDemand, ErrorHandling: model.ErrorReturnNull, DataType: model.DataTypeFloat64, Enabled: true,
				Inputs: []model.VirtualPointInput{{Alias: "a", SourcePointID: 1, IsVirtual: true}}},
		},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer e.Shutdown()

	rejected := e.Rejected()
	if len(rejected) != 2 {
		t.Fatalf("expected both cyclic virtual points rejected, got %d", len(rejected))
	}
}

func TestOnChangePropagatesToDependentVirtualPoint(t *testing.T) {
	ds := newFakeDataSource()
	ds.set(1, 10, model.QualityGood)

	var order []int64
	e := New()
	err := e.Initialize(Config{
		DataSource: ds,
		VirtualPoints: []model.VirtualPoint{
			{ID: 1, Formula: "raw*2", Trigger: model.TriggerOnChangeVP, ErrorHandling: model.ErrorReturnNull, DataType: model.DataTypeFloat64, Enabled: true,
				Inputs: []model.VirtualPointInput{{Alias: "raw", SourcePointID: 1}}},
			{ID: 2, Formula: "doubled+1", Trigger: model.TriggerEventDriven, ErrorHandling: model.ErrorReturnNull, DataType: model.DataTypeFloat64, Enabled: true,
				Inputs: []model.VirtualPointInput{{Alias: "doubled", SourcePointID: 1, IsVirtual: true}}},
		},
		OnResult: func(vp model.VirtualPoint, v model.TimestampedValue) {
			order = append(order, vp.ID)
		},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer e.Shutdown()

	e.OnPointChanged(1, false)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected vp 1 then its dependent vp 2 evaluated from a raw-point change, got %v", order)
	}

	order = nil
	e.OnPointChanged(1, true) // vp 1's own result changing propagates to vp 2
	if len(order) != 1 || order[0] != 2 {
		t.Fatalf("expected vp 2 evaluated from vp 1's change, got %v", order)
	}
}
