package workerfactory

import (
	"errors"
	"testing"

	"github.com/pulseone-io/collector/pkg/model"
	"github.com/pulseone-io/collector/pkg/worker"
)

type stubPoints struct{}

func (stubPoints) DataPointsForDevice(model.DeviceID) ([]model.DataPoint, error) { return nil, nil }

type stubValues struct{}

func (stubValues) Get(int64) (model.TimestampedValue, bool) { return model.TimestampedValue{}, false }
func (stubValues) Set(int64, model.TimestampedValue) {}

type stubPipeline struct{}

func (stubPipeline) Submit(model.DeviceDataMessage) bool { return true }

func validDevice() model.Device {
	return model.Device{
		ID: 1, Name: "d1", Protocol: model.ProtocolModbusTCP, Endpoint: "localhost:502", Enabled: true,
		Settings: model.DeviceSettings{
			PollingIntervalMs: 1000, ConnectionTimeoutMs: 2000, ReadTimeoutMs: 1000, WriteTimeoutMs: 1000,
			MaxRetryCount: 5, RetryIntervalMs: 500, BackoffMultiplier: 2, BackoffTimeMs: 500, MaxBackoffTimeMs: 30000,
		},
	}
}

func TestFactoryBuildValidDevice(t *testing.T) {
	f := New(stubPoints{}, stubValues{}, stubPipeline{}, nil, nil)
	w, err := f.Build(validDevice())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if w.State() != worker.StateCreated {
		t.Fatalf("new worker state = %v, want CREATED", w.State())
	}
}

func TestFactoryBuildRejectsInvalidDevice(t *testing.T) {
	f := New(stubPoints{}, stubValues{}, stubPipeline{}, nil, nil)
	d := validDevice()
	d.Name = ""
	_, err := f.Build(d)
	var cerr *model.ConfigInvalidError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigInvalidError, got %v", err)
	}
}

func TestFactoryBuildRejectsUnknownProtocol(t *testing.T) {
	f := New(stubPoints{}, stubValues{}, stubPipeline{}, nil, nil)
	d := validDevice()
	d.Protocol = model.Protocol("CARRIER_PIGEON")
	_, err := f.Build(d)
	if err == nil {
		t.Fatal("expected error for unknown protocol")
	}
}
