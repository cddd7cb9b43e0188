// Package workerfactory implements WorkerFactory: given a
// Device entity, selects the concrete driver kind and constructs a
// DeviceWorker, injecting the shared point/value/pipeline references every
// worker needs. The factory never connects; it only configures.
package workerfactory

import (
	"github.com/pulseone-io/collector/pkg/driver"
	"github.com/pulseone-io/collector/pkg/model"
	"github.com/pulseone-io/collector/pkg/telemetry"
	"github.com/pulseone-io/collector/pkg/worker"
)

// Factory builds DeviceWorkers. A single Factory is shared by WorkerManager
// across every device.
type Factory struct {
	points worker.PointStore
	values worker.CurrentValueStore
	pipeline worker.PipelineSubmitter
	logger telemetry.Logger
	onStateChange worker.OnStateChangeFunc
}

// New constructs a Factory. points, values and pipeline must be non-nil;
// failure to inject them is a programming error caught by worker.New.
// onStateChange may be nil; when set, every DeviceWorker built by this
// Factory reports its state transitions through it.
func New(points worker.PointStore, values worker.CurrentValueStore, pipeline worker.PipelineSubmitter, logger telemetry.Logger, onStateChange worker.OnStateChangeFunc) *Factory {
	return &Factory{points: points, values: values, pipeline: pipeline, logger: logger, onStateChange: onStateChange}
}

// Build validates device, selects and constructs its ProtocolDriver, and
// returns a DeviceWorker ready for Start. It does not call Start.
func (f *Factory) Build(device model.Device) (*worker.DeviceWorker, error) {
	if err := device.Validate(); err != nil {
		return nil, err
	}
	drv, err := driver.New(device.Protocol)
	if err != nil {
		return nil, err
	}
	return worker.New(worker.Config{
		Device: device,
		Driver: drv,
		Points: f.points,
		Values: f.values,
		Pipeline: f.pipeline,
		Logger: f.logger,
		OnStateChange: f.onStateChange,
	})
}
