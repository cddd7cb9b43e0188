package main

import (
	"fmt"
	"sync"

	"github.com/pulseone-io/collector/pkg/model"
)

// pointFinder is the subset of *configstore.Store enabledPointStore reads
// from. Declared locally so this file's adapters are testable without a
// real database.
type pointFinder interface {
	FindDataPointsByDeviceID(deviceID model.DeviceID) ([]model.DataPoint, error)
}

// enabledPointStore adapts ConfigStore's unfiltered point list to
// worker.PointStore / processing.PointNamer, both of which want only the
// enabled subset of a device's points (configstore/points.go returns every
// row and leaves filtering to the caller).
type enabledPointStore struct {
	store pointFinder
}

func (a enabledPointStore) DataPointsForDevice(deviceID model.DeviceID) ([]model.DataPoint, error) {
	all, err := a.store.FindDataPointsByDeviceID(deviceID)
	if err != nil {
		return nil, err
	}
	enabled := make([]model.DataPoint, 0, len(all))
	for _, p := range all {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled, nil
}

// deviceFinder is the subset of *configstore.Store deviceResolver reads
// from.
type deviceFinder interface {
	FindDeviceByID(id model.DeviceID) (model.Device, bool, error)
}

// deviceResolver adapts ConfigStore's (model.Device, bool, error)
// FindDeviceByID to workermanager.DeviceStore's single-error signature,
// reporting "not found" as an error since the manager has no separate
// not-found branch.
type deviceResolver struct {
	store deviceFinder
}

func (a deviceResolver) FindDeviceByID(id model.DeviceID) (model.Device, error) {
	d, ok, err := a.store.FindDeviceByID(id)
	if err != nil {
		return model.Device{}, err
	}
	if !ok {
		return model.Device{}, fmt.Errorf("device %d: not found", id)
	}
	return d, nil
}

// pointNamer implements alarm.PointNamer by name-indexing every raw data
// point and virtual point in the current snapshot. It is rebuilt on every
// reconcile so renames surface without a restart.
type pointNamer struct {
	mu sync.RWMutex
	points map[int64]string
	virtual map[int64]string
}

func newPointNamer() *pointNamer {
	return &pointNamer{points: map[int64]string{}, virtual: map[int64]string{}}
}

func (n *pointNamer) replace(pointsByDevice map[string][]model.DataPoint, virtualPoints []model.VirtualPoint) {
	points := make(map[int64]string, len(pointsByDevice))
	for _, ps := range pointsByDevice {
		for _, p := range ps {
			points[p.ID] = p.Name
		}
	}
	virtual := make(map[int64]string, len(virtualPoints))
	for _, vp := range virtualPoints {
		virtual[vp.ID] = vp.Name
	}

	n.mu.Lock()
	n.points = points
	n.virtual = virtual
	n.mu.Unlock()
}

func (n *pointNamer) Name(pointID int64, isVirtual bool) string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if isVirtual {
		if name, ok := n.virtual[pointID]; ok {
			return name
		}
		return fmt.Sprintf("virtual_point_%d", pointID)
	}
	if name, ok := n.points[pointID]; ok {
		return name
	}
	return fmt.Sprintf("point_%d", pointID)
}
