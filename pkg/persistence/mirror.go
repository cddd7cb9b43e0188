package persistence

import (
	"fmt"

	"github.com/pulseone-io/collector/pkg/model"
)

// Source is the subset of configstore.Store that Mirror fronts. It is
// narrowed to what bootstrap needs so persistence never imports
// pkg/configstore (avoiding an import cycle risk and keeping this package
// testable against a fake).
type Source interface {
	FindAllDevices() ([]model.Device, error)
	FindDataPointsByDeviceID(deviceID model.DeviceID) ([]model.DataPoint, error)
	FindAlarmRules(tenantID string) ([]model.AlarmRule, error)
	FindVirtualPoints(tenantID string) ([]model.VirtualPoint, error)
}

// Mirror reads the full fleet configuration from a Source, writing a
// fresh Snapshot to the cache on success. On failure, it falls back to
// the last cached Snapshot instead of propagating the error, so a
// ConfigStore outage at startup never prevents workers from running with
// stale-but-known-good configuration.
type Mirror struct {
	source Source
	cache *SnapshotCache
	tenant string
}

// NewMirror constructs a Mirror. tenant narrows FindAlarmRules/
// FindVirtualPoints; pass "" for every tenant.
func NewMirror(source Source, cache *SnapshotCache, tenant string) *Mirror {
	return &Mirror{source: source, cache: cache, tenant: tenant}
}

// Load returns the current fleet configuration, live from the Source
// when reachable, else the last cached Snapshot. stale reports whether
// the result came from the cache rather than a live read.
func (m *Mirror) Load() (snap *Snapshot, stale bool, err error) {
	live, liveErr := m.readLive()
	if liveErr == nil {
		if saveErr := m.cache.Save(live); saveErr != nil {
			return live, false, fmt.Errorf("snapshot saved read but cache write failed: %w", saveErr)
		}
		return live, false, nil
	}

	cached, cacheErr := m.cache.Load()
	if cacheErr != nil {
		return nil, false, fmt.Errorf("configstore read failed (%v) and snapshot cache unreadable: %w", liveErr, cacheErr)
	}
	if cached == nil {
		return nil, false, fmt.Errorf("configstore unreachable and no snapshot cache present: %w", liveErr)
	}
	return cached, true, nil
}

func (m *Mirror) readLive() (*Snapshot, error) {
	devices, err := m.source.FindAllDevices()
	if err != nil {
		return nil, fmt.Errorf("find devices: %w", err)
	}

	pointsByDevice := make(map[string][]model.DataPoint, len(devices))
	for _, d := range devices {
		points, err := m.source.FindDataPointsByDeviceID(d.ID)
		if err != nil {
			return nil, fmt.Errorf("find points for device %d: %w", d.ID, err)
		}
		pointsByDevice[d.ID.String()] = points
	}

	rules, err := m.source.FindAlarmRules(m.tenant)
	if err != nil {
		return nil, fmt.Errorf("find alarm rules: %w", err)
	}

	vps, err := m.source.FindVirtualPoints(m.tenant)
	if err != nil {
		return nil, fmt.Errorf("find virtual points: %w", err)
	}

	return &Snapshot{
		Devices: devices,
		PointsByDevice: pointsByDevice,
		AlarmRules: rules,
		VirtualPoints: vps,
	}, nil
}
