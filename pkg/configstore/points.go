package configstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	"github.com/pulseone-io/collector/pkg/model"
)

// FindDataPointsByDeviceID returns every configured point for a device,
// enabled or not; cmd/collector's enabledPointStore filters on Enabled.
func (s *Store) FindDataPointsByDeviceID(deviceID model.DeviceID) ([]model.DataPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, device_id, name, address, data_type, unit,
		scaling_factor, scaling_offset, min_value, max_value, deadband,
		writable, enabled, protocol_params_json
		FROM data_points WHERE device_id = ? ORDER BY id
	`, int64(deviceID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []model.DataPoint
	for rows.Next() {
		p, err := scanDataPoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func scanDataPoint(sc scanner) (model.DataPoint, error) {
	var p model.DataPoint
	var id, deviceID int64
	var dataType string
	var minValue, maxValue sql.NullFloat64
	var writable, enabled int
	var paramsJSON string

	err := sc.Scan(
		&id, &deviceID, &p.Name, &p.Address, &dataType, &p.Unit,
		&p.ScalingFactor, &p.ScalingOffset, &minValue, &maxValue, &p.Deadband,
		&writable, &enabled, &paramsJSON,
	)
	if err != nil {
		return model.DataPoint{}, translateScanErr(err)
	}

	p.ID = id
	p.DeviceID = model.DeviceID(deviceID)
	p.DataType = model.DataType(dataType)
	p.Writable = writable != 0
	p.Enabled = enabled != 0
	if minValue.Valid {
		p.MinValue = minValue.Float64
	} else {
		p.MinValue = math.Inf(-1)
	}
	if maxValue.Valid {
		p.MaxValue = maxValue.Float64
	} else {
		p.MaxValue = math.Inf(1)
	}
	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &p.ProtocolParams); err != nil {
			return model.DataPoint{}, fmt.Errorf("point %d: decode protocol_params_json: %w", id, err)
		}
	}
	return p, nil
}
