package configstore

import (
	"encoding/json"
	"fmt"

	"github.com/pulseone-io/collector/pkg/model"
)

// UpsertCurrentValue persists a point's latest value, the durable
// counterpart to the cache's point:<device_id>_point_<i>:latest entry —
// cmd/collector reads it back through CurrentValue at bootstrap to seed the
// shared in-memory value store before the first live scan.
func (s *Store) UpsertCurrentValue(tv model.TimestampedValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	valueJSON, err := json.Marshal(tv.Value)
	if err != nil {
		return fmt.Errorf("encode point %d value: %w", tv.PointID, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO current_values (point_id, value_json, quality, timestamp_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(point_id) DO UPDATE SET value_json = excluded.value_json, quality = excluded.quality, timestamp_ms = excluded.timestamp_ms
	`, tv.PointID, string(valueJSON), int(tv.Quality), tv.TimestampMs)
	return err
}

// CurrentValue returns the last persisted value for a point, or
// (zero, false, nil) if none has been recorded.
func (s *Store) CurrentValue(pointID int64) (model.TimestampedValue, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var valueJSON string
	var quality int
	var tv model.TimestampedValue
	err := s.db.QueryRow(`SELECT value_json, quality, timestamp_ms FROM current_values WHERE point_id = ?`, pointID).
	Scan(&valueJSON, &quality, &tv.TimestampMs)
	if err == errNoRows {
		return model.TimestampedValue{}, false, nil
	}
	if err != nil {
		return model.TimestampedValue{}, false, translateScanErr(err)
	}
	if err := json.Unmarshal([]byte(valueJSON), &tv.Value); err != nil {
		return model.TimestampedValue{}, false, fmt.Errorf("point %d: decode value_json: %w", pointID, err)
	}
	tv.PointID = pointID
	tv.Quality = model.Quality(quality)
	tv.Source = "configstore"
	return tv, true, nil
}
