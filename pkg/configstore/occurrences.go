package configstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulseone-io/collector/pkg/model"
)

// SaveAlarmOccurrence inserts a new occurrence row and returns its
// store-assigned id. Implements alarm.Store.
func (s *Store) SaveAlarmOccurrence(occ model.AlarmOccurrence) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctxJSON, err := json.Marshal(occ.ContextData)
	if err != nil {
		return 0, fmt.Errorf("encode context_data: %w", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO alarm_occurrences
		(target_id, correlation_id, rule_id, tenant_id, occurrence_time, trigger_value, state, severity, cleared_time, ack_time, context_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, occ.TargetID, occ.CorrelationID, occ.RuleID, occ.TenantID, occ.OccurrenceTime, occ.TriggerValue,
		occ.State.String(), occ.Severity.String(), nullTime(occ.ClearedTime), nullTime(occ.AckTime), string(ctxJSON))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateAlarmOccurrence persists an occurrence's mutable fields (state,
// trigger_value, cleared/ack times). Implements alarm.Store.
func (s *Store) UpdateAlarmOccurrence(occ model.AlarmOccurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE alarm_occurrences
		SET trigger_value = ?, state = ?, cleared_time = ?, ack_time = ?
		WHERE id = ?
	`, occ.TriggerValue, occ.State.String(), nullTime(occ.ClearedTime), nullTime(occ.AckTime), occ.ID)
	return err
}

// FindActiveAlarmOccurrences returns every occurrence whose state is
// ACTIVE or ACKNOWLEDGED, for AlarmEngine's startup recovery pass.
// Implements alarm.Store.
func (s *Store) FindActiveAlarmOccurrences() ([]model.AlarmOccurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, target_id, correlation_id, rule_id, tenant_id, occurrence_time,
		trigger_value, state, severity, cleared_time, ack_time, context_json
		FROM alarm_occurrences
		WHERE state IN ('ACTIVE', 'ACKNOWLEDGED')
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var occs []model.AlarmOccurrence
	for rows.Next() {
		occ, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		occs = append(occs, occ)
	}
	return occs, rows.Err()
}

func scanOccurrence(sc scanner) (model.AlarmOccurrence, error) {
	var occ model.AlarmOccurrence
	var state, severity, ctxJSON string
	var clearedTime, ackTime sql.NullTime

	err := sc.Scan(
		&occ.ID, &occ.TargetID, &occ.CorrelationID, &occ.RuleID, &occ.TenantID, &occ.OccurrenceTime,
		&occ.TriggerValue, &state, &severity, &clearedTime, &ackTime, &ctxJSON,
	)
	if err != nil {
		return model.AlarmOccurrence{}, translateScanErr(err)
	}

	occ.State = parseState(state)
	sev, err := model.ParseSeverity(severity)
	if err != nil {
		return model.AlarmOccurrence{}, err
	}
	occ.Severity = sev
	if clearedTime.Valid {
		occ.ClearedTime = &clearedTime.Time
	}
	if ackTime.Valid {
		occ.AckTime = &ackTime.Time
	}
	if ctxJSON != "" {
		if err := json.Unmarshal([]byte(ctxJSON), &occ.ContextData); err != nil {
			return model.AlarmOccurrence{}, fmt.Errorf("occurrence %d: decode context_json: %w", occ.ID, err)
		}
	}
	return occ, nil
}

func parseState(s string) model.OccurrenceState {
	switch s {
	case "ACTIVE":
		return model.StateActive
	case "ACKNOWLEDGED":
		return model.StateAcknowledged
	case "CLEARED":
		return model.StateCleared
	default:
		return model.StateInactive
	}
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
