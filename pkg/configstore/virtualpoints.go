package configstore

import "github.com/pulseone-io/collector/pkg/model"

// FindVirtualPoints returns every virtual point (with its inputs),
// optionally narrowed to a tenant.
func (s *Store) FindVirtualPoints(tenantID string) ([]model.VirtualPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, tenant_id, name, formula, trigger, interval_ms, error_handling, data_type, enabled
		FROM virtual_points`
	args := []any{}
	if tenantID != "" {
		query += " WHERE tenant_id = ?"
		args = append(args, tenantID)
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vps []model.VirtualPoint
	for rows.Next() {
		vp, err := scanVirtualPoint(rows)
		if err != nil {
			return nil, err
		}
		vps = append(vps, vp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range vps {
		inputs, err := s.inputsFor(vps[i].ID)
		if err != nil {
			return nil, err
		}
		vps[i].Inputs = inputs
	}
	return vps, nil
}

func scanVirtualPoint(sc scanner) (model.VirtualPoint, error) {
	var vp model.VirtualPoint
	var trigger, errorHandling, dataType string
	var enabled int

	err := sc.Scan(&vp.ID, &vp.TenantID, &vp.Name, &vp.Formula, &trigger, &vp.IntervalMs, &errorHandling, &dataType, &enabled)
	if err != nil {
		return model.VirtualPoint{}, translateScanErr(err)
	}
	vp.Trigger = model.VPTrigger(trigger)
	vp.ErrorHandling = model.ErrorHandling(errorHandling)
	vp.DataType = model.DataType(dataType)
	vp.Enabled = enabled != 0
	return vp, nil
}

// inputsFor must be called with s.mu already held (read or write).
func (s *Store) inputsFor(virtualPointID int64) ([]model.VirtualPointInput, error) {
	rows, err := s.db.Query(`
		SELECT alias, source_point_id, is_virtual
		FROM virtual_point_inputs WHERE virtual_point_id = ? ORDER BY rowid
	`, virtualPointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inputs []model.VirtualPointInput
	for rows.Next() {
		var in model.VirtualPointInput
		var isVirtual int
		if err := rows.Scan(&in.Alias, &in.SourcePointID, &isVirtual); err != nil {
			return nil, err
		}
		in.IsVirtual = isVirtual != 0
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}
