package configstore

import (
	"database/sql"
	"errors"
)

// errNoRows is returned by the scan* helpers (never by callers) so a
// "not found" single-row query can be told apart from a real scan failure
// without every caller importing database/sql.
var errNoRows = sql.ErrNoRows

func translateScanErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errNoRows
	}
	return err
}
