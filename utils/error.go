package utils

import "errors"

var (
	// ErrorInvalidField is returned when an edit targets a field outside the
	// editable allow-list. The cache and ledger are untouched.
	ErrorInvalidField = errors.New("field cannot be updated")

	// ErrorInvalidRowId is returned for a row id outside the current cache
	// generation (stale ids after a reload fall here too).
	ErrorInvalidRowId = errors.New("invalid row id")

	// ErrorSaveInFlight guards against overlapping save cycles: edits,
	// reloads and datasource switches are refused while a drain is running.
	ErrorSaveInFlight = errors.New("a save is already in progress")
)
