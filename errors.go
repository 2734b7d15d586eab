package xlpivot

import "errors"

var (
	// ErrUnknownPivot is returned when a formula or call references a pivot id
	// that is not registered in the store.
	ErrUnknownPivot = errors.New("unknown pivot")

	// ErrNotImplemented is returned for aggregation operators that are
	// recognized but not supported (array_agg).
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnknownOperator is returned for aggregation operators that are not
	// recognized at all.
	ErrUnknownOperator = errors.New("unknown aggregation operator")

	// ErrInvalidFormula is returned when a formula cannot be parsed or has the
	// wrong shape for a pivot function.
	ErrInvalidFormula = errors.New("invalid formula")

	// ErrUnknownMeasure is returned when a PIVOT formula names a measure the
	// pivot does not define.
	ErrUnknownMeasure = errors.New("unknown measure")

	// ErrPositionOutOfRange is returned when PIVOT.POSITION points past the
	// values of a field.
	ErrPositionOutOfRange = errors.New("position out of range")

	// errStaleFetch marks a cache build superseded by a newer fetch token.
	errStaleFetch = errors.New("stale pivot fetch")
)
