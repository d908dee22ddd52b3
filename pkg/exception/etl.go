package exception

import "errors"

// ETL pipeline errors
var (
	ErrSourceUnavailable = errors.New("etl: source unavailable, retries exhausted")
	ErrRunInProgress     = errors.New("etl: another run is already in progress")
	ErrLoadFailure       = errors.New("etl: batch load failed")
	ErrValidation        = errors.New("etl: record validation failed")
	ErrAuthentication    = errors.New("etl: source authentication failed")
	ErrCursorRegression  = errors.New("etl: checkpoint cursor would regress")
	ErrUnknownSource     = errors.New("etl: unknown source")
	ErrUnknownRun        = errors.New("etl: run not found")
	ErrInjectedFailure   = errors.New("etl: injected failure")
	ErrInvalidTransition = errors.New("etl: invalid source state transition")
)
