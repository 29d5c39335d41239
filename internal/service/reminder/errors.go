package reminder

import "errors"

// Sentinel errors for the reminder engine.
var (
	ErrRuleNotFound = errors.New("reminder rule not found")
	ErrKindMismatch = errors.New("rule kind does not match task kind")
	ErrNoScanner    = errors.New("no trigger scanner registered for kind")
)
