package domain

import "fmt"

// StatementMode classifies what a statement is allowed to do.
type StatementMode string

const (
	ModeRead   StatementMode = "read"
	ModeWrite  StatementMode = "write"
	ModeSchema StatementMode = "schema"
)

// Statement is anything a job executes on the caller's behalf: its action,
// its work source or its loop predicate.
type Statement interface {
	Mode() StatementMode
	fmt.Stringer
}

// Validator rejects statements whose mode is not in the allowed set.
type Validator interface {
	Check(stmt Statement, allowed ...StatementMode) error
}
