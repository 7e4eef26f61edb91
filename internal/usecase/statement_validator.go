package usecase

import (
	"errors"
	"fmt"
	"slices"

	"periodic-engine/internal/domain"
)

type statementValidator struct{}

// NewStatementValidator returns the validator used on every submission.
func NewStatementValidator() domain.Validator {
	return statementValidator{}
}

// Check rejects stmt unless its mode is one of allowed.
func (statementValidator) Check(stmt domain.Statement, allowed ...domain.StatementMode) error {
	mode := stmt.Mode()
	if slices.Contains(allowed, mode) {
		return nil
	}
	return fmt.Errorf("%w: %w: %q needs %s mode, allowed %v", domain.ErrInvalidConfig, domain.ErrDisallowedMode, stmt.String(), mode, allowed)
}

// checkDefinition validates every statement of def. Sources must only
// read; actions and predicates may use any of allowed.
func checkDefinition(v domain.Validator, def *domain.JobDefinition, allowed []domain.StatementMode) error {
	var errs []error
	if err := v.Check(def.Source, domain.ModeRead); err != nil {
		errs = append(errs, fmt.Errorf("source: %w", err))
	}
	if err := v.Check(def.Action, allowed...); err != nil {
		errs = append(errs, fmt.Errorf("action: %w", err))
	}
	if def.Kind == domain.JobKindLoop && def.Predicate != nil {
		if err := v.Check(*def.Predicate, allowed...); err != nil {
			errs = append(errs, fmt.Errorf("predicate: %w", err))
		}
	}
	return errors.Join(errs...)
}
