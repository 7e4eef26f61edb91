package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"periodic-engine/internal/domain"
)

// PreviousEnv holds the JSON encoded previous loop value for predicate commands.
const PreviousEnv = "PERIODIC_PREVIOUS"

type shellPredicate struct {
	spec    domain.PredicateSpec
	command string
	timeout time.Duration
}

// NewShellPredicate returns a predicate that runs spec.Command and reads the
// loop value from a field of the JSON object it prints.
func NewShellPredicate(spec domain.PredicateSpec) (domain.Predicate, error) {
	if strings.TrimSpace(spec.Command) == "" {
		return nil, fmt.Errorf("%w: shell predicate needs a command", domain.ErrInvalidConfig)
	}
	return &shellPredicate{spec: spec, command: spec.Command, timeout: DefaultCommandTimeout}, nil
}

func (p *shellPredicate) Evaluate(ctx context.Context, previous any) (any, error) {
	prev, err := json.Marshal(previous)
	if err != nil {
		return nil, fmt.Errorf("failed to encode previous value: %w", err)
	}
	env := append(os.Environ(), PreviousEnv+"="+string(prev))

	output, _, err := run(ctx, p.command, p.timeout, nil, env)
	if err != nil {
		return nil, err
	}

	return p.spec.DecodeValue(strings.NewReader(output))
}
