package engine

import (
	"errors"
	"fmt"

	"parley/internal/domain"
)

// ErrInvalidPhase marks operations attempted outside their legal phase.
// The session is never mutated when this is returned.
var ErrInvalidPhase = errors.New("invalid phase transition")

func phaseErr(op string, phase domain.Phase) error {
	return fmt.Errorf("%w: %s not allowed in phase %s", ErrInvalidPhase, op, phase)
}

// ErrDeepDiveActive rejects opening a second deep dive while one is open.
var ErrDeepDiveActive = errors.New("another deep dive is still active")

// ErrDeepDiveIncomplete rejects milestone synthesis before the deep dive
// reaches its final stage.
var ErrDeepDiveIncomplete = errors.New("deep dive has not completed all stages")
