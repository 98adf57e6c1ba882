package domain

import (
	"fmt"

	"netfabric/internal/identity"
)

// InvalidTransitionError is returned when a command is rejected by the
// aggregate's current state. Recoverable: the caller decides what to
// do next. The aggregate is left untouched and no event is emitted.
type InvalidTransitionError struct {
	AggregateID identity.AggregateID
	Current     string
	Command     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("command %s rejected on aggregate %s: not valid in state %q", e.Command, e.AggregateID, e.Current)
}
