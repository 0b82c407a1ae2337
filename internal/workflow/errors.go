package workflow

import (
	"fmt"

	"creditline/internal/domain"
)

// GenericRefusal is the single message shown to end users for both
// authorization and state refusals; callers that need to tell them apart
// match the error types below.
const GenericRefusal = "action not permitted for current role or dossier state"

// UnauthorizedError covers an unresolvable actor role as well as a known
// role with no rule entry for the requested action.
type UnauthorizedError struct {
	ActorID string
	Role    domain.Role
	Action  Action
}

func (e UnauthorizedError) Error() string { return GenericRefusal }

// IllegalStateError means the role/action pair exists in the rule table but
// the dossier's current agent status is not in the allowed-from set.
type IllegalStateError struct {
	Action Action
	Status domain.AgentStatus
}

func (e IllegalStateError) Error() string { return GenericRefusal }

// UnknownActionError means the action name is not in the rule table at all.
type UnknownActionError struct {
	Action Action
}

func (e UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", string(e.Action))
}

// MissingReasonError means an action that requires a reason comment was
// invoked without one.
type MissingReasonError struct {
	Action Action
}

func (e MissingReasonError) Error() string {
	return fmt.Sprintf("action %s requires a reason comment", string(e.Action))
}

// ConflictError means the dossier moved between the status check and the
// guarded update; the caller may re-read and retry.
type ConflictError struct {
	Reference string
	Expected  domain.AgentStatus
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("dossier %s changed concurrently", e.Reference)
}

// ValidationError means a dossier invariant was violated at construction.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
