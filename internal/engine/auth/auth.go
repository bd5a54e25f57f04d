package auth

import (
	"fmt"

	"escrowline/internal/domain"
)

// UnauthorizedError indicates the actor is not the party allowed to act.
type UnauthorizedError struct {
	ActorID  string
	Action   string
	Required domain.Role
}

func (e UnauthorizedError) Error() string {
	if e.Required == "" {
		return fmt.Sprintf("actor %s is not a party to this contract (%s)", e.ActorID, e.Action)
	}
	return fmt.Sprintf("only the %s may %s", e.Required, e.Action)
}

func (e UnauthorizedError) Is(target error) bool {
	return target == domain.ErrUnauthorized
}

// RequireClient checks that actorID is the contract's client.
func RequireClient(c domain.Contract, actorID, action string) error {
	if actorID == "" || actorID != c.ClientID {
		return UnauthorizedError{ActorID: actorID, Action: action, Required: domain.RoleClient}
	}
	return nil
}

// RequireFreelancer checks that actorID is the contract's freelancer.
func RequireFreelancer(c domain.Contract, actorID, action string) error {
	if actorID == "" || actorID != c.FreelancerID {
		return UnauthorizedError{ActorID: actorID, Action: action, Required: domain.RoleFreelancer}
	}
	return nil
}

// RequireParty returns the actor's role when it is either party.
func RequireParty(c domain.Contract, actorID, action string) (domain.Role, error) {
	role, ok := c.RoleOf(actorID)
	if !ok {
		return "", UnauthorizedError{ActorID: actorID, Action: action}
	}
	return role, nil
}
