package workflow

import (
	"context"

	"creditline/internal/domain"
	"creditline/internal/repo"
)

// RoleRegistry resolves the single role an actor holds. An actor the
// registry cannot resolve gets RoleUnknown and every action is refused.
type RoleRegistry interface {
	RoleOf(ctx context.Context, actorID string) (domain.Role, error)
}

type repoRegistry struct {
	repo *repo.Repo
}

// NewRegistry returns the registry backed by the actors table. Lookup errors
// propagate so the engine fails closed instead of guessing a role.
func NewRegistry(r *repo.Repo) RoleRegistry {
	return repoRegistry{repo: r}
}

func (g repoRegistry) RoleOf(ctx context.Context, actorID string) (domain.Role, error) {
	return g.repo.ActorRole(ctx, actorID)
}
