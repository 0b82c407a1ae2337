package repo

import (
	"context"
	"database/sql"
	"fmt"

	"creditline/internal/domain"
)

const actorColumns = `id,full_name,email,role,active,created_at,updated_at`

func scanActor(row interface{ Scan(...any) error }) (domain.Actor, error) {
	var a domain.Actor
	var fullName, email sql.NullString
	var active int
	err := row.Scan(&a.ID, &fullName, &email, &a.Role, &active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	a.FullName = fullName.String
	a.Email = email.String
	a.Active = active != 0
	return a, nil
}

// UpsertActor creates or updates an actor profile.
func (r *Repo) UpsertActor(ctx context.Context, a domain.Actor) (domain.Actor, error) {
	now := r.stamp()
	if a.CreatedAt == "" {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	_, err := r.DB.ExecContext(ctx, `INSERT INTO actors(id,full_name,email,role,active,created_at,updated_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET full_name=excluded.full_name, email=excluded.email, role=excluded.role, active=excluded.active, updated_at=excluded.updated_at`,
		a.ID, nullable(a.FullName), nullable(a.Email), string(a.Role), boolInt(a.Active), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return a, fmt.Errorf("upsert actor %s: %w", a.ID, err)
	}
	return r.GetActor(ctx, a.ID)
}

// GetActor loads an actor by id.
func (r *Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+actorColumns+` FROM actors WHERE id=?`, id)
	a, err := scanActor(row)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, fmt.Errorf("get actor %s: %w", id, err)
	}
	return a, nil
}

// ActorRole returns the role of an actor, RoleUnknown when missing or
// deactivated.
func (r *Repo) ActorRole(ctx context.Context, id string) (domain.Role, error) {
	var role string
	var active int
	err := r.DB.QueryRowContext(ctx, `SELECT role, active FROM actors WHERE id=?`, id).Scan(&role, &active)
	if err == sql.ErrNoRows {
		return domain.RoleUnknown, nil
	}
	if err != nil {
		return domain.RoleUnknown, fmt.Errorf("role of %s: %w", id, err)
	}
	if active == 0 {
		return domain.RoleUnknown, nil
	}
	return domain.Role(role), nil
}

// SetActorRole reassigns an actor's single role.
func (r *Repo) SetActorRole(ctx context.Context, id string, role domain.Role) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE actors SET role=?, updated_at=? WHERE id=?`,
		string(role), r.stamp(), id)
	if err != nil {
		return fmt.Errorf("set role of %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActorActive toggles an actor on or off.
func (r *Repo) SetActorActive(ctx context.Context, id string, active bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE actors SET active=?, updated_at=? WHERE id=?`,
		boolInt(active), r.stamp(), id)
	if err != nil {
		return fmt.Errorf("set active of %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActors returns all actors, optionally filtered by role.
func (r *Repo) ListActors(ctx context.Context, role domain.Role) ([]domain.Actor, error) {
	q := `SELECT ` + actorColumns + ` FROM actors`
	var args []any
	if role != domain.RoleUnknown {
		q += ` WHERE role=?`
		args = append(args, string(role))
	}
	q += ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list actors: %w", err)
	}
	defer rows.Close()
	var out []domain.Actor
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ActiveActorsByRole returns active actors holding the role; the broadcast
// target set for notifications.
func (r *Repo) ActiveActorsByRole(ctx context.Context, role domain.Role) ([]domain.Actor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+actorColumns+` FROM actors WHERE role=? AND active=1 ORDER BY id`, string(role))
	if err != nil {
		return nil, fmt.Errorf("actors by role %s: %w", role, err)
	}
	defer rows.Close()
	var out []domain.Actor
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
