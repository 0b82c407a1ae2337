// Package repo is the SQL data access layer. All statements are hand written;
// the schema lives in internal/migrate/sql.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"creditline/internal/config"
	"creditline/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

func New(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

func (r *Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Repo) stamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

// InsertDossierTx creates the dossier row inside tx.
func (r *Repo) InsertDossierTx(ctx context.Context, tx *sql.Tx, d domain.Dossier) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO dossiers(reference,client_id,product,amount,duration_months,agent_status,client_status,assigned_actor_id,archived,submitted_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		d.Reference, d.ClientID, d.Product, d.Amount, d.DurationMonths,
		string(d.AgentStatus), string(d.ClientStatus), nullablePtr(d.AssignedActorID),
		boolInt(d.Archived), d.SubmittedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert dossier %s: %w", d.Reference, err)
	}
	return nil
}

const dossierColumns = `reference,client_id,product,amount,duration_months,agent_status,client_status,assigned_actor_id,archived,submitted_at,updated_at`

func scanDossier(row interface{ Scan(...any) error }) (domain.Dossier, error) {
	var d domain.Dossier
	var assigned sql.NullString
	var archived int
	err := row.Scan(&d.Reference, &d.ClientID, &d.Product, &d.Amount, &d.DurationMonths,
		&d.AgentStatus, &d.ClientStatus, &assigned, &archived, &d.SubmittedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}
	if assigned.Valid {
		v := assigned.String
		d.AssignedActorID = &v
	}
	d.Archived = archived != 0
	return d, nil
}

// GetDossier loads a dossier by reference.
func (r *Repo) GetDossier(ctx context.Context, reference string) (domain.Dossier, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+dossierColumns+` FROM dossiers WHERE reference=?`, reference)
	d, err := scanDossier(row)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, fmt.Errorf("get dossier %s: %w", reference, err)
	}
	return d, nil
}

// GetDossierTx loads a dossier inside an open transaction.
func (r *Repo) GetDossierTx(ctx context.Context, tx *sql.Tx, reference string) (domain.Dossier, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+dossierColumns+` FROM dossiers WHERE reference=?`, reference)
	d, err := scanDossier(row)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, fmt.Errorf("get dossier %s: %w", reference, err)
	}
	return d, nil
}

// UpdateDossierTransitionTx moves the dossier's statuses and records the
// acting actor, guarded by the agent status the caller read. Zero rows
// affected means another writer got there first.
func (r *Repo) UpdateDossierTransitionTx(ctx context.Context, tx *sql.Tx, reference string, expect domain.AgentStatus, nextAgent domain.AgentStatus, nextClient domain.ClientStatus, actorID string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE dossiers SET agent_status=?, client_status=?, assigned_actor_id=?, updated_at=? WHERE reference=? AND agent_status=?`,
		string(nextAgent), string(nextClient), nullable(actorID), r.stamp(), reference, string(expect))
	if err != nil {
		return false, fmt.Errorf("update dossier %s: %w", reference, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DossierFilter narrows ListDossiers. Zero values mean "no constraint".
type DossierFilter struct {
	ClientID    string
	AgentStatus domain.AgentStatus
	Product     string
	AssigneeID  string
	Archived    *bool
	// AfterReference is a keyset cursor: return dossiers strictly after it in
	// (submitted_at, reference) order.
	AfterReference string
	Limit          int
}

// ListDossiers returns dossiers ordered by submission time then reference,
// oldest first, paged by keyset cursor.
func (r *Repo) ListDossiers(ctx context.Context, f DossierFilter) ([]domain.Dossier, error) {
	var where []string
	var args []any
	if f.ClientID != "" {
		where = append(where, "client_id=?")
		args = append(args, f.ClientID)
	}
	if f.AgentStatus != "" {
		where = append(where, "agent_status=?")
		args = append(args, string(f.AgentStatus))
	}
	if f.Product != "" {
		where = append(where, "product=?")
		args = append(args, f.Product)
	}
	if f.AssigneeID != "" {
		where = append(where, "assigned_actor_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.Archived != nil {
		where = append(where, "archived=?")
		args = append(args, boolInt(*f.Archived))
	}
	if f.AfterReference != "" {
		where = append(where, "(submitted_at, reference) > (SELECT submitted_at, reference FROM dossiers WHERE reference=?)")
		args = append(args, f.AfterReference)
	}
	q := `SELECT ` + dossierColumns + ` FROM dossiers`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY submitted_at, reference"
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list dossiers: %w", err)
	}
	defer rows.Close()
	var out []domain.Dossier
	for rows.Next() {
		d, err := scanDossier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetDossierArchived flips the archive flag without touching workflow state.
func (r *Repo) SetDossierArchived(ctx context.Context, reference string, archived bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE dossiers SET archived=?, updated_at=? WHERE reference=?`,
		boolInt(archived), r.stamp(), reference)
	if err != nil {
		return fmt.Errorf("archive dossier %s: %w", reference, err)
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

// JournalEntries returns the full trail for a dossier. Oldest first unless
// newestFirst is set.
func (r *Repo) JournalEntries(ctx context.Context, reference string, newestFirst bool) ([]domain.JournalEntry, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,reference,kind,from_status,to_status,actor_id,comment,metadata_json,created_at
FROM journal_entries WHERE reference=? ORDER BY id `+order, reference)
	if err != nil {
		return nil, fmt.Errorf("journal for %s: %w", reference, err)
	}
	defer rows.Close()
	var out []domain.JournalEntry
	for rows.Next() {
		var e domain.JournalEntry
		var from, comment sql.NullString
		var metadata string
		if err := rows.Scan(&e.ID, &e.Reference, &e.Kind, &from, &e.ToStatus, &e.ActorID, &comment, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		if from.Valid {
			v := domain.AgentStatus(from.String)
			e.FromStatus = &v
		}
		e.Comment = comment.String
		if metadata != "" {
			_ = json.Unmarshal([]byte(metadata), &e.Metadata)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LoadConfig returns the stored config by name, or ErrNotFound.
func (r *Repo) LoadConfig(ctx context.Context, name string) (*config.Config, error) {
	var raw string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM configs WHERE name=?`, name).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", name, err)
	}
	var c config.Config
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", name, err)
	}
	return &c, nil
}

// SaveConfig upserts a config document.
func (r *Repo) SaveConfig(ctx context.Context, c *config.Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	now := r.stamp()
	_, err = r.DB.ExecContext(ctx, `INSERT INTO configs(name,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(name) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`,
		c.Name, string(data), now, now)
	if err != nil {
		return fmt.Errorf("save config %s: %w", c.Name, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
