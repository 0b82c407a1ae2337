// Package journal writes the append-only audit trail of a dossier. Entries
// are inserted inside the caller's transaction so a status mutation and its
// journal line commit or roll back together. Nothing in this package (or
// anywhere else) updates or deletes an entry.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"creditline/internal/domain"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append inserts the entry within tx and returns it with the server-assigned
// id and timestamp filled in.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, entry domain.JournalEntry) (domain.JournalEntry, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	entry.CreatedAt = now().UTC().Format(time.RFC3339)
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	data, err := json.Marshal(entry.Metadata)
	if err != nil {
		return entry, fmt.Errorf("marshal journal metadata: %w", err)
	}
	var from any
	if entry.FromStatus != nil {
		from = string(*entry.FromStatus)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO journal_entries(reference,kind,from_status,to_status,actor_id,comment,metadata_json,created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		entry.Reference, string(entry.Kind), from, string(entry.ToStatus), entry.ActorID, nullable(entry.Comment), string(data), entry.CreatedAt)
	if err != nil {
		return entry, fmt.Errorf("append journal entry: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return entry, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
