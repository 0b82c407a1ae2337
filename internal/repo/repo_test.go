package repo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditline/internal/config"
	"creditline/internal/db"
	"creditline/internal/domain"
	"creditline/internal/migrate"
	"creditline/internal/repo"
)

func newTestRepo(t *testing.T) *repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.New(conn)
}

func insertDossier(t *testing.T, r *repo.Repo, reference, clientID string, submittedAt string) domain.Dossier {
	t.Helper()
	ctx := context.Background()
	d := domain.Dossier{
		Reference:      reference,
		ClientID:       clientID,
		Product:        "personal_loan",
		Amount:         10_000,
		DurationMonths: 24,
		AgentStatus:    domain.AgentNew,
		ClientStatus:   domain.ClientPending,
		SubmittedAt:    submittedAt,
		UpdatedAt:      submittedAt,
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.InsertDossierTx(ctx, tx, d))
	require.NoError(t, tx.Commit())
	return d
}

func TestGuardedTransitionUpdate(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	insertDossier(t, r, "CR-2026-000001", "cli-1", "2026-01-01T00:00:00Z")

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	applied, err := r.UpdateDossierTransitionTx(ctx, tx, "CR-2026-000001",
		domain.AgentNew, domain.AgentTransmittedToAnalyst, domain.ClientInProgress, "mgr-1")
	require.NoError(t, err)
	assert.True(t, applied)
	require.NoError(t, tx.Commit())

	// a writer holding a stale snapshot must not win
	tx, err = r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	applied, err = r.UpdateDossierTransitionTx(ctx, tx, "CR-2026-000001",
		domain.AgentNew, domain.AgentTransmittedToAnalyst, domain.ClientInProgress, "mgr-2")
	require.NoError(t, err)
	assert.False(t, applied)
	require.NoError(t, tx.Rollback())

	d, err := r.GetDossier(ctx, "CR-2026-000001")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentTransmittedToAnalyst, d.AgentStatus)
	require.NotNil(t, d.AssignedActorID)
	assert.Equal(t, "mgr-1", *d.AssignedActorID)
}

func TestListDossiersFilterAndCursor(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ref := fmt.Sprintf("CR-2026-%06d", i)
		client := "cli-a"
		if i%2 == 1 {
			client = "cli-b"
		}
		insertDossier(t, r, ref, client, base.Add(time.Duration(i)*time.Minute).Format(time.RFC3339))
	}

	all, err := r.ListDossiers(ctx, repo.DossierFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].SubmittedAt, all[i].SubmittedAt)
	}

	page, err := r.ListDossiers(ctx, repo.DossierFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	rest, err := r.ListDossiers(ctx, repo.DossierFilter{AfterReference: page[1].Reference})
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.NotEqual(t, page[1].Reference, rest[0].Reference)

	byClient, err := r.ListDossiers(ctx, repo.DossierFilter{ClientID: "cli-b"})
	require.NoError(t, err)
	assert.Len(t, byClient, 2)

	byStatus, err := r.ListDossiers(ctx, repo.DossierFilter{AgentStatus: domain.AgentApproved})
	require.NoError(t, err)
	assert.Empty(t, byStatus)
}

func TestArchiveFilter(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	insertDossier(t, r, "CR-2026-000001", "cli-1", "2026-01-01T00:00:00Z")
	insertDossier(t, r, "CR-2026-000002", "cli-1", "2026-01-01T00:01:00Z")

	require.NoError(t, r.SetDossierArchived(ctx, "CR-2026-000001", true))
	assert.ErrorIs(t, r.SetDossierArchived(ctx, "CR-2026-nope", true), repo.ErrNotFound)

	archived := true
	got, err := r.ListDossiers(ctx, repo.DossierFilter{Archived: &archived})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "CR-2026-000001", got[0].Reference)

	live := false
	got, err = r.ListDossiers(ctx, repo.DossierFilter{Archived: &live})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "CR-2026-000002", got[0].Reference)
}

func TestAPIKeyRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	_, err := r.UpsertActor(ctx, domain.Actor{ID: "mgr-1", Role: domain.RoleAccountManager, Active: true})
	require.NoError(t, err)

	key, secret, err := r.CreateAPIKey(ctx, "mgr-1", "ci")
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.NotContains(t, key.KeyHash, secret)

	actorID, err := r.ActorByAPIKey(ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, "mgr-1", actorID)

	_, err = r.ActorByAPIKey(ctx, "clk_bogus")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	require.NoError(t, r.DeleteAPIKey(ctx, key.ID))
	_, err = r.ActorByAPIKey(ctx, secret)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestNotificationReadScopedToOwner(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	n, err := r.InsertNotification(ctx, domain.Notification{
		ActorID: "ana-1", Kind: "dossier.transition", Title: "t", Body: "b",
	})
	require.NoError(t, err)

	assert.ErrorIs(t, r.MarkNotificationRead(ctx, "ana-2", n.ID), repo.ErrNotFound)
	require.NoError(t, r.MarkNotificationRead(ctx, "ana-1", n.ID))
	// already read
	assert.ErrorIs(t, r.MarkNotificationRead(ctx, "ana-1", n.ID), repo.ErrNotFound)

	unread, err := r.ListNotifications(ctx, "ana-1", true, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestConfigStore(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, err := r.LoadConfig(ctx, "default")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	cfg := config.Default()
	require.NoError(t, r.SaveConfig(ctx, cfg))
	got, err := r.LoadConfig(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, cfg.Bank, got.Bank)
	assert.Len(t, got.Products, len(cfg.Products))

	cfg.Bank = "Another Bank"
	require.NoError(t, r.SaveConfig(ctx, cfg))
	got, err = r.LoadConfig(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "Another Bank", got.Bank)
}
