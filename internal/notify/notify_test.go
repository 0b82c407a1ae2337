package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditline/internal/db"
	"creditline/internal/domain"
	"creditline/internal/migrate"
	"creditline/internal/notify"
	"creditline/internal/repo"
)

type fakeMailer struct {
	sent []string
	fail bool
}

func (m *fakeMailer) SendMail(ctx context.Context, to, subject, body string) error {
	if m.fail {
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, to)
	return nil
}

func newTestRepo(t *testing.T) *repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.New(conn)
}

func TestRoleBroadcastSkipsInactive(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	for _, a := range []domain.Actor{
		{ID: "ana-1", Role: domain.RoleCreditAnalyst, Active: true},
		{ID: "ana-2", Role: domain.RoleCreditAnalyst, Active: true},
		{ID: "ana-off", Role: domain.RoleCreditAnalyst, Active: false},
		{ID: "mgr-1", Role: domain.RoleAccountManager, Active: true},
	} {
		_, err := r.UpsertActor(ctx, a)
		require.NoError(t, err)
	}

	svc := &notify.Service{Repo: r}
	n, err := svc.Send(ctx, domain.NotificationRequest{
		Reference:  "CR-2026-aaaaaa",
		TargetRole: domain.RoleCreditAnalyst,
		Kind:       "dossier.transition",
		Title:      "Dossier awaiting analysis",
		Body:       "body",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{"ana-1", "ana-2"} {
		items, err := r.ListNotifications(ctx, id, true, 0)
		require.NoError(t, err)
		assert.Len(t, items, 1)
	}
	items, err := r.ListNotifications(ctx, "ana-off", false, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	items, err = r.ListNotifications(ctx, "mgr-1", false, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDirectTargetWithoutProfile(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	svc := &notify.Service{Repo: r}
	n, err := svc.Send(ctx, domain.NotificationRequest{
		TargetActorID: "cli-unregistered",
		Kind:          "dossier.received",
		Title:         "Application received",
		Body:          "body",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, err := r.ListNotifications(ctx, "cli-unregistered", false, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "dossier.received", items[0].Kind)
}

func TestMailerFailureDoesNotBlockStorage(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	_, err := r.UpsertActor(ctx, domain.Actor{
		ID: "cli-1", Role: domain.RoleClient, Active: true, Email: "cli@example.test",
	})
	require.NoError(t, err)

	mailer := &fakeMailer{fail: true}
	svc := &notify.Service{Repo: r, Mailer: mailer}
	n, err := svc.Send(ctx, domain.NotificationRequest{
		TargetActorID: "cli-1",
		Kind:          "dossier.approval",
		Title:         "Approved",
		Body:          "body",
		Email:         true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, err := r.ListNotifications(ctx, "cli-1", false, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestMailSentWhenRequested(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	_, err := r.UpsertActor(ctx, domain.Actor{
		ID: "cli-1", Role: domain.RoleClient, Active: true, Email: "cli@example.test",
	})
	require.NoError(t, err)

	mailer := &fakeMailer{}
	svc := &notify.Service{Repo: r, Mailer: mailer}
	_, err = svc.Send(ctx, domain.NotificationRequest{
		TargetActorID: "cli-1",
		Kind:          "dossier.approval",
		Title:         "Approved",
		Body:          "body",
		Email:         true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cli@example.test"}, mailer.sent)

	// in-app only when email not requested
	_, err = svc.Send(ctx, domain.NotificationRequest{
		TargetActorID: "cli-1",
		Kind:          "dossier.transition",
		Title:         "Moving along",
		Body:          "body",
	})
	require.NoError(t, err)
	assert.Len(t, mailer.sent, 1)
}

func TestTargetlessRequestRejected(t *testing.T) {
	r := newTestRepo(t)
	svc := &notify.Service{Repo: r}
	_, err := svc.Send(context.Background(), domain.NotificationRequest{Kind: "dossier.transition"})
	assert.Error(t, err)
}
