package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"creditline/internal/config"
	"creditline/internal/db"
	"creditline/internal/domain"
	"creditline/internal/journal"
	"creditline/internal/migrate"
	"creditline/internal/notify"
	"creditline/internal/repo"
	"creditline/internal/workflow"
)

type testEnv struct {
	Engine workflow.Engine
	Repo   *repo.Repo
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	r := repo.New(conn)
	r.Now = now
	ctx := context.Background()
	seed := []domain.Actor{
		{ID: "cli-1", Role: domain.RoleClient, Active: true},
		{ID: "mgr-1", Role: domain.RoleAccountManager, Active: true, Email: "mgr@example.test"},
		{ID: "ana-1", Role: domain.RoleCreditAnalyst, Active: true},
		{ID: "ana-2", Role: domain.RoleCreditAnalyst, Active: true},
		{ID: "ana-gone", Role: domain.RoleCreditAnalyst, Active: false},
		{ID: "rcl-1", Role: domain.RoleRiskCommitteeLead, Active: true},
		{ID: "boo-1", Role: domain.RoleBackOfficeOfficer, Active: true},
	}
	for _, a := range seed {
		if _, err := r.UpsertActor(ctx, a); err != nil {
			t.Fatalf("seed actor %s: %v", a.ID, err)
		}
	}
	eng := workflow.Engine{
		DB:         conn,
		Repo:       r,
		Journal:    journal.Writer{DB: conn, Now: now},
		Registry:   workflow.NewRegistry(r),
		Dispatcher: &notify.Service{Repo: r},
		Config:     config.Default(),
		Now:        now,
	}
	return testEnv{Engine: eng, Repo: r, Ctx: ctx}
}

func mustCreate(t *testing.T, env testEnv) domain.Dossier {
	t.Helper()
	d, err := env.Engine.CreateDossier(env.Ctx, workflow.CreateDossierOptions{
		ClientID:       "cli-1",
		Product:        "personal_loan",
		Amount:         10_000,
		DurationMonths: 24,
	})
	if err != nil {
		t.Fatalf("create dossier: %v", err)
	}
	return d
}

func apply(t *testing.T, env testEnv, actorID, reference string, action workflow.Action, comment string) workflow.TransitionOutcome {
	t.Helper()
	out, err := env.Engine.Apply(env.Ctx, workflow.ApplyOptions{
		ActorID:   actorID,
		Reference: reference,
		Action:    action,
		Comment:   comment,
	})
	if err != nil {
		t.Fatalf("%s by %s: %v", action, actorID, err)
	}
	return out
}

func TestCreateDossier(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env)
	if d.AgentStatus != domain.AgentNew || d.ClientStatus != domain.ClientPending {
		t.Fatalf("fresh dossier in %s/%s", d.AgentStatus, d.ClientStatus)
	}
	if !strings.HasPrefix(d.Reference, "CR-") {
		t.Fatalf("unexpected reference %q", d.Reference)
	}
	entries, err := env.Repo.JournalEntries(env.Ctx, d.Reference, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Kind != domain.KindCreation {
		t.Fatalf("expected single creation entry, got %+v", entries)
	}
	if entries[0].FromStatus != nil {
		t.Fatalf("creation entry carries a from status")
	}
	notifs, err := env.Repo.ListNotifications(env.Ctx, "cli-1", false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(notifs) != 1 || notifs[0].Kind != "dossier.received" {
		t.Fatalf("expected intake notification, got %+v", notifs)
	}
}

func TestCreateDossierValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		opts workflow.CreateDossierOptions
	}{
		{"unknown product", workflow.CreateDossierOptions{ClientID: "cli-1", Product: "yacht_loan", Amount: 10_000, DurationMonths: 24}},
		{"amount too low", workflow.CreateDossierOptions{ClientID: "cli-1", Product: "personal_loan", Amount: 500, DurationMonths: 24}},
		{"amount too high", workflow.CreateDossierOptions{ClientID: "cli-1", Product: "personal_loan", Amount: 60_000, DurationMonths: 24}},
		{"bad duration", workflow.CreateDossierOptions{ClientID: "cli-1", Product: "personal_loan", Amount: 10_000, DurationMonths: 13}},
		{"no client", workflow.CreateDossierOptions{Product: "personal_loan", Amount: 10_000, DurationMonths: 24}},
	}
	for _, tc := range cases {
		_, err := env.Engine.CreateDossier(env.Ctx, tc.opts)
		var ve workflow.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestForwardToAnalyst(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env)
	out := apply(t, env, "mgr-1", d.Reference, workflow.ActionForwardToAnalyst, "")
	if out.Dossier.AgentStatus != domain.AgentTransmittedToAnalyst {
		t.Fatalf("agent status %s", out.Dossier.AgentStatus)
	}
	if out.Dossier.ClientStatus != domain.ClientInProgress {
		t.Fatalf("client status %s", out.Dossier.ClientStatus)
	}
	if out.Entry.Kind != domain.KindTransition {
		t.Fatalf("journal kind %s", out.Entry.Kind)
	}
	if out.Dossier.AssignedActorID == nil || *out.Dossier.AssignedActorID != "mgr-1" {
		t.Fatalf("dossier not assigned to acting manager: %+v", out.Dossier.AssignedActorID)
	}
	// two active analysts plus the client
	if out.Notified != 3 {
		t.Fatalf("notified %d, want 3", out.Notified)
	}
	for _, analyst := range []string{"ana-1", "ana-2"} {
		notifs, err := env.Repo.ListNotifications(env.Ctx, analyst, true, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(notifs) != 1 {
			t.Fatalf("analyst %s has %d notifications", analyst, len(notifs))
		}
	}
	gone, err := env.Repo.ListNotifications(env.Ctx, "ana-gone", false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(gone) != 0 {
		t.Fatalf("inactive analyst was notified")
	}
}

func TestReturnToClientKeepsAgentStatus(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env)
	out := apply(t, env, "mgr-1", d.Reference, workflow.ActionReturnToClient, "missing payslips")
	if out.Dossier.AgentStatus != domain.AgentNew {
		t.Fatalf("agent status moved to %s", out.Dossier.AgentStatus)
	}
	if out.Dossier.ClientStatus != domain.ClientReturned {
		t.Fatalf("client status %s", out.Dossier.ClientStatus)
	}
	if out.Entry.Kind != domain.KindReturnToClient {
		t.Fatalf("journal kind %s", out.Entry.Kind)
	}
	if out.Entry.Metadata["reason"] != "missing payslips" {
		t.Fatalf("reason not journaled: %+v", out.Entry.Metadata)
	}
}

func TestReturnToClientRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env)
	for _, comment := range []string{"", "   "} {
		_, err := env.Engine.Apply(env.Ctx, workflow.ApplyOptions{
			ActorID: "mgr-1", Reference: d.Reference,
			Action: workflow.ActionReturnToClient, Comment: comment,
		})
		var mre workflow.MissingReasonError
		if !errors.As(err, &mre) {
			t.Fatalf("expected missing reason error, got %v", err)
		}
	}
	// refusal left the dossier untouched
	got, err := env.Repo.GetDossier(env.Ctx, d.Reference)
	if err != nil {
		t.Fatal(err)
	}
	if got.AgentStatus != domain.AgentNew || got.ClientStatus != domain.ClientPending {
		t.Fatalf("refused action mutated dossier: %s/%s", got.AgentStatus, got.ClientStatus)
	}
}

func TestFullApprovalPath(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env)
	apply(t, env, "mgr-1", d.Reference, workflow.ActionForwardToAnalyst, "")
	apply(t, env, "ana-1", d.Reference, workflow.ActionForwardToCommittee, "score ok")
	apply(t, env, "rcl-1", d.Reference, workflow.ActionApprove, "")
	out := apply(t, env, "boo-1", d.Reference, workflow.ActionReleaseFunds, "")
	if out.Dossier.AgentStatus != domain.AgentFundsReleased {
		t.Fatalf("final agent status %s", out.Dossier.AgentStatus)
	}
	if out.Dossier.ClientStatus != domain.ClientCompleted {
		t.Fatalf("final client status %s", out.Dossier.ClientStatus)
	}

	entries, err := env.Repo.JournalEntries(env.Ctx, d.Reference, false)
	if err != nil {
		t.Fatal(err)
	}
	wantKinds := []domain.JournalKind{
		domain.KindCreation,
		domain.KindTransition,
		domain.KindTransition,
		domain.KindApproval,
		domain.KindFundsRelease,
	}
	if len(entries) != len(wantKinds) {
		t.Fatalf("journal has %d entries, want %d", len(entries), len(wantKinds))
	}
	var lastID int64
	for i, e := range entries {
		if e.Kind != wantKinds[i] {
			t.Fatalf("entry %d kind %s, want %s", i, e.Kind, wantKinds[i])
		}
		if e.ID <= lastID {
			t.Fatalf("journal ids not monotonic: %d after %d", e.ID, lastID)
		}
		lastID = e.ID
	}
}

func TestReturnToManager(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env)
	apply(t, env, "mgr-1", d.Reference, workflow.ActionForwardToAnalyst, "")
	out := apply(t, env, "ana-1", d.Reference, workflow.ActionReturnToManager, "need updated income docs")
	if out.Dossier.AgentStatus != domain.AgentSupervisorReview {
		t.Fatalf("agent status %s", out.Dossier.AgentStatus)
	}
	if out.Entry.Kind != domain.KindReturn {
		t.Fatalf("journal kind %s", out.Entry.Kind)
	}
	// manager can forward again from supervisor_review
	apply(t, env, "mgr-1", d.Reference, workflow.ActionForwardToAnalyst, "")
}

func TestRejectIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env)
	apply(t, env, "mgr-1", d.Reference, workflow.ActionForwardToAnalyst, "")
	out := apply(t, env, "rcl-1", d.Reference, workflow.ActionReject, "debt ratio too high")
	if out.Dossier.AgentStatus != domain.AgentRejected || out.Dossier.ClientStatus != domain.ClientReturned {
		t.Fatalf("rejected dossier in %s/%s", out.Dossier.AgentStatus, out.Dossier.ClientStatus)
	}

	before, _ := env.Repo.JournalEntries(env.Ctx, d.Reference, false)
	attempts := []struct {
		actor  string
		action workflow.Action
	}{
		{"mgr-1", workflow.ActionForwardToAnalyst},
		{"ana-1", workflow.ActionForwardToCommittee},
		{"rcl-1", workflow.ActionApprove},
		{"boo-1", workflow.ActionReleaseFunds},
	}
	for _, a := range attempts {
		_, err := env.Engine.Apply(env.Ctx, workflow.ApplyOptions{
			ActorID: a.actor, Reference: d.Reference, Action: a.action, Comment: "x",
		})
		var ise workflow.IllegalStateError
		if !errors.As(err, &ise) {
			t.Fatalf("%s on rejected dossier: expected illegal state, got %v", a.action, err)
		}
		if err.Error() != workflow.GenericRefusal {
			t.Fatalf("refusal leaked detail: %q", err.Error())
		}
	}
	after, _ := env.Repo.JournalEntries(env.Ctx, d.Reference, false)
	if len(after) != len(before) {
		t.Fatalf("refused actions appended journal entries")
	}
}

func TestUnauthorizedRole(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env)
	cases := []struct {
		actor  string
		action workflow.Action
	}{
		{"ana-1", workflow.ActionForwardToAnalyst},
		{"boo-1", workflow.ActionApprove},
		{"cli-1", workflow.ActionForwardToAnalyst},
		{"nobody", workflow.ActionForwardToAnalyst},
	}
	for _, tc := range cases {
		_, err := env.Engine.Apply(env.Ctx, workflow.ApplyOptions{
			ActorID: tc.actor, Reference: d.Reference, Action: tc.action,
		})
		var ue workflow.UnauthorizedError
		if !errors.As(err, &ue) {
			t.Fatalf("%s as %s: expected unauthorized, got %v", tc.action, tc.actor, err)
		}
		if err.Error() != workflow.GenericRefusal {
			t.Fatalf("refusal leaked detail: %q", err.Error())
		}
	}
}

func TestDeactivatedActorRefused(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env)
	if err := env.Repo.SetActorActive(env.Ctx, "mgr-1", false); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.Apply(env.Ctx, workflow.ApplyOptions{
		ActorID: "mgr-1", Reference: d.Reference, Action: workflow.ActionForwardToAnalyst,
	})
	var ue workflow.UnauthorizedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected unauthorized for deactivated actor, got %v", err)
	}
}

func TestUnknownAction(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env)
	_, err := env.Engine.Apply(env.Ctx, workflow.ApplyOptions{
		ActorID: "mgr-1", Reference: d.Reference, Action: "escalate_to_ceo",
	})
	var uae workflow.UnknownActionError
	if !errors.As(err, &uae) {
		t.Fatalf("expected unknown action, got %v", err)
	}
}

func TestApplyUnknownDossier(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Apply(env.Ctx, workflow.ApplyOptions{
		ActorID: "mgr-1", Reference: "CR-2026-ffffff", Action: workflow.ActionForwardToAnalyst,
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRejectFromCommitteeStates(t *testing.T) {
	env := newTestEnv(t)
	d := mustCreate(t, env)
	apply(t, env, "mgr-1", d.Reference, workflow.ActionForwardToAnalyst, "")
	apply(t, env, "ana-1", d.Reference, workflow.ActionForwardToCommittee, "")
	out := apply(t, env, "rcl-1", d.Reference, workflow.ActionReject, "policy breach")
	if out.Entry.Kind != domain.KindRejection {
		t.Fatalf("journal kind %s", out.Entry.Kind)
	}
}
